package fasta

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestReadAll(t *testing.T) {
	input := `; comment
>asv1 lake sample
ACGT
acgu

>asv2
GGCC
>asv3	tabbed desc
`
	got, err := ReadAll(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := []Record{
		{ID: "asv1", Description: "lake sample", Sequence: "ACGTacgu"},
		{ID: "asv2", Sequence: "GGCC"},
		{ID: "asv3", Description: "tabbed desc", Sequence: ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadAll = %+v, want %+v", got, want)
	}
}

func TestReadAll_Malformed(t *testing.T) {
	_, err := ReadAll(strings.NewReader("ACGT\n>x\nA\n"))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("got %v, want ErrMalformed", err)
	}
	recs, err := ReadAll(strings.NewReader(""))
	if err != nil || len(recs) != 0 {
		t.Errorf("empty input: %v, %v", recs, err)
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	recs := []Record{{ID: "a", Description: "d", Sequence: "ACGTACGTAC"}, {ID: "b", Sequence: "GG"}}
	if err := Write(&buf, recs, 4); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := ">a d\nACGT\nACGT\nAC\n>b\nGG\n"
	if buf.String() != want {
		t.Errorf("Write = %q, want %q", buf.String(), want)
	}
	back, err := ReadAll(&buf)
	if err != nil || !reflect.DeepEqual(back, recs) {
		t.Errorf("read back = %+v, %v", back, err)
	}
}
