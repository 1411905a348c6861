package catalog

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestAttach(t *testing.T) {
	labels := map[string]Labels{
		"AB1": {Phylum: "Chordata", Class: "Mammalia", TaxID: "9606"},
		"AB2": {Phylum: "", Class: "Insecta"},
	}
	c, err := Attach([]int64{0, 1, 2}, []string{"AB1", "AB2", "AB3"}, labels)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 3 {
		t.Fatalf("Len=%d", c.Len())
	}

	tests := []struct {
		slot     int64
		id       string
		phylum   string
		class    string
		hasLabel bool
	}{
		{0, "AB1", "Chordata", "Mammalia", true},
		{1, "AB2", NA, "Insecta", true},
		{2, "AB3", NA, NA, false},
	}
	for _, tt := range tests {
		e, err := c.Lookup(tt.slot)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", tt.slot, err)
		}
		if e.ExternalID != tt.id || e.Phylum != tt.phylum || e.Class != tt.class {
			t.Errorf("Lookup(%d) = %+v", tt.slot, e)
		}
		if e.HasLabel() != tt.hasLabel {
			t.Errorf("slot %d HasLabel=%v, want %v", tt.slot, e.HasLabel(), tt.hasLabel)
		}
	}

	if e, ok := c.ByExternalID("AB2"); !ok || e.Slot != 1 {
		t.Errorf("ByExternalID(AB2) = %+v, %v", e, ok)
	}
	if _, ok := c.ByExternalID("nope"); ok {
		t.Error("ByExternalID should miss unknown accession")
	}
}

func TestAttach_DuplicateAccession(t *testing.T) {
	c, err := Attach([]int64{0, 1}, []string{"AB1", "AB1"}, map[string]Labels{"AB1": {Class: "Mammalia"}})
	if err != nil {
		t.Fatalf("duplicate accession should be accepted: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len=%d", c.Len())
	}
	if e, ok := c.ByExternalID("AB1"); !ok || e.Slot != 0 {
		t.Errorf("ByExternalID(AB1) = %+v, %v, want first slot", e, ok)
	}
	if e, _ := c.Lookup(1); e.ExternalID != "AB1" || e.Class != "Mammalia" {
		t.Errorf("Lookup(1) = %+v", e)
	}
}

func TestAttachErrors(t *testing.T) {
	if _, err := Attach([]int64{0, 1}, []string{"a"}, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("length mismatch: %v", err)
	}
	if _, err := Attach([]int64{0, 2}, []string{"a", "b"}, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("gap in slots: %v", err)
	}
	if _, err := Attach([]int64{1, 0}, []string{"a", "b"}, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("out of order slots: %v", err)
	}
}

func TestLookupUnknownSlot(t *testing.T) {
	c, _ := Attach([]int64{0}, []string{"a"}, nil)
	for _, slot := range []int64{-1, 1, 100} {
		if _, err := c.Lookup(slot); !errors.Is(err, ErrUnknownSlot) {
			t.Errorf("Lookup(%d): %v", slot, err)
		}
	}
}

func TestSentinel(t *testing.T) {
	s := Sentinel()
	if s.ExternalID != NA || s.HasLabel() {
		t.Errorf("sentinel = %+v", s)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	labels := map[string]Labels{
		"X1": {Phylum: "Arthropoda", Class: "Insecta", TaxID: "7227", ScientificName: "Drosophila melanogaster"},
	}
	c, err := Attach([]int64{0, 1}, []string{"X1", "X2"}, labels)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := c.Save(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"ids":["X1","X2"]`) {
		t.Errorf("unexpected encoding: %s", buf.String())
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.Entries(), loaded.Entries()) {
		t.Errorf("entries differ:\n%+v\n%+v", c.Entries(), loaded.Entries())
	}
}

func TestLoadEmptyLabelObject(t *testing.T) {
	c, err := Load(strings.NewReader(`{"ids":["A","B"],"labels":{"A":{},"B":{"phylum":"P"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := c.Lookup(0)
	b, _ := c.Lookup(1)
	if a.Phylum != NA || a.Class != NA {
		t.Errorf("A = %+v", a)
	}
	if b.Phylum != "P" || b.Class != NA {
		t.Errorf("B = %+v", b)
	}
}

func TestReadLabelsTSV(t *testing.T) {
	in := "accession\ttaxid\tscientific_name\tphylum\tclass\n" +
		"AB1\t9606\tHomo sapiens\tChordata\tMammalia\n" +
		"\n" +
		"AB2\t7227\tDrosophila\tArthropoda\tInsecta\r\n"
	got, err := ReadLabelsTSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows", len(got))
	}
	if got["AB2"].Class != "Insecta" || got["AB1"].ScientificName != "Homo sapiens" {
		t.Errorf("got %+v", got)
	}

	if _, err := ReadLabelsTSV(strings.NewReader("h\nAB1\t1\n")); err == nil {
		t.Error("expected error for short row")
	}
}
