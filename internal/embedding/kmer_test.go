package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestNewKmerEmbedder(t *testing.T) {
	tests := []struct {
		k       int
		dims    int
		wantErr bool
	}{
		{1, 4, false},
		{4, 256, false},
		{8, 65536, false},
		{0, 0, true},
		{9, 0, true},
	}
	for _, tt := range tests {
		e, err := NewKmerEmbedder(tt.k)
		if (err != nil) != tt.wantErr {
			t.Errorf("k=%d: err = %v, wantErr %v", tt.k, err, tt.wantErr)
			continue
		}
		if err == nil && e.Dimensions() != tt.dims {
			t.Errorf("k=%d: dims = %d, want %d", tt.k, e.Dimensions(), tt.dims)
		}
	}
}

func TestKmerEmbedder_Profile(t *testing.T) {
	e, _ := NewKmerEmbedder(1)
	v, err := e.Embed(context.Background(), "AACGU")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	// counts A=2 C=1 G=1 T=1, norm sqrt(7)
	n := float32(math.Sqrt(7))
	want := []float32{2 / n, 1 / n, 1 / n, 1 / n}
	for i := range want {
		if math.Abs(float64(v[i]-want[i])) > 1e-6 {
			t.Errorf("v[%d] = %f, want %f", i, v[i], want[i])
		}
	}
}

func TestKmerEmbedder_SkipsAmbiguousBases(t *testing.T) {
	e, _ := NewKmerEmbedder(2)
	a, _ := e.Embed(context.Background(), "ACNGT")
	b, _ := e.Embed(context.Background(), "AC GT")
	// ACNGT has AC and GT only; "AC GT" normalizes to ACGT which adds CG.
	nonzero := 0
	for _, x := range a {
		if x != 0 {
			nonzero++
		}
	}
	if nonzero != 2 {
		t.Errorf("ACNGT: %d non-zero 2-mers, want 2", nonzero)
	}
	if b[0b0110] == 0 {
		t.Error("ACGT: expected CG 2-mer to be counted")
	}
}

func TestKmerEmbedder_Empty(t *testing.T) {
	e, _ := NewKmerEmbedder(3)
	if _, err := e.Embed(context.Background(), " \n"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("got %v, want ErrEmptyInput", err)
	}
	v, err := e.Embed(context.Background(), "AC")
	if err != nil {
		t.Fatalf("short sequence: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("sequence shorter than k should give the zero vector")
		}
	}
}

func BenchmarkKmerEmbedder_Embed(b *testing.B) {
	e, err := NewKmerEmbedder(4)
	if err != nil {
		b.Fatal(err)
	}
	seq := "TACGGAGGGTGCAAGCGTTAATCGGAATTACTGGGCGTAAAGCGCACGCAGGCGGTTTGTTAAGTCAGATGTGAAATCCCCGGGCTCAACCTGGGAACTGCATCTGATACTGGCAAGCTTGAGTCTCGTAGAGG"
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Embed(ctx, seq); err != nil {
			b.Fatal(err)
		}
	}
}
