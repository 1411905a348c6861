//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
)

func trainedFAISS(t *testing.T, data [][]float32) *FAISSIndex {
	t.Helper()
	idx, err := NewFAISSIndex(len(data[0]), MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := idx.Train(ctx, data, TrainConfig{Nlist: 4, Segments: 4, BitsPerSegment: 4}); err != nil {
		t.Fatalf("Train: %v", err)
	}
	if _, err := idx.Add(ctx, data, 100); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return idx
}

func TestFAISSIndex_TrainAddSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	data := randomVectors(rng, 1000, 8)
	idx := trainedFAISS(t, data)
	defer idx.Close()

	if idx.Size() != 1000 {
		t.Errorf("Size=%d, want 1000", idx.Size())
	}
	results, err := idx.Search(context.Background(), data[:3], 5, 4)
	if err != nil {
		t.Fatal(err)
	}
	for qi, r := range results {
		if len(r) == 0 {
			t.Fatalf("query %d: no hits", qi)
		}
		for i := 1; i < len(r); i++ {
			if r[i-1].Distance > r[i].Distance {
				t.Errorf("query %d: not sorted", qi)
			}
		}
	}
}

func TestFAISSIndex_SaveLoad(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	data := randomVectors(rng, 600, 8)
	idx := trainedFAISS(t, data)
	defer idx.Close()

	var buf bytes.Buffer
	if err := idx.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := ReadIndex(&buf)
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	defer loaded.Close()
	if loaded.Size() != 600 || loaded.Type() != string(IndexTypeFAISS) {
		t.Errorf("loaded size=%d type=%s", loaded.Size(), loaded.Type())
	}
}

func TestFAISSIndex_Errors(t *testing.T) {
	ctx := context.Background()
	idx, err := NewFAISSIndex(8, MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if _, err := idx.Add(ctx, [][]float32{make([]float32, 8)}, 1); !errors.Is(err, ErrIndexNotTrained) {
		t.Errorf("Add before Train: %v", err)
	}
	if err := idx.Train(ctx, randomVectors(rand.New(rand.NewSource(1)), 2, 8), TrainConfig{Nlist: 4, Segments: 4, BitsPerSegment: 4}); !errors.Is(err, ErrNotEnoughData) {
		t.Errorf("Train with too few vectors: %v", err)
	}
	if _, err := NewFAISSIndex(0, MetricL2); err == nil {
		t.Error("expected error for zero dimension")
	}
}
