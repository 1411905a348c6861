package vector

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestFlatIndex_AddSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewFlatIndex(3, MetricIP)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if _, err := idx.Add(ctx, vecs, 0); !errors.Is(err, ErrIndexNotTrained) {
		t.Fatalf("Add before Train: %v", err)
	}
	if err := idx.Train(ctx, vecs, TrainConfig{}); err != nil {
		t.Fatal(err)
	}
	slots, err := idx.Add(ctx, vecs, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 3 || slots[2] != 2 {
		t.Errorf("slots=%v", slots)
	}

	results, err := idx.Search(ctx, [][]float32{{1, 0, 0}}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results[0]) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results[0]))
	}
	if results[0][0].Slot != 0 || results[0][1].Slot != 1 {
		t.Errorf("unexpected order %v", results[0])
	}

	s := idx.Stats()
	if s.Size != 3 || s.CompressionRatio != 1 || s.Refine {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestFlatIndex_EqualDistancesPreferLaterSlot(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewFlatIndex(1, MetricL2)
	_ = idx.Train(ctx, nil, TrainConfig{})
	_, _ = idx.Add(ctx, [][]float32{{-1}, {1}, {5}}, 0)
	results, err := idx.Search(ctx, [][]float32{{0}}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := results[0]
	if got[0].Slot != 1 || got[1].Slot != 0 || got[2].Slot != 2 {
		t.Errorf("order = %v, want slots 1, 0, 2", got)
	}
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewFlatIndex(2, MetricL2)
	_ = idx.Train(ctx, nil, TrainConfig{})
	_, _ = idx.Add(ctx, [][]float32{{0, 0}, {3, 4}}, 0)

	var buf bytes.Buffer
	if err := idx.Save(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := ReadIndex(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Type() != string(IndexTypeFlat) || loaded.Size() != 2 {
		t.Fatalf("loaded type=%s size=%d", loaded.Type(), loaded.Size())
	}
	results, err := loaded.Search(ctx, [][]float32{{3, 4}}, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if results[0][0].Slot != 1 || results[0][0].Distance != 0 {
		t.Errorf("got %v", results[0])
	}
}

func TestFlatIndex_Empty(t *testing.T) {
	ctx := context.Background()
	idx, _ := NewFlatIndex(2, MetricL2)
	_ = idx.Train(ctx, nil, TrainConfig{})
	results, err := idx.Search(ctx, [][]float32{{1, 1}}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || len(results[0]) != 0 {
		t.Errorf("expected one empty result, got %v", results)
	}
}
