package vector

import (
	"context"
	"errors"
	"testing"
)

func TestNewVectorIndex(t *testing.T) {
	tests := []struct {
		indexType string
		wantType  string
	}{
		{"", string(IndexTypeIVFPQ)},
		{"ivfpq", string(IndexTypeIVFPQ)},
		{"flat", string(IndexTypeFlat)},
	}
	for _, tt := range tests {
		idx, err := NewVectorIndex(tt.indexType, 4, MetricIP)
		if err != nil {
			t.Fatalf("NewVectorIndex(%q): %v", tt.indexType, err)
		}
		if idx.Type() != tt.wantType || idx.Metric() != MetricIP || idx.Dimensions() != 4 {
			t.Errorf("NewVectorIndex(%q): type=%s metric=%s dims=%d", tt.indexType, idx.Type(), idx.Metric(), idx.Dimensions())
		}
		if idx.IsTrained() || idx.Size() != 0 {
			t.Errorf("NewVectorIndex(%q) should start empty and untrained", tt.indexType)
		}
		_ = idx.Close()
	}
}

func TestNewVectorIndex_Errors(t *testing.T) {
	if _, err := NewVectorIndex("unknown", 3, MetricL2); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown type: %v", err)
	}
	if _, err := NewVectorIndex("ivfpq", 0, MetricL2); err == nil {
		t.Error("expected error for zero dimension")
	}
	if _, err := NewVectorIndex("flat", 3, Metric("cosine")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown metric: %v", err)
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"", MetricL2, false},
		{"l2", MetricL2, false},
		{"ip", MetricIP, false},
		{"cos", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMetric(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestIsFAISSAvailable(t *testing.T) {
	// The result depends on build tags.
	t.Logf("FAISS available: %v", IsFAISSAvailable())
}

func TestNewVectorIndex_FAISS(t *testing.T) {
	if !IsFAISSAvailable() {
		t.Skip("FAISS not available (build with -tags=faiss)")
	}
	idx, err := NewVectorIndex("faiss", 4, MetricL2)
	if err != nil {
		t.Fatalf("NewVectorIndex(faiss): %v", err)
	}
	defer idx.Close()
	if _, err := idx.Search(context.Background(), [][]float32{{1, 0, 0, 0}}, 1, 1); !errors.Is(err, ErrIndexNotTrained) {
		t.Errorf("Search before Train: %v", err)
	}
}
