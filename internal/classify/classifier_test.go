package classify

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/edna/internal/catalog"
	"github.com/hyperjump/edna/internal/embedding"
	"github.com/hyperjump/edna/internal/vector"
	"go.uber.org/zap"
)

func exampleClassifier(t *testing.T, opts ...Option) (*Classifier, *embedding.MockEmbedder) {
	t.Helper()
	emb := embedding.NewMockEmbedder(2)
	emb.Vectors = map[string][]float32{
		"ACGT": {10, 10.05},
		"GGGG": {100, 100},
	}
	opts = append([]Option{WithLogger(zap.NewNop()), WithNprobe(2), WithBatchSize(1)}, opts...)
	c, err := NewClassifier(exampleIndex(t, "ivfpq", true), exampleCatalog(t), emb, opts...)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c, emb
}

func TestClassifier_ClassifySequences(t *testing.T) {
	c, _ := exampleClassifier(t)
	records, err := c.ClassifySequences(context.Background(), []string{"asv1", "asv2"}, []string{"acgu", "gggg"}, 2, 0.4)
	if err != nil {
		t.Fatalf("ClassifySequences: %v", err)
	}
	if records[0].ID != "asv1" || records[0].InputSeq != "ACGT" {
		t.Errorf("record 0 id/input = %q/%q", records[0].ID, records[0].InputSeq)
	}
	if !records[0].Accepted || records[0].TopHit.RefID != "v3" {
		t.Errorf("record 0 = %+v, want accepted v3", records[0])
	}
	if records[1].Accepted {
		t.Errorf("record 1 = %+v, want rejected", records[1])
	}
}

func TestClassifier_Validation(t *testing.T) {
	c, emb := exampleClassifier(t, WithMaxTopK(2))
	ctx := context.Background()

	tests := []struct {
		name string
		ids  []string
		seqs []string
		topk int
		tau  float64
	}{
		{"zero topk", nil, []string{"ACGT"}, 0, 0.5},
		{"tau above one", nil, []string{"ACGT"}, 1, 1.5},
		{"negative tau", nil, []string{"ACGT"}, 1, -0.1},
		{"empty sequence", nil, []string{"  "}, 1, 0.5},
		{"no sequences", nil, nil, 1, 0.5},
		{"id mismatch", []string{"a", "b"}, []string{"ACGT"}, 1, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ClassifySequences(ctx, tt.ids, tt.seqs, tt.topk, tt.tau)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("got %v, want ErrInvalidRequest", err)
			}
		})
	}

	rec, err := c.ClassifyOne(ctx, "ACGT", 10, 0.4)
	if err != nil {
		t.Fatalf("ClassifyOne: %v", err)
	}
	if len(rec.TopK) != 2 {
		t.Errorf("topk not capped: %d hits", len(rec.TopK))
	}

	emb.Err = errors.New("model offline")
	if _, err := c.ClassifyOne(ctx, "ACGT", 1, 0.4); !errors.Is(err, ErrEmbedding) {
		t.Errorf("got %v, want ErrEmbedding", err)
	}
}

func TestNewClassifier_Mismatch(t *testing.T) {
	idx := exampleIndex(t, "flat", false)
	cat := exampleCatalog(t)

	if _, err := NewClassifier(idx, cat, embedding.NewMockEmbedder(3)); !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("dims: got %v", err)
	}
	short, _ := catalog.Attach([]int64{0}, []string{"v1"}, nil)
	if _, err := NewClassifier(idx, short, embedding.NewMockEmbedder(2)); !errors.Is(err, catalog.ErrLengthMismatch) {
		t.Errorf("size: got %v", err)
	}
	untrained, _ := vector.NewFlatIndex(2, vector.MetricL2)
	if _, err := NewClassifier(untrained, cat, embedding.NewMockEmbedder(2)); !errors.Is(err, vector.ErrIndexNotTrained) {
		t.Errorf("untrained: got %v", err)
	}
}

func TestClassifier_IPNormalizesQueries(t *testing.T) {
	ctx := context.Background()
	refs := [][]float32{{1, 0}, {0, 1}}
	idx, _ := vector.NewFlatIndex(2, vector.MetricIP)
	_ = idx.Train(ctx, refs, vector.TrainConfig{})
	if _, err := idx.Add(ctx, refs, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	cat, _ := catalog.Attach([]int64{0, 1}, []string{"x", "y"}, map[string]catalog.Labels{
		"x": {Phylum: "P1"}, "y": {Phylum: "P2"},
	})
	emb := embedding.NewMockEmbedder(2)
	emb.Vectors = map[string][]float32{"AAAA": {30, 40}}
	c, err := NewClassifier(idx, cat, emb)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	rec, err := c.ClassifyOne(ctx, "AAAA", 2, 0.5)
	if err != nil {
		t.Fatalf("ClassifyOne: %v", err)
	}
	if rec.TopHit.RefID != "y" || math.Abs(float64(rec.TopK[0].Distance)-0.8) > 1e-5 {
		t.Errorf("top = %+v, want y with normalized score 0.8", rec.TopHit)
	}
	if rec.TopK[0].Similarity != 1 || rec.TopK[1].Similarity != 0 {
		t.Errorf("similarities = %v/%v, want 1/0", rec.TopK[0].Similarity, rec.TopK[1].Similarity)
	}
}
