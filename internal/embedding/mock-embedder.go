package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/hyperjump/edna/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the sequence hash so that the same sequence always gets the same embedding.
type MockEmbedder struct {
	dimensions int
	// Vectors, when set, are returned verbatim for matching normalized sequences.
	Vectors map[string][]float32
	// Err, when set, is returned by every call.
	Err error
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockEmbedder{dimensions: dimensions}
}

func hashSequence(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// Embed returns a fixed vector when one is registered, else a deterministic unit vector.
func (e *MockEmbedder) Embed(ctx context.Context, seq string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	seq = NormalizeSequence(seq)
	if seq == "" {
		return nil, ErrEmptyInput
	}
	if v, ok := e.Vectors[seq]; ok {
		return append([]float32(nil), v...), nil
	}
	h := float64(hashSequence(seq) % 100000)
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(h*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each sequence.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, seqs []string) ([][]float32, error) {
	return embedEach(ctx, e, seqs)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
