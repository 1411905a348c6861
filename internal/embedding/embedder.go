// Package embedding turns DNA sequences into fixed-length vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput is returned for an empty sequence or an empty batch.
	ErrEmptyInput = errors.New("empty input")
	// ErrDimension is returned when an embedder yields a vector of unexpected length.
	ErrDimension = errors.New("embedding dimension mismatch")
)

// Embedder produces vector embeddings for sequences.
type Embedder interface {
	Embed(ctx context.Context, seq string) ([]float32, error)
	EmbedBatch(ctx context.Context, seqs []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// NormalizeSequence upper-cases seq, maps RNA U to T and drops whitespace.
func NormalizeSequence(seq string) string {
	var b strings.Builder
	b.Grow(len(seq))
	for i := 0; i < len(seq); i++ {
		c := seq[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			continue
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}
		if c == 'U' {
			c = 'T'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Batch embeds seqs in chunks of batchSize and checks every vector length.
// The result is index-aligned with seqs.
func Batch(ctx context.Context, e Embedder, seqs []string, batchSize int) ([][]float32, error) {
	if len(seqs) == 0 {
		return nil, ErrEmptyInput
	}
	if batchSize <= 0 {
		batchSize = len(seqs)
	}
	out := make([][]float32, 0, len(seqs))
	for start := 0; start < len(seqs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(seqs))
		vecs, err := e.EmbedBatch(ctx, seqs[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed batch [%d:%d]: got %d vectors", start, end, len(vecs))
		}
		for i, v := range vecs {
			if len(v) != e.Dimensions() {
				return nil, fmt.Errorf("%w: sequence %d has %d values, expected %d", ErrDimension, start+i, len(v), e.Dimensions())
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedEach implements EmbedBatch for embedders that work one sequence at a time.
func embedEach(ctx context.Context, e Embedder, seqs []string) ([][]float32, error) {
	if len(seqs) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(seqs))
	for i, s := range seqs {
		v, err := e.Embed(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
