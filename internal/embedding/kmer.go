package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/edna/pkg/utils"
)

// KmerEmbedder maps a sequence to its unit-length k-mer frequency profile.
// K-mers containing anything other than A, C, G or T are skipped.
type KmerEmbedder struct {
	k          int
	dimensions int
}

// NewKmerEmbedder returns a profile embedder with 4^k dimensions. k must be in [1,8].
func NewKmerEmbedder(k int) (*KmerEmbedder, error) {
	if k < 1 || k > 8 {
		return nil, fmt.Errorf("kmer size must be in [1,8], got %d", k)
	}
	return &KmerEmbedder{k: k, dimensions: 1 << (2 * k)}, nil
}

func baseCode(c byte) int {
	switch c {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	}
	return -1
}

// Embed returns the normalized k-mer counts of seq. A sequence shorter than k
// yields the zero vector.
func (e *KmerEmbedder) Embed(ctx context.Context, seq string) ([]float32, error) {
	seq = NormalizeSequence(seq)
	if seq == "" {
		return nil, ErrEmptyInput
	}
	v := make([]float32, e.dimensions)
	mask := e.dimensions - 1
	code, valid := 0, 0
	for i := 0; i < len(seq); i++ {
		b := baseCode(seq[i])
		if b < 0 {
			valid = 0
			continue
		}
		code = (code<<2 | b) & mask
		valid++
		if valid >= e.k {
			v[code]++
		}
	}
	utils.NormalizeL2(v)
	return v, nil
}

// EmbedBatch calls Embed for each sequence.
func (e *KmerEmbedder) EmbedBatch(ctx context.Context, seqs []string) ([][]float32, error) {
	return embedEach(ctx, e, seqs)
}

// Dimensions returns 4^k.
func (e *KmerEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for KmerEmbedder.
func (e *KmerEmbedder) Close() error {
	return nil
}
