//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"
	"io"
)

var errFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install FAISS library")

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(dimensions int, metric Metric) (*FAISSIndex, error) {
	return nil, errFAISSUnavailable
}

// Train is not implemented without FAISS.
func (f *FAISSIndex) Train(ctx context.Context, sample [][]float32, cfg TrainConfig) error {
	return errFAISSUnavailable
}

// Add is not implemented without FAISS.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32, batchSize int) ([]int64, error) {
	return nil, errFAISSUnavailable
}

// Search is not implemented without FAISS.
func (f *FAISSIndex) Search(ctx context.Context, queries [][]float32, k, nprobe int) ([]QueryResult, error) {
	return nil, errFAISSUnavailable
}

// IsTrained returns false without FAISS.
func (f *FAISSIndex) IsTrained() bool { return false }

// Size returns 0 without FAISS.
func (f *FAISSIndex) Size() int { return 0 }

// Dimensions returns 0 without FAISS.
func (f *FAISSIndex) Dimensions() int { return 0 }

// Metric returns l2 without FAISS.
func (f *FAISSIndex) Metric() Metric { return MetricL2 }

// Stats returns only the type without FAISS.
func (f *FAISSIndex) Stats() Stats { return Stats{Type: f.Type()} }

// Save is not implemented without FAISS.
func (f *FAISSIndex) Save(w io.Writer) error {
	return errFAISSUnavailable
}

// Load is not implemented without FAISS.
func (f *FAISSIndex) Load(r io.Reader) error {
	return errFAISSUnavailable
}

// Close is a no-op without FAISS.
func (f *FAISSIndex) Close() error {
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
