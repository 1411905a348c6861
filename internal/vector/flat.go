package vector

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// FlatIndex is an exact brute-force index. It is the recall baseline for IVFPQIndex
// and is adequate for small reference libraries.
type FlatIndex struct {
	dimensions int
	metric     Metric
	trained    bool
	vectors    []float32 // slot*dimensions
	mu         sync.RWMutex
}

// NewFlatIndex creates an exact index with the given dimension and metric.
func NewFlatIndex(dimensions int, metric Metric) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", ErrInvalidConfig)
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	return &FlatIndex{dimensions: dimensions, metric: metric}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Metric returns the metric the index ranks by.
func (f *FlatIndex) Metric() Metric {
	return f.metric
}

// Dimensions returns the vector length.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Train only validates the sample and fixes the index state; there is nothing to learn.
func (f *FlatIndex) Train(ctx context.Context, sample [][]float32, _ TrainConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trained {
		return ErrAlreadyTrained
	}
	if err := checkDims(sample, f.dimensions); err != nil {
		return err
	}
	f.trained = true
	return nil
}

// IsTrained reports whether Train has been called.
func (f *FlatIndex) IsTrained() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.trained
}

// Add appends copies of vectors. batchSize is ignored.
func (f *FlatIndex) Add(ctx context.Context, vectors [][]float32, _ int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.trained {
		return nil, ErrIndexNotTrained
	}
	if err := checkDims(vectors, f.dimensions); err != nil {
		return nil, err
	}
	slots := make([]int64, len(vectors))
	for i, vec := range vectors {
		slots[i] = int64(len(f.vectors) / f.dimensions)
		f.vectors = append(f.vectors, vec...)
	}
	return slots, nil
}

// Search scores every stored vector. nprobe is ignored.
func (f *FlatIndex) Search(ctx context.Context, queries [][]float32, k, _ int) ([]QueryResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidConfig, k)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.trained {
		return nil, ErrIndexNotTrained
	}
	if err := checkDims(queries, f.dimensions); err != nil {
		return nil, err
	}
	n := len(f.vectors) / f.dimensions
	results := make([]QueryResult, len(queries))
	for qi, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits := make([]Hit, n)
		for slot := 0; slot < n; slot++ {
			vec := f.vectors[slot*f.dimensions : (slot+1)*f.dimensions]
			hits[slot] = Hit{Slot: int64(slot), Distance: Distance(f.metric, q, vec)}
		}
		results[qi] = sortHits(f.metric, hits, k)
	}
	return results, nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors) / f.dimensions
}

// Stats reports the raw storage footprint.
func (f *FlatIndex) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := len(f.vectors) / f.dimensions
	return Stats{
		Type:             f.Type(),
		Metric:           f.metric,
		Dimensions:       f.dimensions,
		Size:             n,
		Trained:          f.trained,
		MinListSize:      n,
		MaxListSize:      n,
		MemoryBytes:      int64(len(f.vectors) * 4),
		CompressionRatio: 1,
	}
}

// Save writes the header, the trained flag, the count and the raw vectors.
func (f *FlatIndex) Save(w io.Writer) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	bw := newBinWriter(w)
	writeHeader(bw, typeCodeFlat, f.dimensions, f.metric)
	bw.bool(f.trained)
	bw.u64(uint64(len(f.vectors) / f.dimensions))
	bw.f32s(f.vectors)
	if err := bw.flush(); err != nil {
		return fmt.Errorf("write flat index: %w", err)
	}
	return nil
}

// Load replaces the index contents with a blob written by Save.
func (f *FlatIndex) Load(r io.Reader) error {
	br := newBinReader(r)
	if err := readHeader(br, typeCodeFlat, f.dimensions, f.metric); err != nil {
		return err
	}
	trained := br.bool()
	n := br.count(maxSlots/uint64(f.dimensions), "vector")
	vectors := br.f32s(n * f.dimensions)
	if br.err != nil {
		return br.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trained = trained
	f.vectors = vectors
	return nil
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}
