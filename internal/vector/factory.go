package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeIVFPQ is the pure-Go inverted file with product quantization (default).
	IndexTypeIVFPQ IndexType = "ivfpq"
	// IndexTypeFlat is exact brute-force search. Good for small reference sets and as a recall baseline.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeFAISS builds IVF-PQ through the FAISS C API.
	// Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewVectorIndex creates an untrained vector index of the specified type.
// Supported types: "ivfpq" (default), "flat", "faiss".
func NewVectorIndex(indexType string, dimensions int, metric Metric) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeIVFPQ, "":
		return NewIVFPQIndex(dimensions, metric)
	case IndexTypeFlat:
		return NewFlatIndex(dimensions, metric)
	case IndexTypeFAISS:
		idx, err := NewFAISSIndex(dimensions, metric)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: unknown index type %q (supported: ivfpq, flat, faiss)", ErrInvalidConfig, indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1, MetricL2)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
