// Package vector provides the approximate nearest-neighbour index over reference embeddings.
package vector

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotEnoughData is returned when the training sample has fewer vectors than coarse cells.
	ErrNotEnoughData = errors.New("not enough training vectors")
	// ErrDimensionMismatch is returned when a vector length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIndexNotTrained is returned by Add and Search before Train.
	ErrIndexNotTrained = errors.New("index not trained")
	// ErrAlreadyTrained is returned when Train is called on a trained index.
	ErrAlreadyTrained = errors.New("index already trained")
	// ErrInvalidConfig is returned for unusable training or search parameters.
	ErrInvalidConfig = errors.New("invalid index configuration")
	// ErrCorruptIndex is returned when a persisted index cannot be decoded.
	ErrCorruptIndex = errors.New("corrupt index data")
)

// Metric is the distance function an index ranks by.
type Metric string

const (
	// MetricL2 is squared Euclidean distance; lower is closer.
	MetricL2 Metric = "l2"
	// MetricIP is inner product; higher is closer.
	MetricIP Metric = "ip"
)

// ParseMetric maps a config value to a Metric. Empty means l2.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricL2, "":
		return MetricL2, nil
	case MetricIP:
		return MetricIP, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q (supported: l2, ip)", ErrInvalidConfig, s)
	}
}

// HigherIsCloser reports whether larger raw values mean nearer neighbours.
func (m Metric) HigherIsCloser() bool {
	return m == MetricIP
}

// Hit is one candidate returned by Search. Slot is the insertion position of the vector.
type Hit struct {
	Slot     int64
	Distance float32
}

// QueryResult holds the hits for one query, best first.
type QueryResult []Hit

// TrainConfig controls quantizer training.
type TrainConfig struct {
	Nlist          int
	Segments       int
	BitsPerSegment int
	// CodesOnly drops the raw vectors and ranks candidates by ADC distance alone.
	// Without exact ranking a larger nprobe can lower recall.
	CodesOnly bool
}

// Stats describes the memory layout of an index.
type Stats struct {
	Type             string  `json:"type"`
	Metric           Metric  `json:"metric"`
	Dimensions       int     `json:"dimensions"`
	Size             int     `json:"size"`
	Trained          bool    `json:"trained"`
	Nlist            int     `json:"nlist,omitempty"`
	Segments         int     `json:"segments,omitempty"`
	BitsPerSegment   int     `json:"bits_per_segment,omitempty"`
	Refine           bool    `json:"refine"` // probed candidates ranked by exact distance
	MinListSize      int     `json:"min_list_size"`
	MaxListSize      int     `json:"max_list_size"`
	EmptyLists       int     `json:"empty_lists"`
	MemoryBytes      int64   `json:"memory_bytes"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// VectorIndex stores reference vectors under contiguous slots and answers top-k queries.
// Slots are assigned in insertion order starting at 0 and are never removed.
type VectorIndex interface {
	Train(ctx context.Context, sample [][]float32, cfg TrainConfig) error
	Add(ctx context.Context, vectors [][]float32, batchSize int) ([]int64, error)
	Search(ctx context.Context, queries [][]float32, k, nprobe int) ([]QueryResult, error)
	IsTrained() bool
	Size() int
	Dimensions() int
	Metric() Metric
	Type() string
	Stats() Stats
	Save(w io.Writer) error
	Load(r io.Reader) error
	Close() error
}

// closer reports whether a ranks before b. Equal distances put the higher slot first.
func closer(metric Metric, a, b Hit) bool {
	if a.Distance != b.Distance {
		return better(metric, a.Distance, b.Distance)
	}
	return a.Slot > b.Slot
}

func checkDims(vectors [][]float32, dims int) error {
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d values, expected %d", ErrDimensionMismatch, i, len(v), dims)
		}
	}
	return nil
}
