package classify

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hyperjump/edna/internal/catalog"
	"github.com/hyperjump/edna/internal/embedding"
	"github.com/hyperjump/edna/internal/vector"
	"github.com/hyperjump/edna/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRequest is returned for bad topk, tau or sequence input.
	ErrInvalidRequest = errors.New("invalid classification request")
	// ErrEmbedding wraps failures of the embedding collaborator.
	ErrEmbedding = errors.New("embedding failed")
)

// Classifier answers classification requests against a loaded index and catalog.
// All of its state is fixed at construction, so it is safe for concurrent use.
type Classifier struct {
	index     vector.VectorIndex
	catalog   *catalog.Catalog
	embedder  embedding.Embedder
	nprobe    int
	batchSize int
	maxTopK   int
	logger    *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// WithNprobe sets how many coarse cells each search visits.
func WithNprobe(n int) Option {
	return func(c *Classifier) { c.nprobe = n }
}

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) Option {
	return func(c *Classifier) { c.batchSize = n }
}

// WithMaxTopK caps the number of hits a request may ask for.
func WithMaxTopK(n int) Option {
	return func(c *Classifier) { c.maxTopK = n }
}

// NewClassifier checks that index, catalog and embedder agree and returns a classifier.
func NewClassifier(index vector.VectorIndex, cat *catalog.Catalog, emb embedding.Embedder, opts ...Option) (*Classifier, error) {
	if index == nil || cat == nil || emb == nil {
		return nil, errors.New("classifier needs an index, a catalog and an embedder")
	}
	if !index.IsTrained() {
		return nil, vector.ErrIndexNotTrained
	}
	if index.Size() != cat.Len() {
		return nil, fmt.Errorf("%w: index holds %d vectors, catalog %d entries", catalog.ErrLengthMismatch, index.Size(), cat.Len())
	}
	if emb.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("%w: embedder produces %d dims, index expects %d", vector.ErrDimensionMismatch, emb.Dimensions(), index.Dimensions())
	}
	c := &Classifier{
		index:     index,
		catalog:   cat,
		embedder:  emb,
		nprobe:    16,
		batchSize: 4,
		maxTopK:   50,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c, nil
}

// Metric returns the metric of the underlying index.
func (c *Classifier) Metric() vector.Metric {
	return c.index.Metric()
}

// Catalog returns the reference catalog.
func (c *Classifier) Catalog() *catalog.Catalog {
	return c.catalog
}

// Index returns the reference index.
func (c *Classifier) Index() vector.VectorIndex {
	return c.index
}

func (c *Classifier) validate(topk int, tau float64) (int, error) {
	if topk < 1 {
		return 0, fmt.Errorf("%w: topk must be >= 1, got %d", ErrInvalidRequest, topk)
	}
	if math.IsNaN(tau) || tau < 0 || tau > 1 {
		return 0, fmt.Errorf("%w: tau must be in [0,1], got %v", ErrInvalidRequest, tau)
	}
	if c.maxTopK > 0 && topk > c.maxTopK {
		topk = c.maxTopK
	}
	return topk, nil
}

// Embed normalizes seqs and embeds them in fixed-size batches.
func (c *Classifier) Embed(ctx context.Context, seqs []string) ([]string, [][]float32, error) {
	if len(seqs) == 0 {
		return nil, nil, fmt.Errorf("%w: no sequences", ErrInvalidRequest)
	}
	normalized := make([]string, len(seqs))
	for i, s := range seqs {
		normalized[i] = embedding.NormalizeSequence(s)
		if normalized[i] == "" {
			return nil, nil, fmt.Errorf("%w: sequence %d is empty", ErrInvalidRequest, i)
		}
	}
	vecs, err := embedding.Batch(ctx, c.embedder, normalized, c.batchSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return normalized, vecs, nil
}

// ClassifyVectors searches the index with precomputed query vectors. inputs label
// each record and must be aligned with vecs.
func (c *Classifier) ClassifyVectors(ctx context.Context, inputs []string, vecs [][]float32, topk int, tau float64) ([]Record, error) {
	topk, err := c.validate(topk, tau)
	if err != nil {
		return nil, err
	}
	if len(inputs) != len(vecs) {
		return nil, fmt.Errorf("%w: %d inputs for %d vectors", ErrInvalidRequest, len(inputs), len(vecs))
	}
	queries := vecs
	if c.index.Metric() == vector.MetricIP {
		queries = utils.NormalizedCopy(vecs)
	}
	results, err := c.index.Search(ctx, queries, topk, c.nprobe)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	records := make([]Record, len(results))
	for i, qr := range results {
		rec, err := Classify(inputs[i], qr, c.catalog, c.index.Metric(), tau)
		if err != nil {
			c.logger.Error("catalog lookup failed", zap.Int("query", i), zap.Error(err))
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}

// ClassifySequences embeds and classifies seqs. ids, when non-nil, must be aligned
// with seqs and are copied into the records.
func (c *Classifier) ClassifySequences(ctx context.Context, ids, seqs []string, topk int, tau float64) ([]Record, error) {
	if ids != nil && len(ids) != len(seqs) {
		return nil, fmt.Errorf("%w: %d ids for %d sequences", ErrInvalidRequest, len(ids), len(seqs))
	}
	if _, err := c.validate(topk, tau); err != nil {
		return nil, err
	}
	normalized, vecs, err := c.Embed(ctx, seqs)
	if err != nil {
		return nil, err
	}
	records, err := c.ClassifyVectors(ctx, normalized, vecs, topk, tau)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if ids != nil {
			records[i].ID = ids[i]
		}
	}
	c.logger.Debug("classified batch",
		zap.Int("sequences", len(records)),
		zap.Int("topk", topk),
		zap.Float64("tau", tau))
	return records, nil
}

// ClassifyOne classifies a single sequence.
func (c *Classifier) ClassifyOne(ctx context.Context, seq string, topk int, tau float64) (Record, error) {
	records, err := c.ClassifySequences(ctx, nil, []string{seq}, topk, tau)
	if err != nil {
		return Record{}, err
	}
	return records[0], nil
}
