// Package pipeline wires the embedder, index, catalog and stores into the offline
// reference build and the batch analysis of ASV files.
package pipeline

import (
	"context"
	"fmt"

	"github.com/hyperjump/edna/internal/artifact"
	"github.com/hyperjump/edna/internal/catalog"
	"github.com/hyperjump/edna/internal/config"
	"github.com/hyperjump/edna/internal/labelindex"
	"github.com/hyperjump/edna/internal/vector"
	"go.uber.org/zap"
)

type options struct {
	logger     *zap.Logger
	labelIndex labelindex.LabelIndex
	outputDir  string
}

// Option configures a Builder or an Analyzer.
type Option func(*options)

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLabelIndex mirrors built catalog entries into a label search index.
func WithLabelIndex(li labelindex.LabelIndex) Option {
	return func(o *options) { o.labelIndex = li }
}

// WithOutputDir makes the Analyzer write report files under dir.
func WithOutputDir(dir string) Option {
	return func(o *options) { o.outputDir = dir }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// LoadReference reads the persisted index and catalog named in cfg from store.
// The pair must agree in size; a mismatch means the artifacts are corrupt.
func LoadReference(ctx context.Context, store artifact.FileStore, cfg config.StorageConfig) (vector.VectorIndex, *catalog.Catalog, error) {
	rc, err := store.Read(ctx, cfg.IndexName)
	if err != nil {
		return nil, nil, fmt.Errorf("open index %s: %w", cfg.IndexName, err)
	}
	idx, err := vector.ReadIndex(rc)
	_ = rc.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("read index %s: %w", cfg.IndexName, err)
	}

	rc, err = store.Read(ctx, cfg.CatalogName)
	if err != nil {
		_ = idx.Close()
		return nil, nil, fmt.Errorf("open catalog %s: %w", cfg.CatalogName, err)
	}
	cat, err := catalog.Load(rc)
	_ = rc.Close()
	if err != nil {
		_ = idx.Close()
		return nil, nil, fmt.Errorf("read catalog %s: %w", cfg.CatalogName, err)
	}

	if idx.Size() != cat.Len() {
		_ = idx.Close()
		return nil, nil, fmt.Errorf("%w: index holds %d vectors, catalog %d entries", catalog.ErrLengthMismatch, idx.Size(), cat.Len())
	}
	return idx, cat, nil
}
