package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/edna/internal/artifact"
	"github.com/hyperjump/edna/internal/catalog"
	"github.com/hyperjump/edna/internal/config"
	"github.com/hyperjump/edna/internal/embedding"
	"github.com/hyperjump/edna/internal/fasta"
	"github.com/hyperjump/edna/internal/vector"
	"github.com/hyperjump/edna/pkg/utils"
	"go.uber.org/zap"
)

// ErrNoReferences is returned when the reference FASTA holds no usable sequence.
var ErrNoReferences = errors.New("no reference sequences")

// BuildInput is the source data of a reference build. Labels may be nil, in which
// case every entry is labelled NA.
type BuildInput struct {
	References io.Reader
	Labels     io.Reader
}

// BuildReport describes a finished build.
type BuildReport struct {
	References  int           `json:"references"`
	Labeled     int           `json:"labeled"`
	TrainSample int           `json:"train_sample"`
	Nlist       int           `json:"nlist"`
	Stats       vector.Stats  `json:"stats"`
	IndexPath   string        `json:"index_path"`
	CatalogPath string        `json:"catalog_path"`
	Duration    time.Duration `json:"duration"`
}

// Builder runs the offline reference build. It is not safe for concurrent use.
type Builder struct {
	embedder embedding.Embedder
	store    artifact.FileStore
	index    config.IndexConfig
	storage  config.StorageConfig
	batch    int
	opts     options
}

// NewBuilder creates a builder writing artifacts to store with the names in cfg.Storage.
func NewBuilder(emb embedding.Embedder, store artifact.FileStore, cfg *config.Config, opts ...Option) *Builder {
	return &Builder{
		embedder: emb,
		store:    store,
		index:    cfg.Index,
		storage:  cfg.Storage,
		batch:    cfg.Embedding.BatchSize,
		opts:     applyOptions(opts),
	}
}

// Build embeds the references, trains and fills a new index, attaches the catalog
// and persists both. Training always completes before the first vector is added.
func (b *Builder) Build(ctx context.Context, in BuildInput) (*BuildReport, error) {
	start := time.Now()
	log := b.opts.logger

	records, err := fasta.ReadAll(in.References)
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	ids := make([]string, 0, len(records))
	seqs := make([]string, 0, len(records))
	for _, r := range records {
		s := embedding.NormalizeSequence(r.Sequence)
		if s == "" {
			log.Warn("skipping empty reference", zap.String("id", r.ID))
			continue
		}
		ids = append(ids, r.ID)
		seqs = append(seqs, s)
	}
	if len(seqs) == 0 {
		return nil, ErrNoReferences
	}

	labels := map[string]catalog.Labels{}
	if in.Labels != nil {
		if labels, err = catalog.ReadLabelsTSV(in.Labels); err != nil {
			return nil, err
		}
	}

	metric, err := vector.ParseMetric(b.index.Metric)
	if err != nil {
		return nil, err
	}
	log.Info("embedding references", zap.Int("count", len(seqs)), zap.Int("batch_size", b.batch))
	vecs, err := embedding.Batch(ctx, b.embedder, seqs, b.batch)
	if err != nil {
		return nil, fmt.Errorf("embed references: %w", err)
	}
	if metric == vector.MetricIP {
		vecs = utils.NormalizedCopy(vecs)
	}

	idx, err := vector.NewVectorIndex(b.index.Type, b.embedder.Dimensions(), metric)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	sample := TrainSample(vecs, b.index.TrainSample)
	nlist := b.index.Nlist
	if nlist > len(sample) {
		log.Warn("reducing nlist to the training sample size", zap.Int("nlist", nlist), zap.Int("sample", len(sample)))
		nlist = len(sample)
	}
	tc := vector.TrainConfig{
		Nlist:          nlist,
		Segments:       b.index.Segments,
		BitsPerSegment: b.index.BitsPerSegment,
		CodesOnly:      b.index.CodesOnly,
	}
	log.Info("training index", zap.String("type", idx.Type()), zap.Int("sample", len(sample)), zap.Int("nlist", nlist))
	if tc.CodesOnly || idx.Type() == string(vector.IndexTypeFAISS) {
		log.Warn("index ranks by PQ codes only; a larger nprobe may lower recall", zap.String("type", idx.Type()))
	}
	if err := idx.Train(ctx, sample, tc); err != nil {
		return nil, fmt.Errorf("train index: %w", err)
	}
	slots, err := idx.Add(ctx, vecs, b.index.AddBatchSize)
	if err != nil {
		return nil, fmt.Errorf("add references: %w", err)
	}
	cat, err := catalog.Attach(slots, ids, labels)
	if err != nil {
		return nil, err
	}

	if err := artifact.WriteWith(ctx, b.store, b.storage.IndexName, idx.Save); err != nil {
		return nil, err
	}
	if err := artifact.WriteWith(ctx, b.store, b.storage.CatalogName, cat.Save); err != nil {
		return nil, err
	}
	entries := cat.Entries()
	if li := b.opts.labelIndex; li != nil {
		if err := li.Index(ctx, entries); err != nil {
			return nil, fmt.Errorf("index labels: %w", err)
		}
	}

	labeled := 0
	for _, e := range entries {
		if e.HasLabel() {
			labeled++
		}
	}
	rep := &BuildReport{
		References:  cat.Len(),
		Labeled:     labeled,
		TrainSample: len(sample),
		Nlist:       nlist,
		Stats:       idx.Stats(),
		IndexPath:   b.storage.IndexName,
		CatalogPath: b.storage.CatalogName,
		Duration:    time.Since(start),
	}
	log.Info("reference build complete",
		zap.Int("references", rep.References),
		zap.Int("labeled", rep.Labeled),
		zap.Duration("duration", rep.Duration))
	return rep, nil
}

// TrainSample picks at most limit vectors spread evenly over vecs. The choice
// depends only on len(vecs) and limit, so rebuilds are reproducible.
func TrainSample(vecs [][]float32, limit int) [][]float32 {
	if limit <= 0 || len(vecs) <= limit {
		return vecs
	}
	out := make([][]float32, limit)
	for i := range out {
		out[i] = vecs[i*len(vecs)/limit]
	}
	return out
}
