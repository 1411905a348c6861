package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/hyperjump/edna/internal/artifact"
	"github.com/hyperjump/edna/internal/classify"
	"github.com/hyperjump/edna/internal/cli"
	"github.com/hyperjump/edna/internal/config"
	"github.com/hyperjump/edna/internal/embedding"
	"github.com/hyperjump/edna/internal/labelindex"
	"github.com/hyperjump/edna/internal/novelty"
	"github.com/hyperjump/edna/internal/pipeline"
	"github.com/hyperjump/edna/internal/storage"
	"github.com/hyperjump/edna/internal/vector"
	"github.com/hyperjump/edna/pkg/utils"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	Index    vector.VectorIndex
	Labels   labelindex.LabelIndex
	Analyzer *pipeline.Analyzer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Labels != nil {
		_ = c.Labels.Close()
	}
}

// initializeComponents loads the persisted reference once and wires the services
// that serve it. The index and catalog are read-only from here on.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	if c.Embedder, err = embedding.New(cfg.Embedding); err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	artifacts, err := artifact.New(cfg.Storage.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	idx, cat, err := pipeline.LoadReference(ctx, artifacts, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference (run edna build first): %w", err)
	}
	c.Index = idx
	logger.Info("reference loaded",
		zap.String("type", idx.Type()),
		zap.String("metric", string(idx.Metric())),
		zap.Int("references", cat.Len()),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	classifyOpts := []classify.Option{
		classify.WithNprobe(cfg.Index.Nprobe),
		classify.WithBatchSize(cfg.Embedding.BatchSize),
		classify.WithMaxTopK(cfg.Classify.MaxTopK),
	}
	if debug {
		classifyOpts = append(classifyOpts, classify.WithLogger(logger))
	}
	classifier, err := classify.NewClassifier(idx, cat, c.Embedder, classifyOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	if labels, err := labelindex.NewBleveIndex(cfg.Storage.LabelIndexPath); err != nil {
		logger.Warn("label search disabled", zap.String("path", cfg.Storage.LabelIndexPath), zap.Error(err))
	} else {
		c.Labels = labels
	}

	c.Analyzer = pipeline.NewAnalyzer(
		classifier,
		novelty.Clusterer{Eps: cfg.Cluster.Eps, MinPoints: cfg.Cluster.MinPoints},
		store,
		cfg.Classify,
		pipeline.WithLogger(logger),
		pipeline.WithOutputDir(cfg.Watch.OutputDir),
	)
	ok = true
	return c, nil
}

// initializeBuilder wires the offline build job. The returned func releases the
// embedder and label index.
func initializeBuilder(cfg *config.Config, logger *zap.Logger, debug bool) (*pipeline.Builder, func(), error) {
	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	artifacts, err := artifact.New(cfg.Storage.Artifacts)
	if err != nil {
		_ = emb.Close()
		return nil, nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	labels, err := labelindex.NewBleveIndex(cfg.Storage.LabelIndexPath)
	if err != nil {
		_ = emb.Close()
		return nil, nil, fmt.Errorf("failed to initialize label index: %w", err)
	}
	opts := []pipeline.Option{pipeline.WithLabelIndex(labels)}
	if debug {
		opts = append(opts, pipeline.WithLogger(logger))
	}
	closeFn := func() {
		_ = labels.Close()
		_ = emb.Close()
	}
	return pipeline.NewBuilder(emb, artifacts, cfg, opts...), closeFn, nil
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Runs            int64          `json:"runs"`
	Classifications int64          `json:"classifications"`
	References      int            `json:"references"`
	LabelDocuments  *uint64        `json:"label_documents,omitempty"`
	Index           vector.Stats   `json:"index"`
	DiskUsageBytes  *int64         `json:"disk_usage_bytes,omitempty"`
	Config          map[string]any `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read local files directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	var status statusResponse
	if *serverURL != "" {
		if err := cli.NewClient(*serverURL).GetJSON("/api/v1/status", &status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		cfg, _, logger, debugMode := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
		if err != nil {
			fatalf("Failed to initialize: %v", err)
		}
		defer components.Close()
		status, err = localStatus(context.Background(), cfg, components)
		if err != nil {
			fatalf("Status failed: %v", err)
		}
	}

	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	printStatus(status)
}

func localStatus(ctx context.Context, cfg *config.Config, c *Components) (statusResponse, error) {
	runs, err := c.Storage.CountRuns(ctx)
	if err != nil {
		return statusResponse{}, fmt.Errorf("count runs: %w", err)
	}
	calls, err := c.Storage.CountClassifications(ctx)
	if err != nil {
		return statusResponse{}, fmt.Errorf("count classifications: %w", err)
	}
	s := statusResponse{
		Runs:            runs,
		Classifications: calls,
		References:      c.Analyzer.Classifier().Catalog().Len(),
		Index:           c.Index.Stats(),
		Config: map[string]any{
			"embedding_provider": cfg.Embedding.Provider,
			"nprobe":             cfg.Index.Nprobe,
			"default_topk":       cfg.Classify.DefaultTopK,
			"default_tau":        cfg.Classify.DefaultTau,
			"database_path":      cfg.Storage.DatabasePath,
			"label_index_path":   cfg.Storage.LabelIndexPath,
			"artifact_backend":   cfg.Storage.Artifacts.Backend,
		},
	}
	if c.Labels != nil {
		if n, err := c.Labels.DocCount(); err == nil {
			s.LabelDocuments = &n
		}
	}
	paths := []string{cfg.Storage.DatabasePath, cfg.Storage.LabelIndexPath}
	if cfg.Storage.Artifacts.Backend == "local" {
		paths = append(paths, cfg.Storage.Artifacts.Dir)
	}
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		s.DiskUsageBytes = &diskBytes
	}
	return s, nil
}

func printStatus(s statusResponse) {
	fmt.Printf("runs:               %d   # analyses in run history\n", s.Runs)
	fmt.Printf("classifications:    %d   # stored per-ASV calls\n", s.Classifications)
	fmt.Printf("references:         %d   # catalog entries\n", s.References)
	if s.LabelDocuments != nil {
		fmt.Printf("label_documents:    %d   # entries in label search\n", *s.LabelDocuments)
	}
	if s.DiskUsageBytes != nil {
		fmt.Printf("disk_usage:         %s\n", utils.FormatBytes(*s.DiskUsageBytes))
	}
	fmt.Println()
	fmt.Println("# index")
	fmt.Printf("type:               %s (%s, %d dims)\n", s.Index.Type, s.Index.Metric, s.Index.Dimensions)
	if s.Index.Nlist > 0 {
		fmt.Printf("nlist:              %d (lists %d..%d, %d empty)\n", s.Index.Nlist, s.Index.MinListSize, s.Index.MaxListSize, s.Index.EmptyLists)
		fmt.Printf("pq:                 %d segments x %d bits, refine %t\n", s.Index.Segments, s.Index.BitsPerSegment, s.Index.Refine)
		fmt.Printf("compression_ratio:  %.1f\n", s.Index.CompressionRatio)
	}
	fmt.Printf("memory:             %s\n", utils.FormatBytes(s.Index.MemoryBytes))
	if len(s.Config) > 0 {
		fmt.Println()
		fmt.Println("# configuration")
		for _, key := range []string{"embedding_provider", "nprobe", "default_topk", "default_tau", "database_path", "label_index_path", "artifact_backend", "artifact_dir", "watch_directories"} {
			if v, ok := s.Config[key]; ok {
				fmt.Printf("%-19s %v\n", key+":", v)
			}
		}
	}
}
