// Package main is the edna CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hyperjump/edna/internal/cli"
	"github.com/hyperjump/edna/internal/config"
	"github.com/hyperjump/edna/internal/fasta"
	"github.com/hyperjump/edna/internal/models"
	"github.com/hyperjump/edna/internal/pipeline"
	"github.com/hyperjump/edna/internal/server"
	"github.com/hyperjump/edna/internal/watcher"
	"github.com/hyperjump/edna/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/edna/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "build":
		runBuild()
	case "classify":
		runClassify()
	case "cluster":
		runCluster()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("edna version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads the config and creates the logger shared by every subcommand.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger, bool) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	return cfg, resolved, logger, debugMode
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, debugMode := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var inbox *watcher.Inbox
	if len(cfg.Watch.Directories) > 0 {
		opts := []watcher.Option{watcher.WithLogger(logger)}
		if cfg.Watch.OutputDir != "" {
			opts = append(opts, watcher.WithIgnore(cfg.Watch.OutputDir))
		}
		inbox = watcher.NewInbox(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			components.Analyzer.AnalyzeFile,
			opts...,
		)
		if err := inbox.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		inbox.SyncExisting()
	}

	var inboxSvc server.InboxService
	if inbox != nil {
		inboxSvc = inbox
	}
	srv := server.NewServer(components.Analyzer, components.Labels, components.Storage, cfg, logger, inboxSvc)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if inbox != nil {
		inbox.Stop()
		inbox.Wait()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	references := fs.String("references", "", "reference FASTA file (required)")
	labels := fs.String("labels", "", "label table: accession, taxid, scientific_name, phylum, class (tab-separated, with header)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if *references == "" && fs.NArg() > 0 {
		*references = fs.Arg(0)
	}
	if *references == "" {
		fmt.Println("Usage: edna build [flags] --references refs.fasta [--labels labels.tsv]")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	cfg, _, logger, debugMode := setup(*configPath, *debug)
	defer logger.Sync()

	refFile, err := os.Open(*references)
	if err != nil {
		fatalf("Failed to open references: %v", err)
	}
	defer refFile.Close()
	in := pipeline.BuildInput{References: refFile}
	if *labels != "" {
		labelFile, err := os.Open(*labels)
		if err != nil {
			fatalf("Failed to open labels: %v", err)
		}
		defer labelFile.Close()
		in.Labels = labelFile
	}

	builder, closeBuilder, err := initializeBuilder(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize builder", zap.Error(err))
	}
	defer closeBuilder()

	rep, err := builder.Build(context.Background(), in)
	if err != nil {
		fatalf("Build failed: %v", err)
	}
	if err := cli.WriteBuildReport(os.Stdout, rep, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops
// at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' && a != "-" {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// readSequences reads a FASTA file, or stdin for "-".
func readSequences(path string, stdin io.Reader) ([]models.SequenceInput, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	records, err := fasta.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no sequences", path)
	}
	out := make([]models.SequenceInput, len(records))
	for i, rec := range records {
		out[i] = models.SequenceInput{ID: rec.ID, Sequence: rec.Sequence}
	}
	return out, nil
}

// tauOrDefault returns nil for a negative tau so the server default applies.
func tauOrDefault(tau float64) *float64 {
	if tau < 0 {
		return nil
	}
	return &tau
}

func runClassify() {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = classify directly against the local reference)")
	seq := fs.String("seq", "", "classify a single sequence instead of a FASTA file")
	topk := fs.Int("topk", 0, "number of hits per sequence (default from config)")
	tau := fs.Float64("tau", -1, "acceptance threshold in [0,1] (default from config)")
	cluster := fs.Bool("cluster", false, "also cluster the batch to flag candidate novel taxa")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	var seqs []models.SequenceInput
	name := "cli"
	switch {
	case *seq != "":
		seqs = []models.SequenceInput{{ID: "seq_1", Sequence: *seq}}
	case fs.NArg() > 0:
		name = filepath.Base(fs.Arg(0))
		if seqs, err = readSequences(fs.Arg(0), os.Stdin); err != nil {
			fatalf("Failed to read sequences: %v", err)
		}
	default:
		fmt.Println("Usage: edna classify [flags] <file.fasta | -> or edna classify --seq ACGT...")
		os.Exit(1)
	}
	req := &models.BatchRequest{Sequences: seqs, TopK: *topk, Tau: tauOrDefault(*tau), Cluster: *cluster}

	var res cli.ClassifyResult
	if *serverURL != "" {
		if err := cli.NewClient(*serverURL).PostJSON("/api/v1/classify/batch", req, &res); err != nil {
			fatalf("Classify failed: %v", err)
		}
	} else {
		cfg, _, logger, debugMode := setup(*configPath, false)
		defer logger.Sync()
		if err := req.Validate(cfg.Classify.DefaultTopK, cfg.Classify.DefaultTau); err != nil {
			fatalf("Invalid request: %v", err)
		}
		components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
		if err != nil {
			fatalf("Failed to initialize: %v", err)
		}
		defer components.Close()
		out, err := components.Analyzer.AnalyzeSequences(context.Background(), name, req.IDs(), req.Seqs(), pipeline.Options{
			TopK:    req.TopK,
			Tau:     req.Tau,
			Cluster: req.Cluster,
			Source:  "cli",
		})
		if err != nil {
			fatalf("Classify failed: %v", err)
		}
		res = cli.ClassifyResult{RunID: out.Run.ID, Summary: out.Summary, Results: out.Records, Clusters: out.Clusters}
	}
	if err := cli.WriteClassifyResult(os.Stdout, &res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runCluster() {
	fs := flag.NewFlagSet("cluster", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = cluster directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: edna cluster [flags] <file.fasta | ->")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	seqs, err := readSequences(fs.Arg(0), os.Stdin)
	if err != nil {
		fatalf("Failed to read sequences: %v", err)
	}
	req := &models.BatchRequest{Sequences: seqs}

	var out *pipeline.ClusterOutput
	if *serverURL != "" {
		out = &pipeline.ClusterOutput{}
		if err := cli.NewClient(*serverURL).PostJSON("/api/v1/cluster", req, out); err != nil {
			fatalf("Cluster failed: %v", err)
		}
	} else {
		cfg, _, logger, debugMode := setup(*configPath, false)
		defer logger.Sync()
		if err := req.Validate(cfg.Classify.DefaultTopK, cfg.Classify.DefaultTau); err != nil {
			fatalf("Invalid request: %v", err)
		}
		components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
		if err != nil {
			fatalf("Failed to initialize: %v", err)
		}
		defer components.Close()
		if out, err = components.Analyzer.Cluster(context.Background(), req.IDs(), req.Seqs()); err != nil {
			fatalf("Cluster failed: %v", err)
		}
	}
	if err := cli.WriteClusters(os.Stdout, out, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func printUsage() {
	fmt.Println(`edna - ASV taxonomic classification against an IVF-PQ reference index

Usage:
  edna server [flags]                 Start the HTTP server (and the FASTA inbox watcher)
  edna build [flags] --references f   Build the reference index and catalog
  edna classify [flags] <file|->      Classify ASVs from a FASTA file
  edna cluster [flags] <file|->       Cluster ASVs to flag candidate novel taxa
  edna status [flags]                 Show index, catalog and run history status
  edna version                        Show version
  edna help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/edna/config.yaml)
  --debug            Enable debug logging

Build Flags:
  --config string      Config file path
  --references string  Reference FASTA file
  --labels string      Label table (accession, taxid, scientific_name, phylum, class)
  --output string      Output format: text or json (default: text)

Classify Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to classify directly.
  --seq string       Classify one sequence instead of a file
  --topk int         Hits per sequence (default from config)
  --tau float        Acceptance threshold in [0,1] (default from config)
  --cluster          Also cluster the batch
  --output string    Output format: text or json (default: text)

Cluster Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to cluster directly.
  --output string    Output format: text or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct mode.
  --output string    Output format: text or json (default: text)

Examples:
  edna build --references silva.fasta --labels silva_taxonomy.tsv
  edna server
  edna classify asvs.fasta
  edna classify --seq ACGTACGT --topk 5 --tau 0.8
  edna classify --cluster --output json asvs.fasta
  edna cluster asvs.fasta
  edna status --output json`)
}
