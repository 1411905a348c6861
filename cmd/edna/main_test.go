package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/edna/internal/config"
	"github.com/hyperjump/edna/internal/pipeline"
	"go.uber.org/zap"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"flags first", []string{"--topk", "5", "a.fasta"}, []string{"--topk", "5", "a.fasta"}},
		{"flags after file", []string{"a.fasta", "--topk", "5"}, []string{"--topk", "5", "a.fasta"}},
		{"stdin dash is positional", []string{"-", "--output", "json"}, []string{"--output", "json", "-"}},
		{"no flags", []string{"a.fasta"}, []string{"a.fasta"}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := argsReorder(tt.args); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("argsReorder(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

func TestReadSequences(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asvs.fasta")
	if err := os.WriteFile(path, []byte(">asv1 sample=lake\nACGT\nACGT\n>asv2\nTTTT\n"), 0644); err != nil {
		t.Fatal(err)
	}
	seqs, err := readSequences(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 2 || seqs[0].ID != "asv1" || seqs[0].Sequence != "ACGTACGT" {
		t.Errorf("seqs = %+v", seqs)
	}

	seqs, err = readSequences("-", strings.NewReader(">x\nGG\n"))
	if err != nil || len(seqs) != 1 || seqs[0].ID != "x" {
		t.Errorf("stdin: %+v, %v", seqs, err)
	}
	if _, err := readSequences("-", strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := readSequences(filepath.Join(dir, "missing.fasta"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTauOrDefault(t *testing.T) {
	if tauOrDefault(-1) != nil {
		t.Error("negative tau should select the default")
	}
	if p := tauOrDefault(0); p == nil || *p != 0 {
		t.Error("explicit zero tau must be kept")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./runs.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "edna.yaml")
	content := `
server:
  port: 9000
index:
  metric: ip
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath || cfg.Server.Port != 9000 || cfg.Index.Metric != "ip" {
		t.Errorf("resolved = %s, cfg = %+v", resolved, cfg.Server)
	}
	if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 4
	cfg.Index.Nlist = 2
	cfg.Index.Segments = 2
	cfg.Index.BitsPerSegment = 2
	cfg.Storage.DatabasePath = filepath.Join(dir, "runs.db")
	cfg.Storage.LabelIndexPath = filepath.Join(dir, "labels")
	cfg.Storage.Artifacts.Dir = filepath.Join(dir, "reference")
	cfg.Watch.OutputDir = filepath.Join(dir, "out")
	config.ApplyDefaults(cfg)
	return cfg
}

func TestBuildThenInitializeComponents(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	logger := zap.NewNop()

	if _, err := initializeComponents(ctx, cfg, logger, false); err == nil {
		t.Fatal("expected error before the reference is built")
	}

	builder, closeBuilder, err := initializeBuilder(cfg, logger, true)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := builder.Build(ctx, pipeline.BuildInput{
		References: strings.NewReader(">r1\nACGTAC\n>r2\nTTGACA\n>r3\nGGGCCC\n>r4\nAATTAA\n"),
		Labels:     strings.NewReader("accession\ttaxid\tname\tphylum\tclass\nr1\t1\tx\tChordata\tMammalia\n"),
	})
	closeBuilder()
	if err != nil {
		t.Fatal(err)
	}
	if rep.References != 4 || rep.Labeled != 1 {
		t.Errorf("build report = %+v", rep)
	}

	c, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	out, err := c.Analyzer.AnalyzeSequences(ctx, "cli", []string{"q"}, []string{"ACGTAC"}, pipeline.Options{TopK: 1})
	if err != nil {
		t.Fatal(err)
	}
	if out.Records[0].TopHit.RefID != "r1" {
		t.Errorf("exact reference should be its own top hit, got %+v", out.Records[0].TopHit)
	}

	s, err := localStatus(ctx, cfg, c)
	if err != nil {
		t.Fatal(err)
	}
	if s.Runs != 1 || s.References != 4 || s.Index.Type != "ivfpq" {
		t.Errorf("status = %+v", s)
	}
	if s.LabelDocuments == nil || *s.LabelDocuments != 4 {
		t.Errorf("label documents = %v", s.LabelDocuments)
	}
}
