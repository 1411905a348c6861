package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/edna/internal/artifact"
	"github.com/hyperjump/edna/internal/classify"
	"github.com/hyperjump/edna/internal/config"
	"github.com/hyperjump/edna/internal/fasta"
	"github.com/hyperjump/edna/internal/models"
	"github.com/hyperjump/edna/internal/novelty"
	"github.com/hyperjump/edna/internal/report"
	"github.com/hyperjump/edna/internal/storage"
	"go.uber.org/zap"
)

// Report file names written for each run.
const (
	TaxonomyFile = "taxonomy.tsv"
	TopKFile     = "topk.json"
	SummaryFile  = "summary.json"
	WorkbookFile = "report.xlsx"
)

// Options controls one analysis. Zero TopK and nil Tau take the configured defaults.
type Options struct {
	TopK    int
	Tau     *float64
	Cluster bool
	Source  string
}

// Analysis is the outcome of one batch.
type Analysis struct {
	Run      *models.Run       `json:"run"`
	Summary  classify.Summary  `json:"summary"`
	Records  []classify.Record `json:"results"`
	Clusters *ClusterOutput    `json:"clusters,omitempty"`
	// ReportDir is empty when no output directory is configured.
	ReportDir string `json:"report_dir,omitempty"`
}

// ClusterOutput is the per-query clustering of a batch.
type ClusterOutput struct {
	OverallSilhouette *float64          `json:"overall_silhouette"`
	Clusters          int               `json:"clusters"`
	Noise             int               `json:"noise"`
	Eps               float64           `json:"eps"`
	Results           []novelty.Labeled `json:"results"`
}

func newClusterOutput(res *novelty.Result, ids []string) *ClusterOutput {
	return &ClusterOutput{
		OverallSilhouette: res.OverallSilhouette,
		Clusters:          res.Clusters,
		Noise:             res.Noise,
		Eps:               res.Eps,
		Results:           res.Label(ids),
	}
}

// Analyzer classifies and clusters ASV batches and records them as runs.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	classifier *classify.Classifier
	clusterer  novelty.Clusterer
	store      storage.Storage
	defaults   config.ClassifyConfig
	opts       options
}

// NewAnalyzer creates an analyzer. store may be nil to skip run history.
func NewAnalyzer(c *classify.Classifier, cl novelty.Clusterer, store storage.Storage, defaults config.ClassifyConfig, opts ...Option) *Analyzer {
	return &Analyzer{
		classifier: c,
		clusterer:  cl,
		store:      store,
		defaults:   defaults,
		opts:       applyOptions(opts),
	}
}

// Classifier returns the underlying classifier.
func (a *Analyzer) Classifier() *classify.Classifier {
	return a.classifier
}

// AnalyzeFile analyzes a FASTA file with default options; the run is named after the file.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = a.Analyze(ctx, filepath.Base(path), f, Options{Source: path})
	return err
}

// Analyze reads a FASTA batch from r and analyzes it.
func (a *Analyzer) Analyze(ctx context.Context, name string, r io.Reader, opts Options) (*Analysis, error) {
	records, err := fasta.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", classify.ErrInvalidRequest, err)
	}
	ids := make([]string, len(records))
	seqs := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		seqs[i] = rec.Sequence
	}
	return a.AnalyzeSequences(ctx, name, ids, seqs, opts)
}

// AnalyzeSequences classifies seqs, clusters them when asked, writes the reports and
// stores the run. A failed step leaves neither a stored run nor a report directory.
func (a *Analyzer) AnalyzeSequences(ctx context.Context, name string, ids, seqs []string, opts Options) (*Analysis, error) {
	if len(ids) != len(seqs) {
		return nil, fmt.Errorf("%w: %d ids for %d sequences", classify.ErrInvalidRequest, len(ids), len(seqs))
	}
	topk := opts.TopK
	if topk == 0 {
		topk = a.defaults.DefaultTopK
	}
	tau := a.defaults.DefaultTau
	if opts.Tau != nil {
		tau = *opts.Tau
	}

	normalized, vecs, err := a.classifier.Embed(ctx, seqs)
	if err != nil {
		return nil, err
	}
	records, err := a.classifier.ClassifyVectors(ctx, normalized, vecs, topk, tau)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].ID = ids[i]
	}

	out := &Analysis{
		Records: records,
		Summary: classify.Summarize(records, a.classifier.Metric(), topk, tau),
	}
	if opts.Cluster {
		res, err := a.clusterer.Cluster(ctx, vecs)
		if err != nil {
			return nil, fmt.Errorf("cluster batch: %w", err)
		}
		out.Clusters = newClusterOutput(res, ids)
	}

	out.Run = &models.Run{
		ID:        uuid.New().String(),
		Name:      name,
		Source:    opts.Source,
		Total:     out.Summary.Total,
		Assigned:  out.Summary.Assigned,
		Rejected:  out.Summary.Rejected,
		Tau:       tau,
		TopK:      topk,
		Metric:    out.Summary.Metric,
		Clustered: opts.Cluster,
		CreatedAt: time.Now(),
	}
	if a.opts.outputDir != "" {
		dir, err := a.writeReports(ctx, out)
		if err != nil {
			return nil, err
		}
		out.ReportDir = dir
	}
	if err := a.persist(ctx, out, seqs); err != nil {
		if out.ReportDir != "" {
			_ = os.RemoveAll(out.ReportDir)
		}
		return nil, err
	}

	a.opts.logger.Info("analysis complete",
		zap.String("run_id", out.Run.ID),
		zap.String("name", name),
		zap.Int("total", out.Summary.Total),
		zap.Int("assigned", out.Summary.Assigned),
		zap.Int("rejected", out.Summary.Rejected),
		zap.Bool("clustered", opts.Cluster))
	return out, nil
}

// Cluster embeds seqs and clusters them without classifying or storing anything.
func (a *Analyzer) Cluster(ctx context.Context, ids, seqs []string) (*ClusterOutput, error) {
	if len(ids) != len(seqs) {
		return nil, fmt.Errorf("%w: %d ids for %d sequences", classify.ErrInvalidRequest, len(ids), len(seqs))
	}
	_, vecs, err := a.classifier.Embed(ctx, seqs)
	if err != nil {
		return nil, err
	}
	res, err := a.clusterer.Cluster(ctx, vecs)
	if err != nil {
		return nil, fmt.Errorf("cluster batch: %w", err)
	}
	return newClusterOutput(res, ids), nil
}

func (a *Analyzer) persist(ctx context.Context, out *Analysis, seqs []string) error {
	if a.store == nil {
		return nil
	}
	runID := out.Run.ID
	if err := a.store.CreateRun(ctx, out.Run); err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	rows := make([]*models.Classification, len(out.Records))
	for i, rec := range out.Records {
		topk := make([]models.RankedHit, len(rec.TopK))
		for j, h := range rec.TopK {
			topk[j] = models.RankedHit{RefID: h.RefID, Similarity: h.Similarity, Phylum: h.Phylum, Class: h.Class}
		}
		rows[i] = &models.Classification{
			RunID:      runID,
			ASVID:      rec.ID,
			Position:   i,
			Sequence:   seqs[i],
			RefID:      rec.TopHit.RefID,
			Similarity: rec.TopHit.Similarity,
			Phylum:     rec.TopHit.Phylum,
			Class:      rec.TopHit.Class,
			IsReject:   rec.IsReject,
			TopK:       topk,
		}
	}
	if err := a.store.SaveClassifications(ctx, rows); err != nil {
		_ = a.store.DeleteRun(ctx, runID)
		return fmt.Errorf("store classifications: %w", err)
	}
	if out.Clusters == nil {
		return nil
	}
	clusters := make([]*models.ClusterAssignment, len(out.Clusters.Results))
	for i, l := range out.Clusters.Results {
		clusters[i] = &models.ClusterAssignment{
			RunID:      runID,
			ASVID:      l.ID,
			Position:   i,
			Cluster:    l.Cluster,
			Confidence: l.Confidence,
			Silhouette: l.Silhouette,
		}
	}
	if err := a.store.SaveClusters(ctx, clusters); err != nil {
		_ = a.store.DeleteRun(ctx, runID)
		return fmt.Errorf("store clusters: %w", err)
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// reportDirName is "<name>_<first 8 chars of run id>" with unsafe characters replaced.
func reportDirName(name, runID string) string {
	base := unsafeName.ReplaceAllString(name, "_")
	if base == "" || base == "." || base == ".." {
		base = "run"
	}
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return base + "_" + runID
}

func (a *Analyzer) writeReports(ctx context.Context, out *Analysis) (string, error) {
	dir := filepath.Join(a.opts.outputDir, reportDirName(out.Run.Name, out.Run.ID))
	fs, err := artifact.NewLocal(dir)
	if err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	rows := make([]report.Row, len(out.Records))
	for i, rec := range out.Records {
		rows[i] = report.Row{ASVID: rec.ID, Record: rec}
		if out.Clusters != nil {
			rows[i].Cluster = &out.Clusters.Results[i]
		}
	}
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{TaxonomyFile, func(w io.Writer) error { return report.WriteTaxonomyTSV(w, rows) }},
		{TopKFile, func(w io.Writer) error { return report.WriteTopKJSON(w, rows) }},
		{SummaryFile, func(w io.Writer) error { return report.WriteSummaryJSON(w, out.Summary) }},
		{WorkbookFile, func(w io.Writer) error { return report.WriteXLSX(w, rows, out.Summary) }},
	}
	for _, wr := range writers {
		if err := artifact.WriteWith(ctx, fs, wr.name, wr.write); err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("write %s: %w", wr.name, err)
		}
	}
	return fs.Root(), nil
}
