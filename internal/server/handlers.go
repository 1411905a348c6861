package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/edna/internal/catalog"
	"github.com/hyperjump/edna/internal/classify"
	"github.com/hyperjump/edna/internal/labelindex"
	"github.com/hyperjump/edna/internal/models"
	"github.com/hyperjump/edna/internal/novelty"
	"github.com/hyperjump/edna/internal/pipeline"
	"github.com/hyperjump/edna/internal/storage"
	"go.uber.org/zap"
)

const maxBodyBytes = 32 << 20

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail maps a pipeline error to a status. Request errors are the caller's fault;
// everything else, including catalog corruption, is a server error.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, classify.ErrInvalidRequest) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req models.ClassifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(s.config.Classify.DefaultTopK, s.config.Classify.DefaultTau); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("classify request", zap.Int("length", len(req.Sequence)), zap.Int("topk", req.TopK))
	rec, err := s.analyzer.Classifier().ClassifyOne(r.Context(), req.Sequence, req.TopK, *req.Tau)
	if err != nil {
		s.fail(w, "classify", err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

type batchResponse struct {
	RunID    string                  `json:"run_id"`
	Summary  classify.Summary        `json:"summary"`
	Results  []classify.Record       `json:"results"`
	Clusters *pipeline.ClusterOutput `json:"clusters,omitempty"`
}

func (s *Server) handleClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(s.config.Classify.DefaultTopK, s.config.Classify.DefaultTau); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("batch classify request", zap.Int("sequences", len(req.Sequences)), zap.Bool("cluster", req.Cluster))
	res, err := s.analyzer.AnalyzeSequences(r.Context(), "api", req.IDs(), req.Seqs(), pipeline.Options{
		TopK:    req.TopK,
		Tau:     req.Tau,
		Cluster: req.Cluster,
		Source:  "api",
	})
	if err != nil {
		s.fail(w, "batch classify", err)
		return
	}
	s.respondJSON(w, http.StatusOK, batchResponse{
		RunID:    res.Run.ID,
		Summary:  res.Summary,
		Results:  res.Records,
		Clusters: res.Clusters,
	})
}

type clusterResponse struct {
	OverallSilhouette *float64          `json:"overall_silhouette"`
	Clusters          int               `json:"clusters"`
	Noise             int               `json:"noise"`
	Results           []novelty.Labeled `json:"results"`
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(s.config.Classify.DefaultTopK, s.config.Classify.DefaultTau); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.analyzer.Cluster(r.Context(), req.IDs(), req.Seqs())
	if err != nil {
		s.fail(w, "cluster", err)
		return
	}
	s.respondJSON(w, http.StatusOK, clusterResponse{
		OverallSilhouette: out.OverallSilhouette,
		Clusters:          out.Clusters,
		Noise:             out.Noise,
		Results:           out.Results,
	})
}

func (s *Server) handleGetReference(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.analyzer.Classifier().Catalog().ByExternalID(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "reference not found")
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

type referenceHit struct {
	catalog.ReferenceEntry
	Score float64 `json:"score"`
}

func (s *Server) handleSearchReferences(w http.ResponseWriter, r *http.Request) {
	if s.labels == nil {
		s.respondError(w, http.StatusNotImplemented, "label search not enabled")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := queryInt(r, "limit", 10)
	opts := &labelindex.SearchOptions{Fuzzy: r.URL.Query().Get("fuzzy") == "true"}
	results, err := s.labels.Search(r.Context(), q, limit, opts)
	if err != nil {
		s.fail(w, "reference search", err)
		return
	}
	cat := s.analyzer.Classifier().Catalog()
	hits := make([]referenceHit, 0, len(results))
	for _, res := range results {
		entry, ok := cat.ByExternalID(res.RefID)
		if !ok {
			continue
		}
		hits = append(hits, referenceHit{ReferenceEntry: entry, Score: res.Score})
	}
	resp := map[string]any{"query": q, "results": hits}
	if len(hits) == 0 {
		if suggestions, err := s.labels.Suggest(q, 2, 5); err == nil && len(suggestions) > 0 {
			resp["suggestions"] = suggestions
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.storage.ListRuns(r.Context(), queryInt(r, "offset", 0), queryInt(r, "limit", 20))
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	run, err := s.storage.GetRun(ctx, id)
	if errors.Is(err, storage.ErrRunNotFound) {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.fail(w, "get run", err)
		return
	}
	rows, err := s.storage.GetClassifications(ctx, id)
	if err != nil {
		s.fail(w, "get classifications", err)
		return
	}
	clusters, err := s.storage.GetClusters(ctx, id)
	if err != nil {
		s.fail(w, "get clusters", err)
		return
	}
	resp := map[string]any{"run": run, "classifications": rows}
	if len(clusters) > 0 {
		resp["clusters"] = clusters
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runCount, err := s.storage.CountRuns(ctx)
	if err != nil {
		s.fail(w, "status: count runs", err)
		return
	}
	classified, err := s.storage.CountClassifications(ctx)
	if err != nil {
		s.fail(w, "status: count classifications", err)
		return
	}
	c := s.analyzer.Classifier()
	resp := map[string]any{
		"runs":            runCount,
		"classifications": classified,
		"references":      c.Catalog().Len(),
		"index":           c.Index().Stats(),
	}
	if s.labels != nil {
		if n, err := s.labels.DocCount(); err == nil {
			resp["label_documents"] = n
		}
	}

	cfg := s.config
	configInfo := map[string]any{
		"embedding_provider":   cfg.Embedding.Provider,
		"embedding_dimensions": c.Index().Dimensions(),
		"nprobe":               cfg.Index.Nprobe,
		"default_topk":         cfg.Classify.DefaultTopK,
		"default_tau":          cfg.Classify.DefaultTau,
		"database_path":        cfg.Storage.DatabasePath,
		"label_index_path":     cfg.Storage.LabelIndexPath,
		"artifact_backend":     cfg.Storage.Artifacts.Backend,
	}
	paths := []string{cfg.Storage.DatabasePath, cfg.Storage.LabelIndexPath}
	if cfg.Storage.Artifacts.Backend == "local" {
		configInfo["artifact_dir"] = cfg.Storage.Artifacts.Dir
		paths = append(paths, cfg.Storage.Artifacts.Dir)
	}
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	if s.inbox != nil {
		configInfo["watch_directories"] = s.inbox.Directories()
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
