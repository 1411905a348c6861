package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hyperjump/edna/internal/catalog"
	"github.com/hyperjump/edna/internal/classify"
	"github.com/hyperjump/edna/internal/config"
	"github.com/hyperjump/edna/internal/embedding"
	"github.com/hyperjump/edna/internal/labelindex"
	"github.com/hyperjump/edna/internal/novelty"
	"github.com/hyperjump/edna/internal/pipeline"
	"github.com/hyperjump/edna/internal/storage"
	"github.com/hyperjump/edna/internal/vector"
	"go.uber.org/zap"
)

type mockInbox struct{ dirs []string }

func (m *mockInbox) Directories() []string { return m.dirs }

type fixture struct {
	srv     *Server
	handler http.Handler
	store   *storage.SQLiteStorage
	emb     *embedding.MockEmbedder
}

func newFixture(t *testing.T, withLabels bool) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := vector.NewFlatIndex(2, vector.MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	refs := [][]float32{{0, 0}, {10, 10}, {10, 10.1}}
	if err := idx.Train(ctx, refs, vector.TrainConfig{}); err != nil {
		t.Fatal(err)
	}
	slots, err := idx.Add(ctx, refs, 0)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Attach(slots, []string{"v1", "v2", "v3"}, map[string]catalog.Labels{
		"v2": {Phylum: "Proteobacteria", Class: "Gammaproteobacteria", ScientificName: "Escherichia coli"},
		"v3": {Phylum: "Firmicutes", Class: "Bacilli", ScientificName: "Bacillus subtilis"},
	})
	if err != nil {
		t.Fatal(err)
	}

	emb := embedding.NewMockEmbedder(2)
	emb.Vectors = map[string][]float32{"ACGT": {10, 10.05}, "TTTT": {100, 100}}
	c, err := classify.NewClassifier(idx, cat, emb)
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Classify.DefaultTopK = 2
	cfg.Classify.DefaultTau = 0.4
	cfg.Storage.DatabasePath = filepath.Join(dir, "runs.db")
	cfg.Storage.LabelIndexPath = ""
	cfg.Storage.Artifacts.Dir = dir

	var labels labelindex.LabelIndex
	if withLabels {
		li, err := labelindex.NewBleveIndex("")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = li.Close() })
		if err := li.Index(ctx, cat.Entries()); err != nil {
			t.Fatal(err)
		}
		labels = li
	}

	analyzer := pipeline.NewAnalyzer(c, novelty.Clusterer{Eps: 1, MinPoints: 1}, store, cfg.Classify)
	srv := NewServer(analyzer, labels, store, cfg, zap.NewNop(), &mockInbox{dirs: []string{"/data/inbox"}})
	return &fixture{srv: srv, handler: srv.Router(), store: store, emb: emb}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestHandleClassify(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodPost, "/classify", map[string]any{"sequence": "acgu"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body)
	}
	var rec classify.Record
	decodeBody(t, w, &rec)
	if !rec.Accepted || rec.TopHit.RefID != "v3" || len(rec.TopK) != 2 || rec.TopK[1].RefID != "v2" {
		t.Errorf("record = %+v, want v3 then v2 accepted", rec)
	}

	w = f.do(t, http.MethodPost, "/classify", map[string]any{"sequence": "TTTT", "tau": 0.4})
	decodeBody(t, w, &rec)
	if rec.IsReject != 1 {
		t.Errorf("distant query should be rejected: %+v", rec)
	}
}

func TestHandleClassify_Errors(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		name string
		body any
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"empty sequence", map[string]any{"sequence": "  "}, http.StatusBadRequest},
		{"tau out of range", map[string]any{"sequence": "ACGT", "tau": 2}, http.StatusBadRequest},
		{"negative topk", map[string]any{"sequence": "ACGT", "topk": -1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/classify", tt.body)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
			var out map[string]string
			decodeBody(t, w, &out)
			if out["error"] == "" {
				t.Error("expected error message")
			}
		})
	}

	f.emb.Err = errors.New("model offline")
	if w := f.do(t, http.MethodPost, "/classify", map[string]any{"sequence": "ACGT"}); w.Code != http.StatusInternalServerError {
		t.Errorf("embedder failure: got %d, want 500", w.Code)
	}
}

func TestHandleClassifyBatch(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodPost, "/api/v1/classify/batch", map[string]any{
		"sequences": []map[string]string{{"id": "asv1", "sequence": "ACGT"}, {"sequence": "TTTT"}},
		"cluster":   true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body)
	}
	var out batchResponse
	decodeBody(t, w, &out)
	if out.RunID == "" || out.Summary.Total != 2 || out.Summary.Assigned != 1 {
		t.Errorf("response = %+v", out)
	}
	if out.Results[1].ID != "seq_2" {
		t.Errorf("missing id should default to seq_2, got %q", out.Results[1].ID)
	}
	if out.Clusters == nil || len(out.Clusters.Results) != 2 {
		t.Errorf("clusters = %+v", out.Clusters)
	}

	w = f.do(t, http.MethodGet, "/api/v1/runs/"+out.RunID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get run: %d", w.Code)
	}
	var run struct {
		Run             map[string]any   `json:"run"`
		Classifications []map[string]any `json:"classifications"`
		Clusters        []map[string]any `json:"clusters"`
	}
	decodeBody(t, w, &run)
	if len(run.Classifications) != 2 || len(run.Clusters) != 2 {
		t.Errorf("run detail = %+v", run)
	}

	w = f.do(t, http.MethodGet, "/api/v1/runs?limit=5", nil)
	var list struct {
		Runs []map[string]any `json:"runs"`
	}
	decodeBody(t, w, &list)
	if len(list.Runs) != 1 {
		t.Errorf("runs = %d, want 1", len(list.Runs))
	}

	if w := f.do(t, http.MethodGet, "/api/v1/runs/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown run: got %d, want 404", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/classify/batch", map[string]any{"sequences": []any{}}); w.Code != http.StatusBadRequest {
		t.Errorf("empty batch: got %d, want 400", w.Code)
	}
}

func TestHandleCluster(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodPost, "/api/v1/cluster", map[string]any{
		"sequences": []map[string]string{{"id": "a", "sequence": "ACGT"}, {"id": "b", "sequence": "TTTT"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body)
	}
	var out clusterResponse
	decodeBody(t, w, &out)
	if len(out.Results) != 2 || out.Results[0].ID != "a" || out.Clusters != 2 {
		t.Errorf("response = %+v", out)
	}
	if n, _ := f.store.CountRuns(context.Background()); n != 0 {
		t.Errorf("clustering alone must not store runs, got %d", n)
	}
}

func TestHandleReferences(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(t, http.MethodGet, "/api/v1/references/v3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var entry catalog.ReferenceEntry
	decodeBody(t, w, &entry)
	if entry.Phylum != "Firmicutes" || entry.Slot != 2 {
		t.Errorf("entry = %+v", entry)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/references/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown reference: got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/v1/references?q=bacillus", nil)
	var out struct {
		Results []referenceHit `json:"results"`
	}
	decodeBody(t, w, &out)
	if len(out.Results) != 1 || out.Results[0].ExternalID != "v3" {
		t.Errorf("search results = %+v", out.Results)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/references", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q: got %d", w.Code)
	}
}

func TestHandleReferences_NotEnabled(t *testing.T) {
	f := newFixture(t, false)
	if w := f.do(t, http.MethodGet, "/api/v1/references?q=x", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodPost, "/api/v1/classify/batch", map[string]any{
		"sequences": []map[string]string{{"sequence": "ACGT"}},
	})

	w := f.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]any
	decodeBody(t, w, &out)
	if out["runs"].(float64) != 1 || out["classifications"].(float64) != 1 || out["references"].(float64) != 3 {
		t.Errorf("counts = %v", out)
	}
	if _, ok := out["disk_usage_bytes"]; !ok {
		t.Error("expected disk_usage_bytes")
	}
	cfg := out["config"].(map[string]any)
	if dirs := cfg["watch_directories"].([]any); len(dirs) != 1 {
		t.Errorf("watch_directories = %v", dirs)
	}
	if out["label_documents"].(float64) != 3 {
		t.Errorf("label_documents = %v", out["label_documents"])
	}
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}
