package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func embeddingServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		// reversed order to check the client reorders by index
		for i := range req.Input {
			vec := make([]float64, dims)
			vec[0] = float64(len(req.Input[i]))
			data[len(req.Input)-1-i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestRemoteEmbedder_EmbedBatch(t *testing.T) {
	srv := embeddingServer(t, 4)
	defer srv.Close()

	e, err := NewRemoteEmbedder(srv.URL, "test-key", "nt-v2", 4)
	if err != nil {
		t.Fatalf("NewRemoteEmbedder: %v", err)
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"ACG", "ACGTACGT"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs[0][0] != 3 || vecs[1][0] != 8 {
		t.Errorf("vectors not index-aligned: %v", vecs)
	}
}

func TestRemoteEmbedder_DimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, 3)
	defer srv.Close()

	e, _ := NewRemoteEmbedder(srv.URL, "k", "nt-v2", 4)
	if _, err := e.Embed(context.Background(), "ACGT"); !errors.Is(err, ErrDimension) {
		t.Errorf("got %v, want ErrDimension", err)
	}
}

func TestNewRemoteEmbedder_Validation(t *testing.T) {
	if _, err := NewRemoteEmbedder("", "k", "", 4); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := NewRemoteEmbedder("", "k", "m", 0); err == nil {
		t.Error("expected error for zero dimensions")
	}
}
