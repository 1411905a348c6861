package embedding

import (
	"testing"

	"github.com/hyperjump/edna/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EmbeddingConfig
		dims    int
		cached  bool
		wantErr bool
	}{
		{"kmer default", config.EmbeddingConfig{KmerSize: 3}, 64, false, false},
		{"kmer cached", config.EmbeddingConfig{Provider: "kmer", KmerSize: 2, CacheSize: 10}, 16, true, false},
		{"mock", config.EmbeddingConfig{Provider: "mock", Dimensions: 12}, 12, false, false},
		{"remote", config.EmbeddingConfig{Provider: "remote", Model: "m", Dimensions: 8, BaseURL: "http://localhost:1"}, 8, false, false},
		{"bad kmer", config.EmbeddingConfig{Provider: "kmer", KmerSize: 12}, 0, false, true},
		{"unknown", config.EmbeddingConfig{Provider: "word2vec"}, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer e.Close()
			if e.Dimensions() != tt.dims {
				t.Errorf("Dimensions = %d, want %d", e.Dimensions(), tt.dims)
			}
			if _, ok := e.(*CachedEmbedder); ok != tt.cached {
				t.Errorf("cached = %v, want %v", ok, tt.cached)
			}
		})
	}
}
