package embedding

import (
	"fmt"

	"github.com/hyperjump/edna/internal/config"
)

// New builds the embedder named by cfg.Provider and wraps it in a cache when
// cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "kmer", "":
		e, err = NewKmerEmbedder(cfg.KmerSize)
	case "onnx":
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "remote":
		e, err = NewRemoteEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (supported: kmer, onnx, remote, mock)", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.Provider, err)
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
	return e, nil
}
