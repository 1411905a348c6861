package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const remoteMaxBatch = 2048

// RemoteEmbedder calls an OpenAI-compatible /embeddings endpoint that serves a DNA
// language model. Sequences are normalized before they are sent.
type RemoteEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewRemoteEmbedder creates a remote embedder. baseURL may be empty for the default endpoint.
func NewRemoteEmbedder(baseURL, apiKey, model string, dimensions int) (*RemoteEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("remote embedder needs a model name")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("remote embedder needs positive dimensions")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &RemoteEmbedder{client: &client, model: model, dimensions: dimensions}, nil
}

// Embed returns the embedding for a single sequence.
func (r *RemoteEmbedder) Embed(ctx context.Context, seq string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{seq})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embeddings for seqs, splitting requests above the API batch limit.
func (r *RemoteEmbedder) EmbedBatch(ctx context.Context, seqs []string) ([][]float32, error) {
	if len(seqs) == 0 {
		return nil, ErrEmptyInput
	}
	normalized := make([]string, len(seqs))
	for i, s := range seqs {
		normalized[i] = NormalizeSequence(s)
		if normalized[i] == "" {
			return nil, fmt.Errorf("sequence %d: %w", i, ErrEmptyInput)
		}
	}

	out := make([][]float32, len(seqs))
	for i := 0; i < len(normalized); i += remoteMaxBatch {
		end := min(i+remoteMaxBatch, len(normalized))
		vecs, err := r.call(ctx, normalized[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		copy(out[i:], vecs)
	}
	return out, nil
}

func (r *RemoteEmbedder) call(ctx context.Context, seqs []string) ([][]float32, error) {
	resp, err := r.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          r.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: seqs},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(seqs))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(seqs)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", item.Index, len(seqs))
		}
		if len(item.Embedding) != r.dimensions {
			return nil, fmt.Errorf("%w: got %d values, expected %d", ErrDimension, len(item.Embedding), r.dimensions)
		}
		v := make([]float32, len(item.Embedding))
		for j, f := range item.Embedding {
			v[j] = float32(f)
		}
		vecs[item.Index] = v
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}

// Dimensions returns the configured vector length.
func (r *RemoteEmbedder) Dimensions() int {
	return r.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (r *RemoteEmbedder) Close() error {
	return nil
}
