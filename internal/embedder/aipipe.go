package embedder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultAIPipeBaseURL is the OpenAI-compatible endpoint of the AIPipe proxy.
const DefaultAIPipeBaseURL = "https://aipipe.org/openai/v1"

// AIPipeEmbedder implements rag.Embedder against an OpenAI-compatible proxy
// using the go-openai SDK.
type AIPipeEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// AIPipeConfig holds the settings for constructing an AIPipeEmbedder.
type AIPipeConfig struct {
	// Token authenticates against the proxy.
	Token string
	// BaseURL overrides DefaultAIPipeBaseURL.
	BaseURL string
	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Timeout bounds each HTTP request. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// NewAIPipeEmbedder constructs an AIPipeEmbedder.
func NewAIPipeEmbedder(cfg *AIPipeConfig) *AIPipeEmbedder {
	oc := openai.DefaultConfig(cfg.Token)
	oc.BaseURL = DefaultAIPipeBaseURL
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	return &AIPipeEmbedder{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Model returns the embedding model name.
func (e *AIPipeEmbedder) Model() string { return e.model }

// Embed converts a batch of texts into their corresponding embeddings.
func (e *AIPipeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("aipipe embedder: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("aipipe embedder: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("aipipe embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		vec := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			vec[i] = float32(x)
		}
		out[d.Index] = vec
	}
	return out, nil
}
