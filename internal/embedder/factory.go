package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/tdsqa-go/internal/config"
	"github.com/54b3r/tdsqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"
)

// Backend returns the effective embedding backend: EMBEDDING_PROVIDER, else
// MODEL_PROVIDER, else ollama. A chat provider with no embedding API
// (ark, none) falls back to ollama.
func Backend() string {
	backend := config.String("EMBEDDING_PROVIDER", "")
	if backend != "" {
		return backend
	}
	switch p := config.String("MODEL_PROVIDER", "ollama"); p {
	case "ark", "none":
		return "ollama"
	default:
		return p
	}
}

// NewFromEnv constructs a batch rag.Embedder using cascading defaults that
// inherit from the chat provider configuration when embedding-specific
// overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER (default: ollama)
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS requests a vector size where the backend supports it
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	dims := config.Int("EMBEDDING_DIMENSIONS", 0)
	timeout := config.Duration("EMBEDDING_TIMEOUT", DefaultTimeout)

	switch backend := Backend(); backend {
	case "ollama":
		host := config.String("EMBEDDING_ENDPOINT", config.String("OLLAMA_HOST", "http://localhost:11434"))
		return NewOllamaEmbedder(&OllamaConfig{
			Host:    host,
			Model:   config.String("EMBEDDING_MODEL", defaultOllamaModel),
			Timeout: timeout,
		}), nil

	case "openai":
		apiKey := config.String("EMBEDDING_API_KEY", config.String("OPENAI_API_KEY", ""))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    config.String("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      config.String("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
			Timeout:    timeout,
		}), nil

	case "azure":
		apiKey := config.String("EMBEDDING_API_KEY", config.String("AZURE_OPENAI_API_KEY", ""))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := config.String("EMBEDDING_ENDPOINT", config.String("AZURE_OPENAI_ENDPOINT", ""))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      config.String("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
			Azure:      true,
			APIVersion: config.String("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
			Timeout:    timeout,
		}), nil

	case "gemini":
		apiKey := config.String("EMBEDDING_API_KEY", config.String("GOOGLE_API_KEY", ""))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      config.String("EMBEDDING_MODEL", defaultGeminiModel),
			Dimensions: dims,
		})

	case "aipipe":
		token := config.String("AIPIPE_TOKEN", config.String("EMBEDDING_API_KEY", ""))
		if token == "" {
			return nil, fmt.Errorf("embedder: aipipe requires AIPIPE_TOKEN or EMBEDDING_API_KEY")
		}
		return NewAIPipeEmbedder(&AIPipeConfig{
			Token:      token,
			BaseURL:    config.String("EMBEDDING_ENDPOINT", DefaultAIPipeBaseURL),
			Model:      config.String("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: dims,
			Timeout:    timeout,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, gemini, aipipe)", backend)
	}
}

// NewClientFromEnv builds the backend from the environment and wraps it in a
// Client configured by EMBEDDING_TIMEOUT, EMBEDDING_INSTRUCTION,
// EMBEDDING_DIMENSIONS and EMBEDDING_BREAKER_THRESHOLD.
func NewClientFromEnv(ctx context.Context, log *slog.Logger) (*Client, error) {
	backend, err := NewFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return NewClient(backend, &ClientConfig{
		Timeout:          config.Duration("EMBEDDING_TIMEOUT", DefaultTimeout),
		Instruction:      config.String("EMBEDDING_INSTRUCTION", ""),
		Dimensions:       config.Int("EMBEDDING_DIMENSIONS", 0),
		BreakerThreshold: config.Int("EMBEDDING_BREAKER_THRESHOLD", 0),
		Logger:           log,
	}), nil
}
