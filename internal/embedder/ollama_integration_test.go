//go:build integration

package embedder

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"
)

// TestOllamaClient_Integration embeds two passages through a Client backed by
// a locally running Ollama instance.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve   (or it must already be running)
//
// Run with:
//
//	go test -tags=integration -run TestOllamaClient_Integration ./internal/embedder/
//
// In CI, set OLLAMA_HOST if Ollama is not on localhost:11434.
func TestOllamaClient_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text"
	}

	c := NewClient(NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model}), &ClientConfig{
		Timeout: 30 * time.Second,
	})

	ctx := context.Background()
	a, err := c.Embed(ctx, "Graded assignment 1 is due on Sunday at midnight IST.")
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	b, err := c.Embed(ctx, "Use uv to install the Python dependencies for the project.")
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}

	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("dimensions: %d vs %d", len(a), len(b))
	}
	if slices.Equal(a, b) {
		t.Error("distinct passages produced identical vectors")
	}
	t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d to pin it)", c.Model(), len(a), len(a))
}
