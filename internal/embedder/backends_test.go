package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/tdsqa-go/internal/logging"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			http.Error(w, "unexpected", http.StatusNotFound)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "nomic-embed-text" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[1][0] != 1 {
		t.Errorf("embeddings: %v", got)
	}

	bad := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "llama3"})
	_, err = bad.Embed(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("expected backend error message, got %v", err)
	}
}

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[2,2],"index":1},{"embedding":[1,1],"index":0}]}`))
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "text-embedding-3-small"})
	got, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Errorf("order: %v", got)
	}

	wrong := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "nope", Model: "m"})
	if _, err := wrong.Embed(context.Background(), []string{"x"}); err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestOpenAIEmbedder_AzureRouting(t *testing.T) {
	t.Parallel()

	var gotPath, gotVersion, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("api-key")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1],"index":0}]}`))
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL + "/openai",
		APIKey:     "az-key",
		Model:      "embed-deploy",
		Azure:      true,
		APIVersion: "2025-04-01-preview",
	})
	if _, err := e.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotPath != "/openai/deployments/embed-deploy/embeddings" || gotVersion != "2025-04-01-preview" || gotKey != "az-key" {
		t.Errorf("azure request: path=%q version=%q key=%q", gotPath, gotVersion, gotKey)
	}
}

func TestAIPipeEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" || r.Header.Get("Authorization") != "Bearer pipe-token" {
			http.Error(w, `{"error":{"message":"denied"}}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",` +
			`"data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],` +
			`"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	t.Cleanup(srv.Close)

	e := NewAIPipeEmbedder(&AIPipeConfig{Token: "pipe-token", BaseURL: srv.URL, Model: "text-embedding-3-small"})
	got, err := e.Embed(context.Background(), []string{"what is tds?"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 1 || len(got[0]) != 2 || got[0][0] != 0.5 {
		t.Errorf("embeddings: %v", got)
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  bool
	}{
		{"nomic-embed-text", false},
		{"text-embedding-3-small", false},
		{"gpt-4o-mini", true},
		{"llama3.1:8b", true},
		{"mxbai-embed-large", false},
	}
	for _, tc := range tests {
		if got := looksLikeChatModel(tc.model); got != tc.want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}

// The tests below mutate the process environment and cannot run in parallel.

func TestBackend_Resolution(t *testing.T) {
	tests := []struct {
		name      string
		embedding string
		model     string
		want      string
	}{
		{"explicit", "aipipe", "openai", "aipipe"},
		{"inherits chat provider", "", "gemini", "gemini"},
		{"chat-only provider falls back", "", "ark", "ollama"},
		{"no model provider", "", "none", "ollama"},
		{"default", "", "", "ollama"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("EMBEDDING_PROVIDER", tc.embedding)
			t.Setenv("MODEL_PROVIDER", tc.model)
			if got := Backend(); got != tc.want {
				t.Errorf("Backend() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidate_MissingCredentials(t *testing.T) {
	for _, k := range []string{"EMBEDDING_API_KEY", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT",
		"EMBEDDING_ENDPOINT", "GOOGLE_API_KEY", "AIPIPE_TOKEN", "EMBEDDING_MODEL", "MODEL_PROVIDER"} {
		t.Setenv(k, "")
	}
	log := logging.Discard()

	for _, backend := range []string{"openai", "azure", "gemini", "aipipe", "bogus"} {
		t.Setenv("EMBEDDING_PROVIDER", backend)
		if err := Validate(log); err == nil {
			t.Errorf("%s: expected error without credentials", backend)
		}
	}

	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	if err := Validate(log); err != nil {
		t.Errorf("ollama: %v", err)
	}

	t.Setenv("EMBEDDING_PROVIDER", "aipipe")
	t.Setenv("AIPIPE_TOKEN", "tok")
	if err := Validate(log); err != nil {
		t.Errorf("aipipe with token: %v", err)
	}
}

func TestNewFromEnv_SelectsBackend(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-x")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")

	e, err := NewFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	oe, ok := e.(*OpenAIEmbedder)
	if !ok {
		t.Fatalf("got %T, want *OpenAIEmbedder", e)
	}
	if oe.Model() != "text-embedding-3-large" {
		t.Errorf("model: %q", oe.Model())
	}

	t.Setenv("EMBEDDING_PROVIDER", "bedrock")
	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
