package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// httpCheck is a HealthChecker that issues a token-free GET against a
// backend's model-listing endpoint.
type httpCheck struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// HealthCheck returns nil when the endpoint answers 2xx.
func (h *httpCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// NewHealthCheck returns a token-free probe for cfg's backend, or nil when the
// backend has no listing endpoint (ark) or is disabled.
func NewHealthCheck(cfg *Config) HealthChecker {
	client := &http.Client{Timeout: 5 * time.Second}
	switch cfg.Backend {
	case BackendOllama:
		return &httpCheck{url: strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags", client: client}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &httpCheck{
			url:     strings.TrimRight(base, "/") + "/models",
			headers: map[string]string{"Authorization": "Bearer " + cfg.OpenAI.APIKey},
			client:  client,
		}
	case BackendAzure:
		az := cfg.AzureOpenAI
		return &httpCheck{
			url:     strings.TrimRight(az.Endpoint, "/") + "/openai/models?api-version=" + url.QueryEscape(az.APIVersion),
			headers: map[string]string{"api-key": az.APIKey},
			client:  client,
		}
	case BackendGemini:
		return &httpCheck{
			url:    "https://generativelanguage.googleapis.com/v1beta/models?key=" + url.QueryEscape(cfg.Gemini.APIKey),
			client: client,
		}
	}
	return nil
}
