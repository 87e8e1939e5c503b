// Package provider selects and constructs the eino chat model used for
// answer generation and image captioning.
// Supported backends: Ollama, OpenAI, Azure OpenAI, Volcengine Ark, Google Gemini.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDisabled is returned by NewFromEnv when MODEL_PROVIDER=none. Callers fall
// back to extractive answers and skip image captioning.
var ErrDisabled = errors.New("provider: chat model disabled")

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API or an OpenAI-compatible proxy.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendNone disables the chat model.
	BackendNone Backend = "none"
)

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	APIKey string
	Model  string
	// BaseURL points at an OpenAI-compatible proxy. Empty uses api.openai.com.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// SharedTuning holds generation parameters common to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is read.
type Config struct {
	Backend     Backend
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini
	Tuning      SharedTuning
}

// Validate reports the first missing setting for the selected backend, naming
// the env var that supplies it.
func (c *Config) Validate() error {
	need := func(v, env string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("provider: %s backend requires %s", c.Backend, env)
		}
		return nil
	}

	var checks []error
	switch c.Backend {
	case BackendOllama:
		checks = []error{need(c.Ollama.Host, "OLLAMA_HOST"), need(c.Ollama.Model, "OLLAMA_MODEL")}
	case BackendOpenAI:
		checks = []error{need(c.OpenAI.APIKey, "OPENAI_API_KEY"), need(c.OpenAI.Model, "OPENAI_MODEL")}
	case BackendAzure:
		checks = []error{
			need(c.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY"),
			need(c.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT"),
			need(c.AzureOpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT"),
		}
	case BackendArk:
		checks = []error{need(c.Ark.APIKey, "ARK_API_KEY"), need(c.Ark.Model, "ARK_MODEL")}
	case BackendGemini:
		checks = []error{need(c.Gemini.APIKey, "GOOGLE_API_KEY"), need(c.Gemini.Model, "GEMINI_MODEL")}
	case BackendNone:
		return nil
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, ark, gemini, none)", c.Backend)
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// ModelName returns the model or deployment the config selects.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	}
	return ""
}

// HealthChecker probes a backend without spending tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
