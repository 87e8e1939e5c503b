// Package config provides YAML-based configuration for tdsqa.
// Configuration is loaded with a layered precedence: defaults → YAML file →
// .env file → process environment. The process environment always wins, so
// every setting can be overridden per invocation.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. TDSQA_CONFIG environment variable
//  3. ~/.tdsqa/config.yaml
//  4. ./tdsqa.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model used for answers and image captions.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Index configures index artifacts and the builder.
	Index IndexConfig `yaml:"index"`

	// Retrieval configures query-time ranking.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Discourse configures the forum scrape collaborator.
	Discourse DiscourseConfig `yaml:"discourse"`

	// Qdrant configures the optional Qdrant mirror.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures the query log.
	History HistoryConfig `yaml:"history"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini, none.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`
	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`
	// Ark holds Volcengine Ark settings.
	Ark ArkConfig `yaml:"ark"`
	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// BaseURL points the client at an OpenAI-compatible proxy.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini, aipipe).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Instruction is prepended to every embedded text.
	Instruction string `yaml:"instruction"`
	// Timeout bounds each embedding call (e.g. "60s").
	Timeout string `yaml:"timeout"`
	// BreakerThreshold is the number of consecutive failures that opens the
	// embedding circuit breaker. Zero disables the breaker.
	BreakerThreshold int `yaml:"breaker_threshold"`
	// AIPipeToken authenticates against the AIPipe proxy. Prefer env var AIPIPE_TOKEN.
	AIPipeToken string `yaml:"aipipe_token"`
}

// IndexConfig holds index artifact and builder settings.
type IndexConfig struct {
	// Paths lists the artifacts loaded by serve, search, and ask.
	Paths []string `yaml:"paths"`
	// Out is the artifact written by build when --out is not given.
	Out string `yaml:"out"`
	// Concurrency bounds the number of documents embedded in parallel.
	Concurrency int `yaml:"concurrency"`
	// MaxTokens is the chunker word budget.
	MaxTokens int `yaml:"max_tokens"`
	// AllowPartial lets the store start when some artifacts are missing.
	AllowPartial bool `yaml:"allow_partial"`
}

// RetrievalConfig holds query-time ranking settings.
type RetrievalConfig struct {
	// TopK is the number of passages retrieved per question.
	TopK int `yaml:"top_k"`
	// Scoring is cosine or dot.
	Scoring string `yaml:"scoring"`
	// LinkCount caps the number of source links returned.
	LinkCount int `yaml:"link_count"`
	// Backend selects memory (default) or qdrant.
	Backend string `yaml:"backend"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var TDSQA_API_KEY.
	APIKey string `yaml:"api_key"`
	// RequestTimeout is the end-to-end budget for one question (e.g. "30s").
	RequestTimeout string `yaml:"request_timeout"`
	// LiveFetch enables per-request forum fetching merged into the base index.
	LiveFetch bool `yaml:"live_fetch"`
	// RateLimit is the sustained per-IP request rate.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst.
	RateBurst int `yaml:"rate_burst"`
}

// DiscourseConfig holds the forum scrape settings.
type DiscourseConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	// Password is the forum password. Prefer env var DISCOURSE_PASSWORD.
	Password string `yaml:"password"`
	// Cookie is a pre-authenticated Cookie header. Prefer env var DISCOURSE_COOKIE.
	Cookie string `yaml:"cookie"`
	// Category is the search category filter (e.g. "courses:tds-kb").
	Category string `yaml:"category"`
	// DateFrom and DateTo bound the search window (YYYY-MM-DD).
	DateFrom string `yaml:"date_from"`
	DateTo   string `yaml:"date_to"`
	// Rate is the maximum number of API requests per second.
	Rate float64 `yaml:"rate"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds query log settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_INSTRUCTION", func(c *Config) string { return c.Embedding.Instruction }},
	{"EMBEDDING_TIMEOUT", func(c *Config) string { return c.Embedding.Timeout }},
	{"EMBEDDING_BREAKER_THRESHOLD", func(c *Config) string { return intStr(c.Embedding.BreakerThreshold) }},
	{"AIPIPE_TOKEN", func(c *Config) string { return c.Embedding.AIPipeToken }},
	{"TDSQA_INDEX_PATHS", func(c *Config) string { return listStr(c.Index.Paths) }},
	{"TDSQA_INDEX_OUT", func(c *Config) string { return c.Index.Out }},
	{"TDSQA_INDEX_CONCURRENCY", func(c *Config) string { return intStr(c.Index.Concurrency) }},
	{"TDSQA_CHUNK_MAX_TOKENS", func(c *Config) string { return intStr(c.Index.MaxTokens) }},
	{"TDSQA_INDEX_ALLOW_PARTIAL", func(c *Config) string { return boolStr(c.Index.AllowPartial) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_SCORING", func(c *Config) string { return c.Retrieval.Scoring }},
	{"RETRIEVAL_LINK_COUNT", func(c *Config) string { return intStr(c.Retrieval.LinkCount) }},
	{"RETRIEVAL_BACKEND", func(c *Config) string { return c.Retrieval.Backend }},
	{"TDSQA_HOST", func(c *Config) string { return c.Server.Host }},
	{"TDSQA_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"TDSQA_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"TDSQA_REQUEST_TIMEOUT", func(c *Config) string { return c.Server.RequestTimeout }},
	{"TDSQA_LIVE_FETCH", func(c *Config) string { return boolStr(c.Server.LiveFetch) }},
	{"TDSQA_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"TDSQA_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"DISCOURSE_BASE_URL", func(c *Config) string { return c.Discourse.BaseURL }},
	{"DISCOURSE_USERNAME", func(c *Config) string { return c.Discourse.Username }},
	{"DISCOURSE_PASSWORD", func(c *Config) string { return c.Discourse.Password }},
	{"DISCOURSE_COOKIE", func(c *Config) string { return c.Discourse.Cookie }},
	{"DISCOURSE_CATEGORY", func(c *Config) string { return c.Discourse.Category }},
	{"DISCOURSE_DATE_FROM", func(c *Config) string { return c.Discourse.DateFrom }},
	{"DISCOURSE_DATE_TO", func(c *Config) string { return c.Discourse.DateTo }},
	{"DISCOURSE_RATE", func(c *Config) string { return float64Str(c.Discourse.Rate) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"TDSQA_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// LoadDotEnv loads each existing .env-style file into the process
// environment without overriding variables that are already set. Missing
// files are skipped. It returns the files that were applied.
func LoadDotEnv(log *slog.Logger, paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, fmt.Errorf("config: failed to load %s: %w", p, err)
		}
		loaded = append(loaded, p)
		log.Debug("config: loaded dotenv file", slog.String("path", p))
	}
	return loaded, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("TDSQA_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".tdsqa", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("tdsqa.yaml"); err == nil {
		return "tdsqa.yaml"
	}

	return ""
}

// String returns the value of key, or fallback when unset or empty.
func String(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Int returns the integer value of key, or fallback when unset or unparseable.
func Int(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// Float returns the float value of key, or fallback when unset or unparseable.
func Float(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Bool reports whether key is set to a true value per [strconv.ParseBool].
func Bool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// Duration returns the duration value of key, or fallback when unset or
// unparseable. Bare integers are read as seconds.
func Duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// List splits a comma-separated value into trimmed, non-empty items.
func List(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	return float64Str(float64(v))
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// listStr joins a YAML list into the comma-separated env form.
func listStr(v []string) string {
	return strings.Join(v, ",")
}
