package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/tdsqa-go/internal/config"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check run before the embedder is constructed, so
// operators get a clear error at startup rather than a failure on the first
// embed call. It returns an error when required credentials are missing and
// logs a warning when EMBEDDING_MODEL looks like a chat model.
func Validate(log *slog.Logger) error {
	backend := Backend()

	if config.String("EMBEDDING_PROVIDER", "") == "" && backend != "ollama" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER as embedding backend",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER explicitly (ollama, openai, azure, gemini, aipipe)"),
		)
	}

	missing := func(keys ...string) bool {
		for _, k := range keys {
			if config.String(k, "") != "" {
				return false
			}
		}
		return true
	}

	switch backend {
	case "ollama":
	case "openai":
		if missing("EMBEDDING_API_KEY", "OPENAI_API_KEY") {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if missing("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY") {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if missing("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT") {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "gemini":
		if missing("EMBEDDING_API_KEY", "GOOGLE_API_KEY") {
			return fmt.Errorf("embedder: no Google API key found, set GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	case "aipipe":
		if missing("AIPIPE_TOKEN", "EMBEDDING_API_KEY") {
			return fmt.Errorf("embedder: no AIPipe token found, set AIPIPE_TOKEN")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, gemini, aipipe)", backend)
	}

	if model := config.String("EMBEDDING_MODEL", ""); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
	return nil
}
