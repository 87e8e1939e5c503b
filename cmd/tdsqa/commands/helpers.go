package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/tdsqa-go/internal/chunker"
	"github.com/54b3r/tdsqa-go/internal/config"
	"github.com/54b3r/tdsqa-go/internal/describe"
	"github.com/54b3r/tdsqa-go/internal/discourse"
	"github.com/54b3r/tdsqa-go/internal/embedder"
	"github.com/54b3r/tdsqa-go/internal/index"
	"github.com/54b3r/tdsqa-go/internal/ingestion"
	"github.com/54b3r/tdsqa-go/internal/provider"
	"github.com/54b3r/tdsqa-go/internal/rag"
	"github.com/54b3r/tdsqa-go/internal/store"
)

// Retrieval backends accepted by --backend and RETRIEVAL_BACKEND.
const (
	backendMemory = "memory"
	backendQdrant = "qdrant"
)

// newEmbedder validates the embedding configuration and builds the client
// shared by build, search, ask, and serve.
func newEmbedder(ctx context.Context, log *slog.Logger) (*embedder.Client, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewClientFromEnv(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("backend", embedder.Backend()),
		slog.String("model", emb.Model()),
	)
	return emb, nil
}

// newChatModel builds the answer model. It returns a nil model and no error
// when MODEL_PROVIDER=none; callers fall back to extractive answers.
func newChatModel(ctx context.Context, log *slog.Logger) (model.BaseChatModel, *provider.Config, error) {
	cfg := provider.ConfigFromEnv()
	m, err := provider.New(ctx, cfg)
	if errors.Is(err, provider.ErrDisabled) {
		log.Info("chat model disabled, answers will be extractive")
		return nil, cfg, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(cfg.Backend)),
		slog.String("model", cfg.ModelName()),
	)
	return m, cfg, nil
}

// newBuilder returns an index builder configured from TDSQA_CHUNK_MAX_TOKENS
// and TDSQA_INDEX_CONCURRENCY.
func newBuilder(emb ingestion.Embedder, cfg *ingestion.Config) (*ingestion.Builder, error) {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = config.Int("TDSQA_CHUNK_MAX_TOKENS", chunker.DefaultMaxTokens)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = config.Int("TDSQA_INDEX_CONCURRENCY", ingestion.DefaultConcurrency)
	}
	return ingestion.NewBuilder(emb, cfg)
}

// indexPaths returns the --index flag values, else TDSQA_INDEX_PATHS.
func indexPaths(flag []string) []string {
	if len(flag) > 0 {
		return flag
	}
	return config.List("TDSQA_INDEX_PATHS")
}

// loadStore loads and merges the index artifacts and checks that they were
// built with the embedding model that will embed queries.
func loadStore(paths []string, embModel string, log *slog.Logger) (*index.Store, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no index artifacts: pass --index or set TDSQA_INDEX_PATHS")
	}
	st, err := index.Load(paths, &index.LoadOptions{
		AllowPartial: config.Bool("TDSQA_INDEX_ALLOW_PARTIAL", false),
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}
	if st.Model() != "" && embModel != "" && st.Model() != embModel {
		return nil, fmt.Errorf("%w: index built with %q, queries embedded with %q",
			index.ErrModelMismatch, st.Model(), embModel)
	}
	log.Info("index loaded",
		slog.Int("records", st.Len()),
		slog.Int("dimension", st.Dimension()),
		slog.Any("sources", st.Sources()),
	)
	return st, nil
}

// scoring returns the RETRIEVAL_SCORING function (default cosine).
func scoring() (rag.Scoring, error) {
	return rag.ParseScoring(config.String("RETRIEVAL_SCORING", "cosine"))
}

// openQdrant connects to the configured collection and checks it against the
// scoring and embedding model in use. vectorSize is only needed when the
// collection may have to be created.
func openQdrant(ctx context.Context, vectorSize int, embModel string) (*rag.QdrantStore, error) {
	sc, err := scoring()
	if err != nil {
		return nil, err
	}
	cfg := qdrantConfig(vectorSize)
	cfg.Scoring = sc
	qs, err := rag.NewQdrantStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := qs.Verify(ctx, embModel); err != nil {
		_ = qs.Close()
		return nil, err
	}
	return qs, nil
}

// qdrantConfig reads the QDRANT_* settings.
func qdrantConfig(vectorSize int) *rag.QdrantConfig {
	return &rag.QdrantConfig{
		Host:       config.String("QDRANT_HOST", "localhost"),
		Port:       config.Int("QDRANT_PORT", 6334),
		Collection: config.String("QDRANT_COLLECTION", "tdsqa"),
		VectorSize: uint64(max(vectorSize, 0)), //nolint:gosec // non-negative by construction
		APIKey:     config.String("QDRANT_API_KEY", ""),
		UseTLS:     config.Bool("QDRANT_TLS", false),
	}
}

// discourseConfig reads the DISCOURSE_* settings.
func discourseConfig() *discourse.Config {
	return &discourse.Config{
		BaseURL:  config.String("DISCOURSE_BASE_URL", ""),
		Username: config.String("DISCOURSE_USERNAME", ""),
		Password: config.String("DISCOURSE_PASSWORD", ""),
		Cookie:   config.String("DISCOURSE_COOKIE", ""),
		Category: config.String("DISCOURSE_CATEGORY", ""),
		DateFrom: config.String("DISCOURSE_DATE_FROM", ""),
		DateTo:   config.String("DISCOURSE_DATE_TO", ""),
		Rate:     config.Float("DISCOURSE_RATE", discourse.DefaultRate),
	}
}

// newDiscourseClient builds a forum client. Without DISCOURSE_COOKIE it signs
// in through a headless browser when credentials are configured.
func newDiscourseClient(ctx context.Context, cfg *discourse.Config, log *slog.Logger) (*discourse.Client, error) {
	client, err := discourse.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.Cookie != "" {
		return client, nil
	}
	if cfg.Username == "" {
		log.Warn("discourse: no cookie or credentials configured, requests are anonymous")
		return client, nil
	}
	log.Info("discourse: signing in with headless browser", slog.String("user", cfg.Username))
	sess, err := discourse.LoginWithBrowser(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client.SetSession(sess)
	return client, nil
}

// imageRef turns a local image path into a data URL. Anything else (URL, data
// URL, raw base64) is passed through for the describer to validate.
func imageRef(arg string) (string, error) {
	if fi, err := os.Stat(arg); err == nil && !fi.IsDir() {
		return describe.FileDataURL(arg)
	}
	return arg, nil
}

// openHistory opens the query log. TDSQA_HISTORY_DB overrides the default
// path (~/.tdsqa/history.db); "disabled" turns logging off. Failures disable
// the log with a warning. The returned close function is always non-nil.
func openHistory(log *slog.Logger) (store.QueryLog, func()) {
	dbPath := config.String("TDSQA_HISTORY_DB", "")
	if dbPath == "disabled" {
		log.Info("history: disabled via TDSQA_HISTORY_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
		dbPath = p
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}
