package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/tdsqa-go/internal/answer"
	"github.com/54b3r/tdsqa-go/internal/config"
	"github.com/54b3r/tdsqa-go/internal/convert"
	"github.com/54b3r/tdsqa-go/internal/describe"
	"github.com/54b3r/tdsqa-go/internal/embedder"
	"github.com/54b3r/tdsqa-go/internal/ingestion"
	"github.com/54b3r/tdsqa-go/internal/logging"
	"github.com/54b3r/tdsqa-go/internal/provider"
	"github.com/54b3r/tdsqa-go/internal/qa"
	"github.com/54b3r/tdsqa-go/internal/rag"
	"github.com/54b3r/tdsqa-go/internal/server"
)

// liveMaxTopics caps the forum topics fetched per question in live mode.
const liveMaxTopics = 5

// pipelineOptions selects how the question pipeline is assembled.
type pipelineOptions struct {
	// indexPaths overrides TDSQA_INDEX_PATHS.
	indexPaths []string
	// backend is memory or qdrant. Empty reads RETRIEVAL_BACKEND.
	backend string
	// live merges freshly fetched forum posts into every request.
	live bool
}

// assembly is a ready question pipeline plus what serve needs around it.
type assembly struct {
	pipeline *qa.Pipeline
	// pingers are the readiness probes for GET /api/ready.
	pingers []server.Pinger
	// closers release connections, in order.
	closers []func()
}

// Close releases every resource held by the assembly.
func (a *assembly) Close() {
	for _, c := range a.closers {
		c()
	}
}

// buildPipeline wires embedder, retrieval backend, answer model, image
// describer, URL extractor, and optional live forum fetching into one
// qa.Pipeline. ask and serve share it.
func buildPipeline(ctx context.Context, opts pipelineOptions, log *slog.Logger) (*assembly, error) {
	a := &assembly{}

	emb, err := newEmbedder(ctx, log)
	if err != nil {
		return nil, err
	}
	a.pingers = append(a.pingers, emb)

	chatModel, provCfg, err := newChatModel(ctx, log)
	if err != nil {
		return nil, err
	}

	sc, err := scoring()
	if err != nil {
		return nil, err
	}

	cfg := &qa.Config{
		Embedder:  emb,
		Extractor: describe.NewURLExtractor(0, 0),
		Scoring:   sc,
		TopK:      config.Int("RETRIEVAL_TOP_K", rag.DefaultTopK),
		LinkCount: config.Int("RETRIEVAL_LINK_COUNT", qa.DefaultLinkCount),
		Timeout:   config.Duration("TDSQA_REQUEST_TIMEOUT", qa.DefaultTimeout),
		Logger:    logging.Component(log, "qa"),
	}

	backend := opts.backend
	if backend == "" {
		backend = config.String("RETRIEVAL_BACKEND", backendMemory)
	}
	switch backend {
	case backendMemory:
		st, err := loadStore(indexPaths(opts.indexPaths), emb.Model(), log)
		if err != nil {
			return nil, err
		}
		searcher := rag.NewMemorySearcher(st, sc)
		cfg.Searcher = searcher
		a.pingers = append(a.pingers, server.PingerFunc("index", searcher.Ping))

		if opts.live {
			live, err := newLiveSource(ctx, emb, searcher, log)
			if err != nil {
				return nil, err
			}
			cfg.Live = live
		}
	case backendQdrant:
		qs, err := openQdrant(ctx, 0, emb.Model())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = qs.Close() })
		cfg.Searcher = qs
		a.pingers = append(a.pingers, server.NewQdrantPinger(qs.Client()))
		if opts.live {
			log.Warn("live fetch needs the memory backend, ignoring")
		}
	default:
		return nil, fmt.Errorf("unknown retrieval backend %q (valid: memory, qdrant)", backend)
	}

	if chatModel != nil {
		cfg.Generator = answer.NewChatGenerator(chatModel, 0, logging.Component(log, "answer"))
		cfg.Describer = describe.NewVisionDescriber(chatModel, "")
		if p := server.NewLLMPinger(provider.NewHealthCheck(provCfg), string(provCfg.Backend)); p != nil {
			a.pingers = append(a.pingers, p)
		}
	}

	p, err := qa.New(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p
	log.Info("pipeline ready",
		slog.String("backend", backend),
		slog.String("scoring", sc.String()),
		slog.Bool("live_fetch", cfg.Live != nil),
		slog.Bool("llm", chatModel != nil),
	)
	return a, nil
}

// newLiveSource prepares per-request forum fetching over the base store.
func newLiveSource(ctx context.Context, emb *embedder.Client, searcher *rag.MemorySearcher, log *slog.Logger) (*qa.LiveSource, error) {
	dcfg := discourseConfig()
	dcfg.MaxTopics = liveMaxTopics
	client, err := newDiscourseClient(ctx, dcfg, log)
	if err != nil {
		return nil, fmt.Errorf("live fetch: %w", err)
	}
	builder, err := newBuilder(emb, &ingestion.Config{Logger: logging.Component(log, "live")})
	if err != nil {
		return nil, err
	}
	return &qa.LiveSource{
		Fetcher:   client,
		Converter: convert.New(dcfg.BaseURL, log),
		Builder:   builder,
		Base:      searcher.Store(),
	}, nil
}
