package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/tdsqa-go/internal/config"
	"github.com/54b3r/tdsqa-go/internal/logging"
	"github.com/54b3r/tdsqa-go/internal/server"
	"github.com/54b3r/tdsqa-go/internal/tracing"
)

// NewServeCmd constructs the `tdsqa serve` command, which loads the index and
// starts the HTTP answer service.
func NewServeCmd() *cobra.Command {
	var (
		host    string
		port    int
		indexes []string
		backend string
		live    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP answer service",
		Long: `Load the index artifacts and serve questions over HTTP.

Endpoints:
  POST /api/        {"question": "...", "image": "<base64|data URL|URL>", "url": "..."}
  GET  /            liveness and version
  GET  /api/ready   dependency readiness (embedder, index, qdrant, LLM)
  GET  /metrics     Prometheus metrics

Examples:
  tdsqa serve
  tdsqa serve --port 9000 --index data/index/discourse.idx.gz --index data/index/course.idx.gz
  tdsqa serve --live
  RETRIEVAL_BACKEND=qdrant tdsqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush, ok := tracing.Install()
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			if !cmd.Flags().Changed("live") {
				live = config.Bool("TDSQA_LIVE_FETCH", false)
			}
			asm, err := buildPipeline(ctx, pipelineOptions{indexPaths: indexes, backend: backend, live: live}, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer asm.Close()

			history, closeHistory := openHistory(log)
			defer closeHistory()

			if !cmd.Flags().Changed("host") {
				host = config.String("TDSQA_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = config.Int("TDSQA_PORT", port)
			}

			srv, err := server.New(asm.pipeline, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   asm.pingers,
				RateLimit: config.Float("TDSQA_RATE_LIMIT", 0),
				RateBurst: config.Int("TDSQA_RATE_BURST", 0),
				APIKey:    config.String("TDSQA_API_KEY", ""),
				History:   history,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: TDSQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (env: TDSQA_PORT)")
	cmd.Flags().StringArrayVar(&indexes, "index", nil, "Index artifact to load (repeatable, env: TDSQA_INDEX_PATHS)")
	cmd.Flags().StringVar(&backend, "backend", "", "Retrieval backend: memory or qdrant (env: RETRIEVAL_BACKEND)")
	cmd.Flags().BoolVar(&live, "live", false, "Fetch and index matching forum posts for every question (env: TDSQA_LIVE_FETCH)")

	return cmd
}
