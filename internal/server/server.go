// Package server implements the HTTP API in front of the question pipeline.
// The server is started by the `tdsqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/tdsqa-go/internal/logging"
	"github.com/54b3r/tdsqa-go/internal/qa"
	"github.com/54b3r/tdsqa-go/internal/store"
	"github.com/54b3r/tdsqa-go/internal/version"
)

// defaultMaxBodyBytes bounds POST /api/ bodies when Config.MaxBodyBytes is zero.
const defaultMaxBodyBytes = 10 << 20

// historyTimeout bounds the query log write after a response is sent.
const historyTimeout = 2 * time.Second

// New constructs a Server that answers questions with asker.
func New(asker Asker, cfg *Config) (*Server, error) {
	if asker == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	log = logging.Component(log, "server")

	if cfg.APIKey == "" {
		log.Warn("server: TDSQA_API_KEY is not set, POST /api/ is unauthenticated")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)

	s := &Server{
		asker:   asker,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
		stopRL:  stopRL,
	}

	ask := authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleAsk)))

	mux := http.NewServeMux()
	s.route(mux, "POST /api/", "ask", ask)
	s.route(mux, "POST /api", "ask", ask)
	s.route(mux, "OPTIONS /api/", "preflight", http.HandlerFunc(s.handlePreflight))
	s.route(mux, "OPTIONS /api", "preflight", http.HandlerFunc(s.handlePreflight))
	s.route(mux, "GET /api/ready", "ready", http.HandlerFunc(s.handleReady))
	s.route(mux, "GET /{$}", "root", http.HandlerFunc(s.handleRoot))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, cors(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped handler tree. Tests drive it through
// httptest without binding a port.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// route registers h under pattern, instrumented under the given handler label.
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.Handler) {
	mux.Handle(pattern, s.instrument(name, h))
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/. The body is a qa.Request and the reply a
// qa.Response, or an errorResponse with the status chosen by statusFor.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	s.metrics.askInFlight.Inc()
	defer s.metrics.askInFlight.Dec()

	var req qa.Request
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("ask: invalid request body", slog.Any("error", err))
		s.finish(r.Context(), req, nil, store.OutcomeBadInput, start)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.asker.Ask(r.Context(), req)
	status, outcome := statusFor(err)
	s.finish(r.Context(), req, resp, outcome, start)

	if err != nil {
		msg := err.Error()
		if status == http.StatusInternalServerError {
			log.Error("ask: pipeline failed", slog.Any("error", err))
			msg = "internal error"
		} else {
			log.Info("ask: request rejected",
				slog.Int("status", status),
				slog.String("reason", msg),
			)
		}
		writeError(w, status, msg)
		return
	}

	log.Info("ask: answered",
		slog.Int("links", len(resp.Links)),
		slog.Duration("duration", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps a pipeline error to an HTTP status and query log outcome.
func statusFor(err error) (int, store.Outcome) {
	switch {
	case err == nil:
		return http.StatusOK, store.OutcomeOK
	case errors.Is(err, qa.ErrBadInput):
		return http.StatusBadRequest, store.OutcomeBadInput
	case errors.Is(err, qa.ErrNoContext):
		return http.StatusNotFound, store.OutcomeNoContext
	case errors.Is(err, qa.ErrTimeout):
		return http.StatusGatewayTimeout, store.OutcomeTimeout
	default:
		return http.StatusInternalServerError, store.OutcomeError
	}
}

// finish records metrics and, when configured, a query log entry.
func (s *Server) finish(ctx context.Context, req qa.Request, resp *qa.Response, outcome store.Outcome, start time.Time) {
	elapsed := time.Since(start)
	s.metrics.askRequestsTotal.WithLabelValues(string(outcome)).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())

	if s.cfg.History == nil {
		return
	}
	entry := store.Entry{Question: req.Question, Outcome: outcome, Latency: elapsed}
	if resp != nil {
		entry.Answer = resp.Answer
		for _, l := range resp.Links {
			entry.Links = append(entry.Links, l.URL)
		}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := s.cfg.History.Append(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("ask: query log append failed", slog.Any("error", err))
	}
}

// handlePreflight answers CORS preflight requests for /api/.
func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// handleRoot handles GET / for liveness checks.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "OK", Version: version.Version})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("server: response encode error", slog.Any("error", err))
	}
}

// writeError writes {"error": msg} with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
