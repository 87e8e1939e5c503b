package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/54b3r/tdsqa-go/internal/rag"
)

// DefaultTimeout bounds a single embedding call.
const DefaultTimeout = 60 * time.Second

// defaultBreakerCooldown is how long an open breaker rejects calls before
// letting a probe through.
const defaultBreakerCooldown = 30 * time.Second

var (
	// ErrNoEmbedding is the "no embedding" result. Every failed Embed call
	// wraps it; callers skip the unit with errors.Is.
	ErrNoEmbedding = errors.New("embedder: no embedding")
	// ErrEmptyInput reports text that is empty after trimming.
	ErrEmptyInput = errors.New("embedder: empty input")
)

// ClientConfig tunes a Client.
type ClientConfig struct {
	// Model is recorded in built indexes. When empty the backend's own model
	// name is used if it exposes one.
	Model string
	// Timeout bounds each call. Zero selects DefaultTimeout.
	Timeout time.Duration
	// Instruction is prepended to every input, separated by a space.
	Instruction string
	// Dimensions, when positive, is the required vector length.
	Dimensions int
	// BreakerThreshold opens the circuit after this many consecutive
	// failures. Zero disables the breaker.
	BreakerThreshold int
	// BreakerCooldown is how long the open circuit fails fast.
	BreakerCooldown time.Duration
	// Logger receives breaker state changes. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client embeds one text at a time through a batch backend. It is safe for
// concurrent use and satisfies rag.TextEmbedder.
type Client struct {
	backend rag.Embedder
	cfg     ClientConfig
	breaker *gobreaker.CircuitBreaker
}

// NewClient wraps backend. cfg may be nil.
func NewClient(backend rag.Embedder, cfg *ClientConfig) *Client {
	c := &Client{backend: backend}
	if cfg != nil {
		c.cfg = *cfg
	}
	if c.cfg.Timeout <= 0 {
		c.cfg.Timeout = DefaultTimeout
	}
	if c.cfg.Logger == nil {
		c.cfg.Logger = slog.Default()
	}
	if c.cfg.Model == "" {
		if m, ok := backend.(interface{ Model() string }); ok {
			c.cfg.Model = m.Model()
		}
	}
	if c.cfg.BreakerThreshold > 0 {
		cooldown := c.cfg.BreakerCooldown
		if cooldown <= 0 {
			cooldown = defaultBreakerCooldown
		}
		threshold := uint32(c.cfg.BreakerThreshold)
		log := c.cfg.Logger
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embedder",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("embedder: circuit breaker state change",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		})
	}
	return c
}

// Model returns the embedding model name recorded in built indexes.
func (c *Client) Model() string { return c.cfg.Model }

// Embed returns the embedding of text. Every failure, including timeout,
// backend error, an empty result and a dimension mismatch, wraps
// ErrNoEmbedding. Vectors are returned as produced, without normalisation.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", ErrNoEmbedding, ErrEmptyInput)
	}
	input := text
	if c.cfg.Instruction != "" {
		input = c.cfg.Instruction + " " + text
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	call := func() (interface{}, error) {
		return c.embedOne(ctx, input)
	}

	var (
		out interface{}
		err error
	)
	if c.breaker != nil {
		out, err = c.breaker.Execute(call)
	} else {
		out, err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEmbedding, err)
	}
	return out.([]float32), nil
}

func (c *Client) embedOne(ctx context.Context, input string) ([]float32, error) {
	vecs, err := c.backend.Embed(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("backend returned an empty embedding")
	}
	vec := vecs[0]
	if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
		return nil, fmt.Errorf("backend returned %d dimensions, want %d", len(vec), c.cfg.Dimensions)
	}
	return vec, nil
}

// Ping embeds a short probe text. It satisfies the server's Pinger contract.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Embed(ctx, "ping")
	return err
}

// Name returns the dependency label used in readiness responses.
func (c *Client) Name() string { return "embedder" }
