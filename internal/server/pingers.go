package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/tdsqa-go/internal/provider"
)

// LLMPinger probes the answer model's backend through its token-free
// model-listing endpoint.
type LLMPinger struct {
	// check is the provider's HTTP health probe.
	check provider.HealthChecker
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger returns a pinger for the backend, or nil when the backend has
// no token-free probe. Callers skip nil pingers.
func NewLLMPinger(check provider.HealthChecker, name string) *LLMPinger {
	if check == nil {
		return nil
	}
	return &LLMPinger{check: check, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping runs the backend health check.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.check.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// funcPinger adapts a probe function, such as an index searcher's Ping, to
// the Pinger interface.
type funcPinger struct {
	name string
	ping func(ctx context.Context) error
}

// PingerFunc returns a Pinger named name that calls ping.
func PingerFunc(name string, ping func(ctx context.Context) error) Pinger {
	return &funcPinger{name: name, ping: ping}
}

func (p *funcPinger) Name() string                   { return p.name }
func (p *funcPinger) Ping(ctx context.Context) error { return p.ping(ctx) }
