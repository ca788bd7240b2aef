package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// LLMPinger probes an LLM backend by sending a minimal single-token generate
// request. It satisfies the Pinger interface and is used by GET /api/ready.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.BaseChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a single "ping" message through Generate. This consumes a few
// tokens per probe, so /api/ready should not be polled aggressively.
func (p *LLMPinger) Ping(ctx context.Context) error {
	msgs := []*schema.Message{
		schema.UserMessage("ping"),
	}
	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// enginePinger reports reachability of the search engine.
// *search.Client satisfies it.
type enginePinger interface {
	// Ping checks cluster reachability.
	Ping(ctx context.Context) error
}

// SearchPinger probes the OpenSearch cluster via its health endpoint.
// It satisfies the Pinger interface and is used by GET /api/ready.
type SearchPinger struct {
	// client is the search client to probe.
	client enginePinger
}

// NewSearchPinger constructs a SearchPinger for the given search client.
func NewSearchPinger(client enginePinger) *SearchPinger {
	return &SearchPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *SearchPinger) Name() string { return "opensearch" }

// Ping checks the cluster health endpoint.
// Returns nil if the cluster is reachable, or a descriptive error otherwise.
func (p *SearchPinger) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
