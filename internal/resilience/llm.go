package resilience

import (
	"context"

	"github.com/kodackx/echo-forge-ai/pkg/provider/llm"
)

// ResilientLLM implements [llm.Provider] with bounded retries per backend
// and automatic failover across backends. The narrative engine above sees a
// single provider; transient failures are absorbed here up to the retry
// budget, and only then does the turn fail.
type ResilientLLM struct {
	group   *FallbackGroup[llm.Provider]
	retryer *Retryer
}

var _ llm.Provider = (*ResilientLLM)(nil)

// NewResilientLLM wraps primary with retry and failover behaviour.
// Additional backends are registered via [ResilientLLM.AddFallback].
func NewResilientLLM(primaryName string, primary llm.Provider, retry RetryConfig, breaker BreakerConfig) *ResilientLLM {
	return &ResilientLLM{
		group:   NewFallbackGroup(primaryName, primary, breaker),
		retryer: NewRetryer(retry),
	}
}

// AddFallback registers an additional backend, tried in registration order
// after the primary.
func (r *ResilientLLM) AddFallback(name string, p llm.Provider) {
	r.group.Add(name, p)
}

// Complete retries the whole failover chain with exponential backoff: each
// attempt walks the healthy backends in order, and only when every attempt
// exhausts every backend does the error surface.
func (r *ResilientLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return DoValue(ctx, r.retryer, "llm completion", func(ctx context.Context) (*llm.CompletionResponse, error) {
		return RunValue(r.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
			return p.Complete(ctx, req)
		})
	})
}

// CountTokens delegates to the first healthy backend's counter. Token
// counting is local; no retry applies.
func (r *ResilientLLM) CountTokens(messages []llm.Message) (int, error) {
	return RunValue(r.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities reports the primary backend's capabilities. Static metadata
// does not participate in failover.
func (r *ResilientLLM) Capabilities() llm.Capabilities {
	if len(r.group.entries) > 0 {
		return r.group.entries[0].value.Capabilities()
	}
	return llm.Capabilities{}
}
