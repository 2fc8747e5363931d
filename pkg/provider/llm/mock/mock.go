// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the requests the narrative oracle
// sends and to feed controlled responses without a live backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []string{`{"text":"You enter the tavern.","choices":[]}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/kodackx/echo-forge-ai/pkg/provider/llm"
)

// Compile-time interface check.
var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the request passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Responses are consumed in order; when exhausted, the last one repeats.
// Errs are consulted per call index before Responses, so a sequence like
// Errs[0] != nil, Errs[1] == nil models a transient failure followed by
// success.
type Provider struct {
	mu sync.Mutex

	// Responses is the sequence of completion contents to return.
	Responses []string

	// Errs, if set, maps call index to an injected error. A nil entry (or a
	// call index past the end) means no error for that call.
	Errs []error

	// TokenCount is returned by CountTokens.
	TokenCount int

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.Capabilities

	// Calls records every invocation of Complete in order.
	Calls []CompleteCall
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := len(p.Calls)
	p.Calls = append(p.Calls, CompleteCall{Ctx: ctx, Req: req})

	if idx < len(p.Errs) && p.Errs[idx] != nil {
		return nil, p.Errs[idx]
	}

	content := ""
	switch {
	case len(p.Responses) == 0:
	case idx < len(p.Responses):
		content = p.Responses[idx]
	default:
		content = p.Responses[len(p.Responses)-1]
	}

	return &llm.CompletionResponse{Content: content}, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(_ []llm.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}
