// Package mock provides a test double for the embeddings.Provider interface.
//
// The mock produces deterministic vectors derived from the input text, so
// identical texts always embed to identical vectors and similarity search in
// tests behaves predictably without a live backend.
package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/kodackx/echo-forge-ai/pkg/provider/embeddings"
)

// Compile-time interface check.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
//
// By default Embed returns a deterministic pseudo-vector derived from the
// text. Set Vectors to force exact outputs for specific inputs, or Err to
// inject a failure.
type Provider struct {
	mu sync.Mutex

	// Dim is the vector dimensionality. Defaults to 8 when zero.
	Dim int

	// Vectors maps input text to a fixed output vector. Texts not present
	// fall back to the deterministic derivation.
	Vectors map[string][]float32

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// EmbedCalls records every text passed to Embed or EmbedBatch, in order.
	EmbedCalls []string
}

// dim returns the effective dimensionality.
func (p *Provider) dim() int {
	if p.Dim <= 0 {
		return 8
	}
	return p.Dim
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	if v, ok := p.Vectors[text]; ok {
		return v, nil
	}
	return derive(text, p.dim()), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dim() }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock-embed" }

// derive produces a stable pseudo-vector from text using an FNV hash chain.
// Values land in [0, 1); texts sharing a prefix produce nearby vectors only
// by coincidence, which is good enough for unit tests.
func derive(text string, dim int) []float32 {
	out := make([]float32, dim)
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	for i := range out {
		seed = seed*1664525 + 1013904223
		out[i] = float32(seed%1000) / 1000
	}
	return out
}
