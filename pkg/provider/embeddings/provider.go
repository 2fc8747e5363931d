// Package embeddings defines the Provider interface for text-embedding backends.
//
// An embeddings provider maps text to dense float32 vectors (e.g. OpenAI
// text-embedding-3 or a local sentence transformer). The memory bank uses
// these vectors for similarity retrieval over narrative facts.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors produced by a single Provider instance share the same
// dimensionality (reported by Dimensions). Vectors from different providers
// must not be mixed in one similarity computation unless the caller has
// verified they come from the same model and space.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The result
	// has length Dimensions(). Returns an error if the request fails or ctx is
	// cancelled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in one backend call.
	// The i-th result corresponds to texts[i]. On error the entire result is
	// nil; partial results are never returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the backend-specific model identifier
	// (e.g. "text-embedding-3-small"). Used for logging and for save-state
	// compatibility checks.
	ModelID() string
}
