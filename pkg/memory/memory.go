// Package memory implements the vector-indexed memory bank that stores and
// retrieves narrative facts.
//
// A [Bank] owns an insertion-ordered list of [Memory] records and keeps it
// aligned with a nearest-neighbour [Index] over the records' embeddings.
// Capacity is bounded: once MaxItems is exceeded the oldest inserted memory
// is evicted (strict FIFO, not LRU), from the list and the index in the same
// step.
//
// Retrieval is similarity search layered with an exact-match metadata filter,
// which lets callers scope results to one character's knowledge without
// entangling identity with content similarity.
//
// A Bank is not safe for concurrent use on its own; the story orchestrator
// serialises turns, which is the only mutation path during play.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Metadata is the tag map attached to a memory. Values must be scalars
// (strings, booleans, numbers) so that filters can compare them exactly and
// state export round-trips through JSON.
type Metadata map[string]any

// Memory is a single stored narrative fact. Immutable once stored; the only
// way a memory leaves the bank is FIFO eviction.
type Memory struct {
	// ID is the bank-assigned unique identifier.
	ID uuid.UUID `json:"id"`

	// Content is the fact text.
	Content string `json:"content"`

	// Metadata carries scalar tags such as character, type, and importance.
	Metadata Metadata `json:"metadata"`

	// Timestamp is when the memory was stored.
	Timestamp time.Time `json:"timestamp"`

	// Embedding is the vector representation of Content.
	Embedding []float32 `json:"embedding"`
}

// BankConfig holds the tunable parameters of a [Bank].
type BankConfig struct {
	// MaxItems bounds the number of stored memories. Defaults to 1000 when
	// zero or negative.
	MaxItems int `json:"max_items"`

	// EmbeddingDim is the expected vector dimensionality. Informational; the
	// embeddings provider is authoritative.
	EmbeddingDim int `json:"embedding_dim"`
}

// State is the serialisable snapshot of a bank, exported by
// [Bank.ExportState] and restored by [Bank.ImportState]. Embeddings are
// carried verbatim so that import never re-embeds.
type State struct {
	Memories []Memory   `json:"memories"`
	Config   BankConfig `json:"config"`
}

// matches reports whether m's metadata satisfies every key/value pair in
// filter. A key missing from m.Metadata is a non-match. Numeric values are
// compared as float64 so that filters survive a JSON round-trip (which turns
// all numbers into float64).
func (m Memory) matches(filter Metadata) bool {
	for k, want := range filter {
		got, ok := m.Metadata[k]
		if !ok {
			return false
		}
		if !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// scalarEqual compares two scalar metadata values, unifying numeric types.
func scalarEqual(a, b any) bool {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return a == b
}

// asFloat converts any numeric scalar to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
