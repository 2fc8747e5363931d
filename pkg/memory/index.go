package memory

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Index is a nearest-neighbour index over memory embeddings. A [Bank] drives
// it; external packages can supply alternative backends (pgvector, …) without
// touching the bank's eviction or filtering logic.
//
// Implementations order search results by ascending distance (most similar
// first).
type Index interface {
	// Add inserts a vector under the given id. Adding an existing id replaces
	// its vector.
	Add(ctx context.Context, id uuid.UUID, embedding []float32) error

	// Remove deletes the vector stored under id. Removing an unknown id is
	// not an error.
	Remove(ctx context.Context, id uuid.UUID) error

	// Search returns the ids of up to k vectors nearest to embedding, by
	// ascending distance.
	Search(ctx context.Context, embedding []float32, k int) ([]uuid.UUID, error)

	// Reset removes every vector, leaving an empty index.
	Reset(ctx context.Context) error
}

// Compile-time interface check.
var _ Index = (*FlatIndex)(nil)

// FlatIndex is a brute-force in-process [Index] using squared L2 distance.
// Exact rather than approximate; fine for the bounded memory counts a bank
// holds.
type FlatIndex struct {
	ids  []uuid.UUID
	vecs [][]float32
}

// NewFlatIndex creates an empty [FlatIndex].
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Add implements [Index].
func (f *FlatIndex) Add(_ context.Context, id uuid.UUID, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("flat index: empty embedding for %s", id)
	}
	for i, existing := range f.ids {
		if existing == id {
			f.vecs[i] = embedding
			return nil
		}
	}
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, embedding)
	return nil
}

// Remove implements [Index].
func (f *FlatIndex) Remove(_ context.Context, id uuid.UUID) error {
	for i, existing := range f.ids {
		if existing == id {
			f.ids = append(f.ids[:i], f.ids[i+1:]...)
			f.vecs = append(f.vecs[:i], f.vecs[i+1:]...)
			return nil
		}
	}
	return nil
}

// Search implements [Index].
func (f *FlatIndex) Search(_ context.Context, embedding []float32, k int) ([]uuid.UUID, error) {
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}

	type scored struct {
		id   uuid.UUID
		dist float64
	}
	results := make([]scored, 0, len(f.ids))
	for i, vec := range f.vecs {
		d, err := sqL2(embedding, vec)
		if err != nil {
			return nil, fmt.Errorf("flat index: %w", err)
		}
		results = append(results, scored{id: f.ids[i], dist: d})
	}

	// Insertion sort by distance; candidate sets here are small.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].dist < results[j-1].dist; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}

	if k > len(results) {
		k = len(results)
	}
	out := make([]uuid.UUID, k)
	for i := range out {
		out[i] = results[i].id
	}
	return out, nil
}

// Reset implements [Index].
func (f *FlatIndex) Reset(_ context.Context) error {
	f.ids = nil
	f.vecs = nil
	return nil
}

// Len returns the number of indexed vectors.
func (f *FlatIndex) Len() int { return len(f.ids) }

// sqL2 returns the squared Euclidean distance between two vectors.
func sqL2(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	if math.IsNaN(sum) {
		return 0, fmt.Errorf("non-finite distance")
	}
	return sum, nil
}
