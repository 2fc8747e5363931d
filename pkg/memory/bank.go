package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kodackx/echo-forge-ai/pkg/provider/embeddings"
)

// defaultMaxItems bounds a bank whose config leaves MaxItems unset.
const defaultMaxItems = 1000

// DefaultRetrievalLimit is the number of memories returned when a caller
// passes a non-positive limit to [Bank.RetrieveRelevant].
const DefaultRetrievalLimit = 5

// Bank stores narrative memories and retrieves them by embedding similarity.
//
// Invariant: the record list and the index always describe the same set of
// memories. Store appends to both; eviction removes from both in the same
// step.
type Bank struct {
	embedder embeddings.Provider
	index    Index
	cfg      BankConfig

	memories []Memory // insertion order, oldest first
	byID     map[uuid.UUID]int
}

// NewBank creates a [Bank] over the given embeddings provider and index.
// Zero-value config fields fall back to defaults.
func NewBank(embedder embeddings.Provider, index Index, cfg BankConfig) *Bank {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}
	if cfg.EmbeddingDim <= 0 && embedder != nil {
		cfg.EmbeddingDim = embedder.Dimensions()
	}
	return &Bank{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		byID:     make(map[uuid.UUID]int),
	}
}

// Config returns the bank's effective configuration.
func (b *Bank) Config() BankConfig { return b.cfg }

// Len returns the number of stored memories.
func (b *Bank) Len() int { return len(b.memories) }

// Store embeds content, appends it as a new [Memory], and evicts the oldest
// inserted memory when the capacity bound is exceeded.
func (b *Bank) Store(ctx context.Context, content string, metadata Metadata) error {
	embedding, err := b.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("memory bank: embed: %w", err)
	}
	if metadata == nil {
		metadata = Metadata{}
	}

	mem := Memory{
		ID:        uuid.New(),
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
		Embedding: embedding,
	}

	if err := b.index.Add(ctx, mem.ID, mem.Embedding); err != nil {
		return fmt.Errorf("memory bank: index add: %w", err)
	}
	b.memories = append(b.memories, mem)
	b.reindexFrom(len(b.memories) - 1)

	// FIFO capacity bound: drop the oldest insertion, keeping the index and
	// the record list aligned.
	for len(b.memories) > b.cfg.MaxItems {
		oldest := b.memories[0]
		if err := b.index.Remove(ctx, oldest.ID); err != nil {
			return fmt.Errorf("memory bank: index evict: %w", err)
		}
		delete(b.byID, oldest.ID)
		b.memories = b.memories[1:]
		b.reindexFrom(0)
	}
	return nil
}

// RetrieveRelevant embeds query, fetches up to 2*limit nearest candidates
// from the index, filters them in search-rank order against filter (missing
// key means no match), and returns the first limit survivors. When fewer
// survive, fewer are returned; the result is never padded.
func (b *Bank) RetrieveRelevant(ctx context.Context, query string, filter Metadata, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = DefaultRetrievalLimit
	}

	embedding, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory bank: embed query: %w", err)
	}

	ids, err := b.index.Search(ctx, embedding, 2*limit)
	if err != nil {
		return nil, fmt.Errorf("memory bank: search: %w", err)
	}

	results := make([]Memory, 0, limit)
	for _, id := range ids {
		pos, ok := b.byID[id]
		if !ok {
			// The index returned an id the bank no longer holds; the
			// alignment invariant is broken.
			return nil, fmt.Errorf("memory bank: index returned unknown memory %s", id)
		}
		mem := b.memories[pos]
		if filter != nil && !mem.matches(filter) {
			continue
		}
		results = append(results, mem)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// ExportState returns a deep snapshot of the bank: every memory with its
// content, metadata, timestamp, and embedding, plus the configuration.
func (b *Bank) ExportState() State {
	out := make([]Memory, len(b.memories))
	for i, m := range b.memories {
		out[i] = m
		out[i].Metadata = cloneMetadata(m.Metadata)
		out[i].Embedding = append([]float32(nil), m.Embedding...)
	}
	return State{Memories: out, Config: b.cfg}
}

// ImportState replaces the bank's contents with a previously exported
// snapshot. The index is reset and rebuilt from the stored embeddings; no
// re-embedding happens.
func (b *Bank) ImportState(ctx context.Context, st State) error {
	if err := b.index.Reset(ctx); err != nil {
		return fmt.Errorf("memory bank: reset index: %w", err)
	}

	cfg := st.Config
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}
	b.cfg = cfg
	b.memories = b.memories[:0]
	b.byID = make(map[uuid.UUID]int, len(st.Memories))

	for _, m := range st.Memories {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if err := b.index.Add(ctx, m.ID, m.Embedding); err != nil {
			return fmt.Errorf("memory bank: rebuild index: %w", err)
		}
		b.memories = append(b.memories, m)
		b.byID[m.ID] = len(b.memories) - 1
	}
	return nil
}

// reindexFrom refreshes byID positions for memories at and after pos.
func (b *Bank) reindexFrom(pos int) {
	for i := pos; i < len(b.memories); i++ {
		b.byID[b.memories[i].ID] = i
	}
}

// cloneMetadata copies a metadata map; values are scalars so a shallow value
// copy is a deep copy.
func cloneMetadata(m Metadata) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
