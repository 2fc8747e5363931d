// Package pgvector provides a [memory.Index] backed by a PostgreSQL table
// with a pgvector column, for deployments that want the nearest-neighbour
// index to survive process restarts or grow past comfortable in-process
// sizes. The bank's record list remains in process; only the vector search
// moves to Postgres.
//
// All methods are safe for concurrent use; the pgx pool handles its own
// synchronisation.
package pgvector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/kodackx/echo-forge-ai/pkg/memory"
)

// Compile-time interface check.
var _ memory.Index = (*Index)(nil)

// Index is a pgvector-backed nearest-neighbour index.
type Index struct {
	pool  *pgxpool.Pool
	table string
	dim   int
}

// Config configures [Open].
type Config struct {
	// URL is the Postgres connection string. Must not be empty.
	URL string

	// Table is the index table name. Defaults to "story_memory_index".
	Table string

	// Dimensions is the embedding dimensionality used in the column type.
	// Must be positive.
	Dimensions int
}

// Open connects to Postgres, ensures the pgvector extension and the index
// table exist, and returns a ready [Index].
func Open(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("pgvector index: URL must not be empty")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("pgvector index: Dimensions must be positive")
	}
	if cfg.Table == "" {
		cfg.Table = "story_memory_index"
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("pgvector index: connect: %w", err)
	}

	idx := &Index{pool: pool, table: cfg.Table, dim: cfg.Dimensions}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the connection pool.
func (i *Index) Close() { i.pool.Close() }

// ensureSchema creates the extension, table, and HNSW search index.
func (i *Index) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        UUID PRIMARY KEY,
			embedding VECTOR(%d) NOT NULL
		)`, i.table, i.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s USING hnsw (embedding vector_l2_ops)`, i.table, i.table),
	}
	for _, q := range stmts {
		if _, err := i.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("pgvector index: ensure schema: %w", err)
		}
	}
	return nil
}

// Add implements [memory.Index] as an upsert.
func (i *Index) Add(ctx context.Context, id uuid.UUID, embedding []float32) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, embedding) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`, i.table)
	if _, err := i.pool.Exec(ctx, q, id, pgv.NewVector(embedding)); err != nil {
		return fmt.Errorf("pgvector index: add: %w", err)
	}
	return nil
}

// Remove implements [memory.Index]. Removing an unknown id is not an error.
func (i *Index) Remove(ctx context.Context, id uuid.UUID) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, i.table)
	if _, err := i.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("pgvector index: remove: %w", err)
	}
	return nil
}

// Search implements [memory.Index]: ids of the k nearest vectors by L2
// distance, most similar first.
func (i *Index) Search(ctx context.Context, embedding []float32, k int) ([]uuid.UUID, error) {
	if k <= 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT id FROM %s ORDER BY embedding <-> $1 LIMIT $2`, i.table)
	rows, err := i.pool.Query(ctx, q, pgv.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector index: search: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgvector index: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector index: rows: %w", err)
	}
	return ids, nil
}

// Reset implements [memory.Index] by truncating the table.
func (i *Index) Reset(ctx context.Context) error {
	if _, err := i.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, i.table)); err != nil {
		return fmt.Errorf("pgvector index: reset: %w", err)
	}
	return nil
}
