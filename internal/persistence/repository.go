// Package persistence stores story session snapshots in SQLite so a story
// can be saved mid-session and resumed later.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kodackx/echo-forge-ai/pkg/story"
)

// ErrSessionNotFound is returned by Load and Delete when no snapshot exists
// for the given session ID.
var ErrSessionNotFound = errors.New("persistence: session not found")

// SessionInfo summarises one saved session for listing.
type SessionInfo struct {
	SessionID string
	Title     string
	SavedAt   time.Time
}

// Repository persists [story.State] snapshots keyed by session ID. Saving to
// an existing session ID overwrites the previous snapshot.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and applies the schema.
func Open(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persistence: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("persistence: open db: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: migrate: %w", err)
	}
	return r, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS story_states (
		session_id TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		state      TEXT NOT NULL,
		saved_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_story_states_saved ON story_states(saved_at DESC);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Save stores a snapshot under sessionID, replacing any previous snapshot.
func (r *Repository) Save(ctx context.Context, sessionID string, st story.State) error {
	if sessionID == "" {
		return errors.New("persistence: save: empty session id")
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("persistence: save %q: encode state: %w", sessionID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO story_states (session_id, title, state, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			saved_at = excluded.saved_at`,
		sessionID, st.Config.Title, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("persistence: save %q: %w", sessionID, err)
	}
	return nil
}

// Load returns the snapshot saved under sessionID.
func (r *Repository) Load(ctx context.Context, sessionID string) (story.State, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT state FROM story_states WHERE session_id = ?`, sessionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return story.State{}, fmt.Errorf("persistence: load %q: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return story.State{}, fmt.Errorf("persistence: load %q: %w", sessionID, err)
	}

	var st story.State
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return story.State{}, fmt.Errorf("persistence: load %q: decode state: %w", sessionID, err)
	}
	return st, nil
}

// List returns all saved sessions, most recently saved first.
func (r *Repository) List(ctx context.Context) ([]SessionInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, title, saved_at FROM story_states ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("persistence: list: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var savedAt string
		if err := rows.Scan(&info.SessionID, &info.Title, &savedAt); err != nil {
			return nil, fmt.Errorf("persistence: list: scan: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
			info.SavedAt = t
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: list: %w", err)
	}
	return out, nil
}

// Delete removes the snapshot saved under sessionID.
func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM story_states WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("persistence: delete %q: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("persistence: delete %q: %w", sessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("persistence: delete %q: %w", sessionID, ErrSessionNotFound)
	}
	return nil
}
