package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/kodackx/echo-forge-ai/pkg/story"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func testState(title string) story.State {
	return story.State{
		Config:        story.Config{Title: title},
		CurrentNodeID: uuid.New(),
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	st := testState("The Silver Flagon Mystery")
	if err := repo.Save(ctx, "session-1", st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Config.Title != st.Config.Title {
		t.Errorf("title = %q, want %q", got.Config.Title, st.Config.Title)
	}
	if got.CurrentNodeID != st.CurrentNodeID {
		t.Errorf("current node = %v, want %v", got.CurrentNodeID, st.CurrentNodeID)
	}
}

func TestSave_OverwritesExistingSession(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	first := testState("First")
	second := testState("Second")
	if err := repo.Save(ctx, "session-1", first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := repo.Save(ctx, "session-1", second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	got, err := repo.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.CurrentNodeID != second.CurrentNodeID {
		t.Error("load returned the overwritten snapshot")
	}

	sessions, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("sessions = %d, want 1 after overwrite", len(sessions))
	}
}

func TestSave_EmptySessionIDRejected(t *testing.T) {
	repo := openTestRepo(t)
	if err := repo.Save(context.Background(), "", testState("x")); err == nil {
		t.Fatal("expected error for empty session id, got nil")
	}
}

func TestLoad_UnknownSession(t *testing.T) {
	repo := openTestRepo(t)
	_, err := repo.Load(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestList_ReturnsAllSessions(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Save(ctx, id, testState("story "+id)); err != nil {
			t.Fatalf("Save %q: %v", id, err)
		}
	}

	sessions, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("sessions = %d, want 3", len(sessions))
	}
	for _, s := range sessions {
		if s.SavedAt.IsZero() {
			t.Errorf("session %q has zero SavedAt", s.SessionID)
		}
		if s.Title == "" {
			t.Errorf("session %q has empty title", s.SessionID)
		}
	}
}

func TestDelete(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Save(ctx, "session-1", testState("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Delete(ctx, "session-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Load(ctx, "session-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Load after delete = %v, want ErrSessionNotFound", err)
	}
	if err := repo.Delete(ctx, "session-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second Delete = %v, want ErrSessionNotFound", err)
	}
}
