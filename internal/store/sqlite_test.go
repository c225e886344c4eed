package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func startTestSession(t *testing.T, s *SQLiteStore) *model.Session {
	t.Helper()
	sess, err := s.StartSession(context.Background(), StartSessionParams{
		Problem:  "flaky integration tests",
		Criteria: "tests pass 50 runs in a row",
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return sess
}

func TestStartAndGetSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.StartSession(ctx, StartSessionParams{
		Problem:     "slow queries",
		Criteria:    "p99 under 100ms",
		Constraints: []string{"no schema change"},
		Type:        model.SessionDebugging,
		Language:    "go",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.ID == "" {
		t.Error("expected non-empty ID")
	}
	if !sess.IsActive {
		t.Error("expected new session active")
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ProblemStatement != "slow queries" {
		t.Errorf("expected problem statement, got %q", got.ProblemStatement)
	}
	if got.SessionType != model.SessionDebugging {
		t.Errorf("expected debugging type, got %q", got.SessionType)
	}
	if len(got.Constraints) != 1 || got.Constraints[0] != "no schema change" {
		t.Errorf("constraints round-trip failed: %v", got.Constraints)
	}
}

func TestStartSessionDeactivatesPrevious(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := startTestSession(t, s)
	second := startTestSession(t, s)

	active, err := s.ActiveSessionID(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != second.ID {
		t.Errorf("expected %s active, got %s", second.ID, active)
	}

	got, _ := s.GetSession(ctx, first.ID)
	if got.IsActive {
		t.Error("expected first session deactivated")
	}
}

func TestSetActiveSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := startTestSession(t, s)
	startTestSession(t, s)

	if err := s.SetActiveSession(ctx, first.ID); err != nil {
		t.Fatalf("set active: %v", err)
	}
	active, _ := s.ActiveSessionID(ctx)
	if active != first.ID {
		t.Errorf("expected %s active, got %s", first.ID, active)
	}

	err := s.SetActiveSession(ctx, "nope")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCloseSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sess := startTestSession(t, s)

	if err := s.CloseSession(ctx, sess.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, _ := s.GetSession(ctx, sess.ID)
	if got.IsActive {
		t.Error("expected session inactive after close")
	}
	if _, err := s.ActiveSessionID(ctx); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected no active session, got %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementSessionCounter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sess := startTestSession(t, s)

	if err := s.IncrementSessionCounter(ctx, sess.ID, "packages_discovered"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := s.IncrementSessionCounter(ctx, sess.ID, "packages_discovered"); err != nil {
		t.Fatalf("increment: %v", err)
	}

	got, _ := s.GetSession(ctx, sess.ID)
	if got.PackagesFound != 2 {
		t.Errorf("expected counter 2, got %d", got.PackagesFound)
	}

	if err := s.IncrementSessionCounter(ctx, sess.ID, "bogus"); !errors.Is(err, model.ErrConstraintViolation) {
		t.Errorf("expected ErrConstraintViolation, got %v", err)
	}
	if err := s.IncrementSessionCounter(ctx, "missing", "patterns_stored"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	startTestSession(t, s)
	startTestSession(t, s)

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}
