package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore, string) {
	t.Helper()
	root := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(root, ".memory-bank", "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, root, nil), s, root
}

func writeSnapshot(t *testing.T, root string, snap map[string]any) {
	t.Helper()
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, SnapshotName), data, 0o644))
}

// fixtureSnapshot builds a legacy store with two sessions, a revision
// chain whose ancestor fell out of the main thread, a dependency link
// and one collection.
func fixtureSnapshot() map[string]any {
	return map[string]any{
		"sessions": map[string]any{
			"sess-1": map[string]any{
				"problem_statement": "first investigation",
				"success_criteria":  "root cause found",
				"main_thread":       []string{"mem-2", "mem-3"},
				"collections": map[string]any{
					"coll-1": map[string]any{
						"name":         "alternate theory",
						"created_from": "mem-4",
						"memories":     []string{"mem-4"},
					},
				},
				"started":      "2024-01-02T03:04:05",
				"last_updated": "2024-01-03T03:04:05",
			},
			"sess-2": map[string]any{
				"problem_statement": "second investigation",
				"success_criteria":  "fix shipped",
				"main_thread":       []string{"mem-5"},
				"started":           "2024-02-01T00:00:00",
				"last_updated":      "2024-02-02T00:00:00",
			},
		},
		"memories": map[string]any{
			// mem-1 was revised away: only reachable through mem-2's
			// revision_of link.
			"mem-1": map[string]any{
				"content": "original guess", "number": 1, "confidence": 0.4,
				"timestamp": "2024-01-02T03:05:00",
			},
			"mem-2": map[string]any{
				"content": "corrected guess", "number": 1, "confidence": 0.8,
				"revision_of": "mem-1", "timestamp": "2024-01-02T03:10:00",
			},
			"mem-3": map[string]any{
				"content": "follow-up", "number": 2, "confidence": 0.7,
				"dependencies": []string{"mem-2"}, "timestamp": "2024-01-02T04:00:00",
			},
			"mem-4": map[string]any{
				"content": "branch seed", "number": 1, "confidence": 0.6,
				"collection_id": "coll-1", "timestamp": "2024-01-02T05:00:00",
			},
			"mem-5": map[string]any{
				"content": "unrelated session note", "number": 1, "confidence": 0.9,
				"timestamp": "2024-02-01T01:00:00",
			},
		},
		"patterns": map[string]int{"assumption": 3, "therefore": 2},
	}
}

func TestDetect(t *testing.T) {
	ctx := context.Background()
	engine, s, root := newTestEngine(t)

	status, err := engine.Detect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusNotNeeded, status)

	writeSnapshot(t, root, fixtureSnapshot())
	status, err = engine.Detect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusDetected, status)

	// A non-empty database suppresses detection.
	_, err = s.StartSession(ctx, store.StartSessionParams{Problem: "p", Criteria: "c"})
	require.NoError(t, err)
	status, err = engine.Detect(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusNotNeeded, status)
}

func TestRunMigratesSnapshot(t *testing.T) {
	ctx := context.Background()
	engine, s, root := newTestEngine(t)
	writeSnapshot(t, root, fixtureSnapshot())

	res, err := engine.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 2, res.Sessions)
	assert.Equal(t, 5, res.Memories)
	assert.Equal(t, 1, res.Collections)
	assert.Equal(t, 2, res.Patterns)
	assert.Empty(t, res.Skipped)

	// Original ids and sequence numbers survive verbatim.
	mem, err := s.GetMemory(ctx, "sess-1", "mem-3")
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Seq)
	assert.Equal(t, []string{"mem-2"}, mem.Dependencies)

	// The revised-away ancestor landed in its session via the chain.
	ancestor, err := s.GetMemory(ctx, "sess-1", "mem-1")
	require.NoError(t, err)
	assert.Equal(t, "original guess", ancestor.Content)

	current, err := s.ListMemories(ctx, store.ListMemoriesParams{SessionID: "sess-1", CurrentOnly: true})
	require.NoError(t, err)
	for _, m := range current {
		assert.NotEqual(t, "mem-1", m.ID, "revised-away memory should not be current")
	}

	colls, err := s.ListCollections(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, colls, 1)
	assert.Equal(t, "mem-4", colls[0].CreatedFrom)

	// Patterns attach to the most recently updated session.
	patterns, err := s.ListPatterns(ctx, "sess-2")
	require.NoError(t, err)
	assert.Len(t, patterns, 2)

	// Backup exists next to the untouched original.
	backups, err := filepath.Glob(filepath.Join(root, SnapshotName+".backup_*"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
	assert.Equal(t, backups[0], res.BackupPath)
	_, err = os.Stat(filepath.Join(root, SnapshotName))
	assert.NoError(t, err)

	state, err := s.MigrationState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, store.MigrationCompleted, state.Status)
	assert.Equal(t, 10, state.Migrated)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, s, root := newTestEngine(t)
	writeSnapshot(t, root, fixtureSnapshot())

	_, err := engine.Run(ctx, false)
	require.NoError(t, err)
	before, err := s.EntityRowCount(ctx)
	require.NoError(t, err)

	res, err := engine.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Zero(t, res.Sessions+res.Memories+res.Collections+res.Patterns)

	after, err := s.EntityRowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "second run must not duplicate rows")
}

func TestRunSkipsUnresolvableRows(t *testing.T) {
	ctx := context.Background()
	engine, s, root := newTestEngine(t)

	writeSnapshot(t, root, map[string]any{
		"sessions": map[string]any{
			"sess-1": map[string]any{
				"problem_statement": "partial data",
				"main_thread":       []string{"mem-ok", "mem-broken"},
				"started":           "2024-01-01T00:00:00",
				"last_updated":      "2024-01-01T00:00:00",
			},
		},
		"memories": map[string]any{
			"mem-ok": map[string]any{
				"content": "fine", "number": 1, "confidence": 0.5,
			},
			"mem-broken": map[string]any{
				"content": "references nothing real", "number": 2, "confidence": 0.5,
				"dependencies": []string{"mem-ghost"},
			},
		},
	})

	res, err := engine.Run(ctx, false)
	require.ErrorIs(t, err, model.ErrMigrationPartial)
	require.NotNil(t, res)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Memories)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "mem-broken", res.Skipped[0].ID)

	// The resolvable rows are committed despite the partial failure.
	_, err = s.GetMemory(ctx, "sess-1", "mem-ok")
	assert.NoError(t, err)
	_, err = s.GetMemory(ctx, "sess-1", "mem-broken")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRunCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	engine, s, root := newTestEngine(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, SnapshotName), []byte("{not json"), 0o644))

	_, err := engine.Run(ctx, false)
	require.ErrorIs(t, err, model.ErrStorageIO)

	// Nothing was committed.
	rows, err := s.EntityRowCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

func TestParseSnapshotTime(t *testing.T) {
	fallback := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	got := parseSnapshotTime("garbage", fallback)
	assert.Equal(t, fallback, got)

	zoneless := parseSnapshotTime("2024-01-02T03:04:05.123456", fallback)
	assert.Equal(t, 2024, zoneless.Year())
	assert.Equal(t, 3, zoneless.Hour())

	zoned := parseSnapshotTime("2024-06-01T12:00:00+02:00", fallback)
	assert.Equal(t, 10, zoned.UTC().Hour())
}
