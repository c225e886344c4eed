package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// busyTimeoutMS bounds the wait for the write lock; past it SQLite
// returns SQLITE_BUSY, which surfaces as model.ErrBusy.
const busyTimeoutMS = 5000

// SQLiteStore implements Store using SQLite. One database file per
// project root; writers are serialized by SQLite's file lock.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(model.ErrStorageIO, "create db dir", goerr.V("dir", dir))
	}

	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)" +
		"&_pragma=busy_timeout(" + strconv.Itoa(busyTimeoutMS) + ")"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageIO, "open db", goerr.V("path", dbPath))
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "init schema", goerr.V("path", dbPath))
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id                  TEXT PRIMARY KEY,
		problem_statement   TEXT NOT NULL,
		success_criteria    TEXT NOT NULL,
		constraints_json    TEXT,
		session_type        TEXT NOT NULL DEFAULT '',
		project_path        TEXT,
		language            TEXT,
		framework           TEXT,
		packages_discovered INTEGER NOT NULL DEFAULT 0,
		patterns_stored     INTEGER NOT NULL DEFAULT 0,
		validation_checks   INTEGER NOT NULL DEFAULT 0,
		started_at          TEXT NOT NULL,
		last_updated_at     TEXT NOT NULL,
		is_active           INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(is_active, last_updated_at DESC);

	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		session_id        TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		content           TEXT NOT NULL,
		seq               INTEGER NOT NULL,
		total_estimated   INTEGER NOT NULL DEFAULT 0,
		timestamp         TEXT NOT NULL,
		confidence        REAL NOT NULL,
		dependencies_json TEXT,
		tags_json         TEXT,
		collection_id     TEXT,
		revision_of       TEXT,
		is_checkpoint     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_memories_revision ON memories(session_id, revision_of);
	CREATE INDEX IF NOT EXISTS idx_memories_collection ON memories(collection_id);

	CREATE TABLE IF NOT EXISTS collections (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		name         TEXT NOT NULL,
		created_from TEXT NOT NULL,
		purpose      TEXT,
		members_json TEXT,
		merged       INTEGER NOT NULL DEFAULT 0,
		merge_target TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_collections_session ON collections(session_id);

	CREATE TABLE IF NOT EXISTS patterns (
		id               TEXT PRIMARY KEY,
		session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		pattern          TEXT NOT NULL,
		occurrence_count INTEGER NOT NULL DEFAULT 0,
		last_detected_at TEXT NOT NULL,
		UNIQUE(session_id, pattern)
	);

	CREATE TABLE IF NOT EXISTS migration_state (
		id            INTEGER PRIMARY KEY CHECK (id = 1),
		status        TEXT NOT NULL,
		completed_at  TEXT,
		migrated_rows INTEGER NOT NULL DEFAULT 0,
		skipped_rows  INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return goerr.Wrap(model.ErrStorageIO, "create schema", goerr.V("cause", err.Error()))
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// mapErr translates driver-level failures into the store's error
// taxonomy. SQLITE_BUSY/LOCKED become ErrBusy so callers can retry.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return goerr.Wrap(model.ErrNotFound, "no rows")
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return goerr.Wrap(model.ErrBusy, "write lock not acquired", goerr.V("code", se.Code()))
		}
	}
	return goerr.Wrap(model.ErrStorageIO, "sqlite operation failed", goerr.V("cause", err.Error()))
}

func (s *SQLiteStore) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return tx, nil
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

// touchSession bumps last_updated_at inside the caller's transaction.
// Every entity write under a session goes through this.
func touchSession(ctx context.Context, tx *sql.Tx, sessionID string, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_updated_at = ? WHERE id = ?`,
		fmtTime(now), sessionID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(model.ErrNotFound, "session not found", goerr.V("session_id", sessionID))
	}
	return nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func marshalStrings(ss []string) *string {
	if len(ss) == 0 {
		return nil
	}
	b, _ := json.Marshal(ss)
	j := string(b)
	return &j
}

func unmarshalStrings(j sql.NullString) []string {
	if !j.Valid || j.String == "" {
		return nil
	}
	var ss []string
	json.Unmarshal([]byte(j.String), &ss)
	return ss
}
