package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// Migration status values persisted in migration_state.
const (
	MigrationInProgress = "in_progress"
	MigrationCompleted  = "completed"
	MigrationFailed     = "failed"
)

// MigrationState is the persisted outcome of a snapshot migration.
type MigrationState struct {
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	Migrated    int       `json:"migrated_rows"`
	Skipped     int       `json:"skipped_rows"`
}

// MigrationState returns the persisted migration state, or nil when no
// migration has ever been attempted.
func (s *SQLiteStore) MigrationState(ctx context.Context) (*MigrationState, error) {
	var st MigrationState
	var completed sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT status, completed_at, migrated_rows, skipped_rows FROM migration_state WHERE id = 1`).
		Scan(&st.Status, &completed, &st.Migrated, &st.Skipped)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	if completed.Valid {
		st.CompletedAt = parseTime(completed.String)
	}
	return &st, nil
}

// MarkMigrationFailed records a failed migration in its own transaction,
// after the import transaction has rolled back.
func (s *SQLiteStore) MarkMigrationFailed(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO migration_state (id, status) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		MigrationFailed)
	return mapErr(err)
}

// ImportTx is a single transaction for snapshot migration. Rows are
// written verbatim: original ids, timestamps and sequence numbers are
// preserved, bypassing the normal allocation path.
type ImportTx struct {
	tx *sql.Tx
	s  *SQLiteStore
}

// BeginImport opens the migration transaction.
func (s *SQLiteStore) BeginImport(ctx context.Context) (*ImportTx, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return &ImportTx{tx: tx, s: s}, nil
}

// Claim performs the check-and-set for "is migration needed". Writing
// the lock row first acquires the database write lock, so two concurrent
// callers cannot both decide to migrate. Returns ErrConstraintViolation
// when a completed migration already exists and force is false.
func (it *ImportTx) Claim(ctx context.Context, force bool) error {
	res, err := it.tx.ExecContext(ctx,
		`INSERT INTO migration_state (id, status) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status
		 WHERE migration_state.status != ? OR ?`,
		MigrationInProgress, MigrationCompleted, boolInt(force))
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(model.ErrConstraintViolation, "migration already completed")
	}
	return nil
}

// EntityRowCount counts rows across the entity tables within the
// transaction's snapshot.
func (it *ImportTx) EntityRowCount(ctx context.Context) (int, error) {
	var total int
	err := it.tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM sessions)
		     + (SELECT COUNT(*) FROM memories)
		     + (SELECT COUNT(*) FROM collections)
		     + (SELECT COUNT(*) FROM patterns)`).Scan(&total)
	if err != nil {
		return 0, mapErr(err)
	}
	return total, nil
}

// InsertSession writes a session row as-is.
func (it *ImportTx) InsertSession(ctx context.Context, sess *model.Session) error {
	_, err := it.tx.ExecContext(ctx,
		`INSERT INTO sessions (id, problem_statement, success_criteria, constraints_json,
		                       session_type, project_path, language, framework,
		                       started_at, last_updated_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProblemStatement, sess.SuccessCriteria, marshalStrings(sess.Constraints),
		string(sess.SessionType), nullable(sess.ProjectPath), nullable(sess.Language),
		nullable(sess.Framework), fmtTime(sess.StartedAt), fmtTime(sess.LastUpdatedAt),
		boolInt(sess.IsActive))
	return mapErr(err)
}

// InsertMemory writes a memory row as-is, keeping the snapshot's
// sequence number.
func (it *ImportTx) InsertMemory(ctx context.Context, mem *model.Memory) error {
	_, err := it.tx.ExecContext(ctx,
		`INSERT INTO memories (id, session_id, content, seq, total_estimated, timestamp,
		                       confidence, dependencies_json, tags_json, collection_id,
		                       revision_of, is_checkpoint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.SessionID, mem.Content, mem.Seq, mem.TotalEstimated, fmtTime(mem.Timestamp),
		mem.Confidence, marshalStrings(mem.Dependencies), marshalStrings(mem.Tags),
		nullable(mem.CollectionID), nullable(mem.RevisionOf), boolInt(mem.IsCheckpoint))
	return mapErr(err)
}

// InsertCollection writes a collection row as-is.
func (it *ImportTx) InsertCollection(ctx context.Context, coll *model.Collection) error {
	_, err := it.tx.ExecContext(ctx,
		`INSERT INTO collections (id, session_id, name, created_from, purpose, members_json, merged, merge_target)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		coll.ID, coll.SessionID, coll.Name, coll.CreatedFrom, nullable(coll.Purpose),
		marshalStrings(coll.MemberIDs), boolInt(coll.Merged), nullable(coll.MergeTarget))
	return mapErr(err)
}

// InsertPattern writes a pattern row; the id is freshly generated since
// the snapshot format stores patterns as a bare map.
func (it *ImportTx) InsertPattern(ctx context.Context, sessionID, pattern string, count int, detectedAt time.Time) error {
	_, err := it.tx.ExecContext(ctx,
		`INSERT INTO patterns (id, session_id, pattern, occurrence_count, last_detected_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, pattern) DO UPDATE SET
		   occurrence_count = excluded.occurrence_count,
		   last_detected_at = excluded.last_detected_at`,
		it.s.newID(), sessionID, pattern, count, fmtTime(detectedAt))
	return mapErr(err)
}

// Finish records the completed migration inside the same transaction.
func (it *ImportTx) Finish(ctx context.Context, migrated, skipped int) error {
	_, err := it.tx.ExecContext(ctx,
		`UPDATE migration_state SET status = ?, completed_at = ?, migrated_rows = ?, skipped_rows = ?
		 WHERE id = 1`,
		MigrationCompleted, fmtTime(time.Now().UTC()), migrated, skipped)
	return mapErr(err)
}

// Commit commits the import transaction.
func (it *ImportTx) Commit() error {
	return commit(it.tx)
}

// Rollback aborts the import transaction.
func (it *ImportTx) Rollback() error {
	return it.tx.Rollback()
}
