package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// AddMemory stores a new memory. Sequence allocation, reference
// validation and the session timestamp bump all happen in one
// transaction; a failed check rolls back with no partial state.
func (s *SQLiteStore) AddMemory(ctx context.Context, p AddMemoryParams) (*model.Memory, error) {
	now := time.Now().UTC()
	mem := &model.Memory{
		ID:             s.newID(),
		SessionID:      p.SessionID,
		Content:        strings.TrimSpace(p.Content),
		TotalEstimated: p.TotalEstimated,
		Timestamp:      now,
		Confidence:     p.Confidence,
		Dependencies:   p.Dependencies,
		Tags:           p.Tags,
		CollectionID:   p.CollectionID,
		RevisionOf:     p.RevisionOf,
		IsCheckpoint:   p.IsCheckpoint,
	}
	if err := mem.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.insertMemory(ctx, tx, mem, now); err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	return mem, nil
}

// insertMemory validates references, allocates the next sequence number
// and writes the row, all against the caller's transaction.
func (s *SQLiteStore) insertMemory(ctx context.Context, tx *sql.Tx, mem *model.Memory, now time.Time) error {
	count, err := sessionMemoryCount(ctx, tx, mem.SessionID)
	if err != nil {
		return err
	}
	if err := validateDependencies(ctx, tx, mem.SessionID, mem.Dependencies); err != nil {
		return err
	}
	if mem.RevisionOf != "" {
		if err := validateRevision(ctx, tx, mem.SessionID, mem.RevisionOf, count); err != nil {
			return err
		}
	}
	if mem.CollectionID != "" {
		coll, err := getCollectionTx(ctx, tx, mem.SessionID, mem.CollectionID)
		if err != nil {
			return goerr.Wrap(model.ErrInvalidReference, "collection not in session",
				goerr.V("collection_id", mem.CollectionID))
		}
		if coll.Merged {
			return goerr.Wrap(model.ErrConstraintViolation, "collection is merged",
				goerr.V("collection_id", mem.CollectionID))
		}
	}

	// MAX(seq)+1 inside the write transaction keeps sequence numbers
	// strictly increasing and gap-free under concurrent writers.
	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM memories WHERE session_id = ?`,
		mem.SessionID).Scan(&seq)
	if err != nil {
		return mapErr(err)
	}
	mem.Seq = seq

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, session_id, content, seq, total_estimated, timestamp,
		                       confidence, dependencies_json, tags_json, collection_id,
		                       revision_of, is_checkpoint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mem.ID, mem.SessionID, mem.Content, mem.Seq, mem.TotalEstimated, fmtTime(mem.Timestamp),
		mem.Confidence, marshalStrings(mem.Dependencies), marshalStrings(mem.Tags),
		nullable(mem.CollectionID), nullable(mem.RevisionOf), boolInt(mem.IsCheckpoint))
	if err != nil {
		return mapErr(err)
	}

	if mem.CollectionID != "" {
		if err := appendCollectionMember(ctx, tx, mem.SessionID, mem.CollectionID, mem.ID); err != nil {
			return err
		}
	}

	return touchSession(ctx, tx, mem.SessionID, now)
}

// ReviseMemory inserts a new memory row superseding the original. The
// original is never mutated and stays readable for audit; dependencies,
// tags and collection assignment carry over from the ancestor.
func (s *SQLiteStore) ReviseMemory(ctx context.Context, p ReviseMemoryParams) (*model.Memory, error) {
	now := time.Now().UTC()

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	orig, err := getMemoryTx(ctx, tx, p.SessionID, p.MemoryID)
	if err != nil {
		return nil, err
	}

	mem := &model.Memory{
		ID:             s.newID(),
		SessionID:      p.SessionID,
		Content:        strings.TrimSpace(p.Content),
		TotalEstimated: orig.TotalEstimated,
		Timestamp:      now,
		Confidence:     p.Confidence,
		Dependencies:   orig.Dependencies,
		Tags:           orig.Tags,
		CollectionID:   orig.CollectionID,
		RevisionOf:     orig.ID,
		IsCheckpoint:   orig.IsCheckpoint,
	}
	if err := mem.Validate(); err != nil {
		return nil, err
	}

	if err := s.insertMemory(ctx, tx, mem, now); err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	return mem, nil
}

// GetMemory retrieves one memory; the session id scopes the lookup.
func (s *SQLiteStore) GetMemory(ctx context.Context, sessionID, memoryID string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		memorySelect+` WHERE session_id = ? AND id = ?`, sessionID, memoryID)
	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(model.ErrNotFound, "memory not found",
			goerr.V("session_id", sessionID), goerr.V("memory_id", memoryID))
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return mem, nil
}

// ListMemories lists a session's memories ordered by sequence number.
// CurrentOnly excludes every memory that has a child revision.
func (s *SQLiteStore) ListMemories(ctx context.Context, p ListMemoriesParams) ([]model.Memory, error) {
	if _, err := s.GetSession(ctx, p.SessionID); err != nil {
		return nil, err
	}

	where := []string{"m.session_id = ?"}
	args := []any{p.SessionID}

	if p.CurrentOnly {
		where = append(where,
			`NOT EXISTS (SELECT 1 FROM memories r WHERE r.session_id = m.session_id AND r.revision_of = m.id)`)
	}
	if p.CollectionID != "" {
		where = append(where, "m.collection_id = ?")
		args = append(args, p.CollectionID)
	}
	if p.Tag != "" {
		where = append(where, "m.tags_json LIKE ?")
		args = append(args, `%"`+p.Tag+`"%`)
	}

	query := strings.Replace(memorySelect, "memories", "memories m", 1) +
		` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY m.seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

const memorySelect = `SELECT id, session_id, content, seq, total_estimated, timestamp,
	confidence, dependencies_json, tags_json, collection_id, revision_of, is_checkpoint
	FROM memories`

func getMemoryTx(ctx context.Context, tx *sql.Tx, sessionID, memoryID string) (*model.Memory, error) {
	row := tx.QueryRowContext(ctx,
		memorySelect+` WHERE session_id = ? AND id = ?`, sessionID, memoryID)
	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(model.ErrNotFound, "memory not found",
			goerr.V("session_id", sessionID), goerr.V("memory_id", memoryID))
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return mem, nil
}

func scanMemory(row scanner) (*model.Memory, error) {
	var m model.Memory
	var deps, tags, collectionID, revisionOf sql.NullString
	var timestamp string
	var checkpoint int

	err := row.Scan(&m.ID, &m.SessionID, &m.Content, &m.Seq, &m.TotalEstimated, &timestamp,
		&m.Confidence, &deps, &tags, &collectionID, &revisionOf, &checkpoint)
	if err != nil {
		return nil, err
	}

	m.Timestamp = parseTime(timestamp)
	m.Dependencies = unmarshalStrings(deps)
	m.Tags = unmarshalStrings(tags)
	m.CollectionID = collectionID.String
	m.RevisionOf = revisionOf.String
	m.IsCheckpoint = checkpoint != 0
	return &m, nil
}

func sessionMemoryCount(ctx context.Context, tx *sql.Tx, sessionID string) (int, error) {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return 0, mapErr(err)
	}
	if exists == 0 {
		return 0, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V("session_id", sessionID))
	}

	var count int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
