package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// CreateCollection creates a collection seeded by an existing memory of
// the same session. Membership starts as {seed}.
func (s *SQLiteStore) CreateCollection(ctx context.Context, p CreateCollectionParams) (*model.Collection, error) {
	if p.Name == "" {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "collection name is empty")
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	seed, err := getMemoryTx(ctx, tx, p.SessionID, p.SeedMemoryID)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidReference, "seed memory not in session",
			goerr.V("session_id", p.SessionID), goerr.V("memory_id", p.SeedMemoryID))
	}
	if seed.CollectionID != "" {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "seed memory already belongs to a collection",
			goerr.V("memory_id", seed.ID), goerr.V("collection_id", seed.CollectionID))
	}

	coll := &model.Collection{
		ID:          s.newID(),
		SessionID:   p.SessionID,
		Name:        p.Name,
		CreatedFrom: seed.ID,
		Purpose:     p.Purpose,
		MemberIDs:   []string{seed.ID},
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO collections (id, session_id, name, created_from, purpose, members_json, merged, merge_target)
		 VALUES (?, ?, ?, ?, ?, ?, 0, NULL)`,
		coll.ID, coll.SessionID, coll.Name, coll.CreatedFrom, nullable(coll.Purpose),
		marshalStrings(coll.MemberIDs))
	if err != nil {
		return nil, mapErr(err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET collection_id = ? WHERE id = ?`, coll.ID, seed.ID); err != nil {
		return nil, mapErr(err)
	}
	if err := touchSession(ctx, tx, p.SessionID, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	return coll, nil
}

// AddToCollection attaches an existing memory to a collection. Merged
// collections are frozen; a memory belongs to at most one collection.
func (s *SQLiteStore) AddToCollection(ctx context.Context, sessionID, collectionID, memoryID string) (*model.Collection, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	coll, err := getCollectionTx(ctx, tx, sessionID, collectionID)
	if err != nil {
		return nil, err
	}
	if coll.Merged {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "collection is merged",
			goerr.V("collection_id", collectionID))
	}

	mem, err := getMemoryTx(ctx, tx, sessionID, memoryID)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidReference, "memory not in session",
			goerr.V("session_id", sessionID), goerr.V("memory_id", memoryID))
	}
	if mem.CollectionID == collectionID {
		return coll, nil
	}
	if mem.CollectionID != "" {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "memory already belongs to a collection",
			goerr.V("memory_id", memoryID), goerr.V("collection_id", mem.CollectionID))
	}

	coll.MemberIDs = append(coll.MemberIDs, memoryID)
	if err := updateCollectionMembers(ctx, tx, coll); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET collection_id = ? WHERE id = ?`, collectionID, memoryID); err != nil {
		return nil, mapErr(err)
	}
	if err := touchSession(ctx, tx, sessionID, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	return coll, nil
}

// MergeCollections folds the source collection into the target. The
// source row persists, frozen and pointing at the target; unique source
// members are appended after the target's existing order. Re-merging an
// already-merged source into the same target is a no-op.
func (s *SQLiteStore) MergeCollections(ctx context.Context, sessionID, sourceID, targetID string) (*model.Collection, error) {
	if sourceID == targetID {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "cannot merge collection into itself",
			goerr.V("collection_id", sourceID))
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	source, err := getCollectionTx(ctx, tx, sessionID, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := getCollectionTx(ctx, tx, sessionID, targetID)
	if err != nil {
		return nil, err
	}

	if source.Merged {
		if source.MergeTarget == targetID {
			return target, nil
		}
		return nil, goerr.Wrap(model.ErrConstraintViolation, "source already merged elsewhere",
			goerr.V("source", sourceID), goerr.V("merge_target", source.MergeTarget))
	}
	if target.Merged {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "target is already merged",
			goerr.V("target", targetID), goerr.V("merge_target", target.MergeTarget))
	}
	if err := checkMergeCycle(ctx, tx, sessionID, sourceID, targetID); err != nil {
		return nil, err
	}

	existing := make(map[string]bool, len(target.MemberIDs))
	for _, id := range target.MemberIDs {
		existing[id] = true
	}
	for _, id := range source.MemberIDs {
		if !existing[id] {
			target.MemberIDs = append(target.MemberIDs, id)
			existing[id] = true
		}
	}

	if err := updateCollectionMembers(ctx, tx, target); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE collections SET merged = 1, merge_target = ? WHERE id = ?`, targetID, sourceID)
	if err != nil {
		return nil, mapErr(err)
	}
	// Members transfer logically; the weak back-reference follows.
	_, err = tx.ExecContext(ctx,
		`UPDATE memories SET collection_id = ? WHERE session_id = ? AND collection_id = ?`,
		targetID, sessionID, sourceID)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := touchSession(ctx, tx, sessionID, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	return target, nil
}

// checkMergeCycle walks merge_target links from the target; reaching the
// source would make the merge graph cyclic. Bounded by the session's
// collection count.
func checkMergeCycle(ctx context.Context, tx *sql.Tx, sessionID, sourceID, targetID string) error {
	var bound int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collections WHERE session_id = ?`, sessionID).Scan(&bound); err != nil {
		return mapErr(err)
	}

	id := targetID
	for steps := 0; id != ""; steps++ {
		if steps > bound {
			return goerr.Wrap(model.ErrConstraintViolation, "merge chain exceeds collection count",
				goerr.V("session_id", sessionID))
		}
		if id == sourceID {
			return goerr.Wrap(model.ErrConstraintViolation, "merge would create a cycle",
				goerr.V("source", sourceID), goerr.V("target", targetID))
		}
		var next sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT merge_target FROM collections WHERE session_id = ? AND id = ?`,
			sessionID, id).Scan(&next)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return mapErr(err)
		}
		id = next.String
	}
	return nil
}

// GetCollection retrieves a collection scoped by session id.
func (s *SQLiteStore) GetCollection(ctx context.Context, sessionID, collectionID string) (*model.Collection, error) {
	row := s.db.QueryRowContext(ctx,
		collectionSelect+` WHERE session_id = ? AND id = ?`, sessionID, collectionID)
	coll, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(model.ErrNotFound, "collection not found",
			goerr.V("session_id", sessionID), goerr.V("collection_id", collectionID))
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return coll, nil
}

// ListCollections returns a session's collections, oldest first.
func (s *SQLiteStore) ListCollections(ctx context.Context, sessionID string) ([]model.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		collectionSelect+` WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var colls []model.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		colls = append(colls, *c)
	}
	return colls, rows.Err()
}

const collectionSelect = `SELECT id, session_id, name, created_from, purpose, members_json, merged, merge_target
	FROM collections`

func getCollectionTx(ctx context.Context, tx *sql.Tx, sessionID, collectionID string) (*model.Collection, error) {
	row := tx.QueryRowContext(ctx,
		collectionSelect+` WHERE session_id = ? AND id = ?`, sessionID, collectionID)
	coll, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(model.ErrNotFound, "collection not found",
			goerr.V("session_id", sessionID), goerr.V("collection_id", collectionID))
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return coll, nil
}

func scanCollection(row scanner) (*model.Collection, error) {
	var c model.Collection
	var purpose, members, mergeTarget sql.NullString
	var merged int

	err := row.Scan(&c.ID, &c.SessionID, &c.Name, &c.CreatedFrom, &purpose, &members, &merged, &mergeTarget)
	if err != nil {
		return nil, err
	}

	c.Purpose = purpose.String
	c.MemberIDs = unmarshalStrings(members)
	c.Merged = merged != 0
	c.MergeTarget = mergeTarget.String
	return &c, nil
}

func updateCollectionMembers(ctx context.Context, tx *sql.Tx, coll *model.Collection) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE collections SET members_json = ? WHERE id = ?`,
		marshalStrings(coll.MemberIDs), coll.ID)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// appendCollectionMember records a freshly inserted memory in its
// collection's member list (same transaction as the memory insert).
func appendCollectionMember(ctx context.Context, tx *sql.Tx, sessionID, collectionID, memoryID string) error {
	coll, err := getCollectionTx(ctx, tx, sessionID, collectionID)
	if err != nil {
		return err
	}
	for _, id := range coll.MemberIDs {
		if id == memoryID {
			return nil
		}
	}
	coll.MemberIDs = append(coll.MemberIDs, memoryID)
	return updateCollectionMembers(ctx, tx, coll)
}
