package store

import (
	"context"
	"database/sql"

	"github.com/m-mizutani/goerr/v2"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// validateDependencies checks that every dependency id resolves to a
// memory already present in the same session. Forward references and
// cross-session references are rejected before any write.
func validateDependencies(ctx context.Context, tx *sql.Tx, sessionID string, deps []string) error {
	for _, dep := range deps {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memories WHERE session_id = ? AND id = ?`,
			sessionID, dep).Scan(&n)
		if err != nil {
			return mapErr(err)
		}
		if n == 0 {
			return goerr.Wrap(model.ErrInvalidReference, "dependency not in session",
				goerr.V("session_id", sessionID), goerr.V("dependency", dep))
		}
	}
	return nil
}

// validateRevision checks that the revision target exists in the session
// and that following revision_of links from it never revisits a node.
// The walk is bounded by the session's memory count, so a corrupt chain
// cannot loop forever.
func validateRevision(ctx context.Context, tx *sql.Tx, sessionID, revisionOf string, bound int) error {
	seen := map[string]bool{}
	id := revisionOf
	for steps := 0; id != ""; steps++ {
		if steps > bound {
			return goerr.Wrap(model.ErrConstraintViolation, "revision chain exceeds session size",
				goerr.V("session_id", sessionID), goerr.V("revision_of", revisionOf))
		}
		if seen[id] {
			return goerr.Wrap(model.ErrConstraintViolation, "cyclic revision chain",
				goerr.V("session_id", sessionID), goerr.V("memory_id", id))
		}
		seen[id] = true

		var parent sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT revision_of FROM memories WHERE session_id = ? AND id = ?`,
			sessionID, id).Scan(&parent)
		if err == sql.ErrNoRows {
			if id == revisionOf {
				return goerr.Wrap(model.ErrInvalidReference, "revision target not in session",
					goerr.V("session_id", sessionID), goerr.V("revision_of", revisionOf))
			}
			// Ancestor link points at a missing row; same failure class.
			return goerr.Wrap(model.ErrInvalidReference, "broken revision chain",
				goerr.V("session_id", sessionID), goerr.V("memory_id", id))
		}
		if err != nil {
			return mapErr(err)
		}
		id = parent.String
	}
	return nil
}

// LatestRevision resolves the current descendant of a memory: it follows
// child revisions until reaching a memory with no revision pointing at
// it. A memory that was never revised resolves to itself.
func (s *SQLiteStore) LatestRevision(ctx context.Context, sessionID, memoryID string) (*model.Memory, error) {
	mem, err := s.GetMemory(ctx, sessionID, memoryID)
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE session_id = ?`, sessionID).Scan(&total); err != nil {
		return nil, mapErr(err)
	}

	for steps := 0; steps <= total; steps++ {
		var childID string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM memories WHERE session_id = ? AND revision_of = ?
			 ORDER BY seq LIMIT 1`, sessionID, mem.ID).Scan(&childID)
		if err == sql.ErrNoRows {
			return mem, nil
		}
		if err != nil {
			return nil, mapErr(err)
		}
		mem, err = s.GetMemory(ctx, sessionID, childID)
		if err != nil {
			return nil, err
		}
	}
	return nil, goerr.Wrap(model.ErrConstraintViolation, "revision chain exceeds session size",
		goerr.V("session_id", sessionID), goerr.V("memory_id", memoryID))
}
