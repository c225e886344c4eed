package store

import (
	"context"
	"sort"
	"time"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// UpsertPatterns records detected patterns for a session. One row per
// (session, pattern): re-detection updates the count to the observed
// frequency and refreshes last_detected_at, so a repeated pass over
// unchanged data leaves identical rows.
func (s *SQLiteStore) UpsertPatterns(ctx context.Context, sessionID string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := sessionMemoryCount(ctx, tx, sessionID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, pattern := range keys {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO patterns (id, session_id, pattern, occurrence_count, last_detected_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(session_id, pattern) DO UPDATE SET
			   occurrence_count = excluded.occurrence_count,
			   last_detected_at = excluded.last_detected_at`,
			s.newID(), sessionID, pattern, counts[pattern], fmtTime(now))
		if err != nil {
			return mapErr(err)
		}
	}
	if err := touchSession(ctx, tx, sessionID, now); err != nil {
		return err
	}
	return commit(tx)
}

// ListPatterns returns a session's patterns, highest count first with a
// stable alphabetical tiebreak.
func (s *SQLiteStore) ListPatterns(ctx context.Context, sessionID string) ([]model.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, pattern, occurrence_count, last_detected_at
		 FROM patterns WHERE session_id = ?
		 ORDER BY occurrence_count DESC, pattern`, sessionID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var patterns []model.Pattern
	for rows.Next() {
		var p model.Pattern
		var detected string
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Pattern, &p.OccurrenceCount, &detected); err != nil {
			return nil, mapErr(err)
		}
		p.LastDetectedAt = parseTime(detected)
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
