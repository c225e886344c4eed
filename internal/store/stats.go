package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string `json:"db_path"`
	DBSizeBytes int64  `json:"db_size_bytes"`
	Sessions    int    `json:"sessions"`
	Memories    int    `json:"memories"`
	Collections int    `json:"collections"`
	Patterns    int    `json:"patterns"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.Sessions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.Memories)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections`).Scan(&st.Collections)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&st.Patterns)

	return st, nil
}

// EntityRowCount sums the rows across all four entity tables. Migration
// uses it to decide whether the database is still pristine.
func (s *SQLiteStore) EntityRowCount(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM sessions)
		     + (SELECT COUNT(*) FROM memories)
		     + (SELECT COUNT(*) FROM collections)
		     + (SELECT COUNT(*) FROM patterns)`).Scan(&total)
	if err != nil {
		return 0, mapErr(err)
	}
	return total, nil
}
