package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// StartSession creates a session and marks it active, deactivating any
// previously active session in the same transaction. At most one session
// is active at a time; activity is a CLI convenience only, every other
// operation requires an explicit session id.
func (s *SQLiteStore) StartSession(ctx context.Context, p StartSessionParams) (*model.Session, error) {
	if p.Problem == "" {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "problem statement is empty")
	}
	if !model.ValidSessionTypes[p.Type] {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "unknown session type",
			goerr.V("session_type", p.Type))
	}

	now := time.Now().UTC()
	sess := &model.Session{
		ID:               s.newID(),
		ProblemStatement: p.Problem,
		SuccessCriteria:  p.Criteria,
		Constraints:      p.Constraints,
		SessionType:      p.Type,
		ProjectPath:      p.ProjectPath,
		Language:         p.Language,
		Framework:        p.Framework,
		StartedAt:        now,
		LastUpdatedAt:    now,
		IsActive:         true,
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE is_active = 1`); err != nil {
		return nil, mapErr(err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, problem_statement, success_criteria, constraints_json,
		                       session_type, project_path, language, framework,
		                       started_at, last_updated_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		sess.ID, sess.ProblemStatement, sess.SuccessCriteria, marshalStrings(sess.Constraints),
		string(sess.SessionType), nullable(sess.ProjectPath), nullable(sess.Language),
		nullable(sess.Framework), fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, mapErr(err)
	}

	if err := commit(tx); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, goerr.Wrap(model.ErrNotFound, "session not found", goerr.V("session_id", sessionID))
		}
		return nil, mapErr(err)
	}
	return sess, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, sessionSelect+` ORDER BY last_updated_at DESC`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// CloseSession marks a session inactive. Sessions are never deleted by
// normal operation.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0, last_updated_at = ? WHERE id = ?`,
		fmtTime(now), sessionID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(model.ErrNotFound, "session not found", goerr.V("session_id", sessionID))
	}
	return commit(tx)
}

// SetActiveSession activates one session and deactivates all others.
func (s *SQLiteStore) SetActiveSession(ctx context.Context, sessionID string) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE is_active = 1`); err != nil {
		return mapErr(err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = 1 WHERE id = ?`, sessionID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(model.ErrNotFound, "session not found", goerr.V("session_id", sessionID))
	}
	return commit(tx)
}

// ActiveSessionID returns the id of the active session, or ErrNotFound
// when no session is active.
func (s *SQLiteStore) ActiveSessionID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE is_active = 1 ORDER BY last_updated_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", goerr.Wrap(model.ErrNotFound, "no active session")
	}
	if err != nil {
		return "", mapErr(err)
	}
	return id, nil
}

// IncrementSessionCounter bumps one of the session-type counters
// (packages_discovered, patterns_stored, validation_checks).
func (s *SQLiteStore) IncrementSessionCounter(ctx context.Context, sessionID, counter string) error {
	col, ok := map[string]string{
		"packages_discovered": "packages_discovered",
		"patterns_stored":     "patterns_stored",
		"validation_checks":   "validation_checks",
	}[counter]
	if !ok {
		return goerr.Wrap(model.ErrConstraintViolation, "unknown counter", goerr.V("counter", counter))
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET `+col+` = `+col+` + 1, last_updated_at = ? WHERE id = ?`,
		fmtTime(time.Now().UTC()), sessionID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(model.ErrNotFound, "session not found", goerr.V("session_id", sessionID))
	}
	return commit(tx)
}

const sessionSelect = `SELECT id, problem_statement, success_criteria, constraints_json,
	session_type, project_path, language, framework,
	packages_discovered, patterns_stored, validation_checks,
	started_at, last_updated_at, is_active FROM sessions`

func scanSession(row scanner) (*model.Session, error) {
	var sess model.Session
	var constraints, projectPath, language, framework sql.NullString
	var sessionType, startedAt, lastUpdated string
	var active int

	err := row.Scan(&sess.ID, &sess.ProblemStatement, &sess.SuccessCriteria, &constraints,
		&sessionType, &projectPath, &language, &framework,
		&sess.PackagesFound, &sess.PatternsStored, &sess.ValidationChecks,
		&startedAt, &lastUpdated, &active)
	if err != nil {
		return nil, err
	}

	sess.Constraints = unmarshalStrings(constraints)
	sess.SessionType = model.SessionType(sessionType)
	sess.ProjectPath = projectPath.String
	sess.Language = language.String
	sess.Framework = framework.String
	sess.StartedAt = parseTime(startedAt)
	sess.LastUpdatedAt = parseTime(lastUpdated)
	sess.IsActive = active != 0
	return &sess, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
