package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy. Components wrap these sentinels with goerr.Wrap and
// attach values; callers match with errors.Is.
var (
	// ErrNotFound means a referenced session, memory or collection is absent.
	ErrNotFound = goerr.New("not found")

	// ErrInvalidReference means a dependency, revision or seed reference
	// points outside the session or at a non-existent id.
	ErrInvalidReference = goerr.New("invalid reference")

	// ErrConstraintViolation covers range, cycle and state violations
	// (confidence out of range, cyclic revision, merge into self).
	ErrConstraintViolation = goerr.New("constraint violation")

	// ErrBusy means the database write lock could not be acquired within
	// the configured timeout. The operation is safe to retry.
	ErrBusy = goerr.New("database busy")

	// ErrStorageIO means the underlying storage medium failed.
	ErrStorageIO = goerr.New("storage failure")

	// ErrMigrationPartial means migration completed but some snapshot rows
	// could not be resolved and were skipped.
	ErrMigrationPartial = goerr.New("migration completed with skipped rows")
)
