// Package migrate converts a legacy flat-file snapshot into the durable
// per-project store, exactly once. The "is migration needed" check and
// the row inserts share one write transaction, so concurrent callers
// cannot both migrate the same snapshot; the snapshot itself is backed
// up with a timestamp suffix and never deleted.
package migrate

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

// Status is the migration state machine position.
type Status string

const (
	StatusNotNeeded  Status = "not_needed"
	StatusDetected   Status = "detected"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// RowError records one snapshot row that could not be resolved. Row
// errors are non-fatal: migration continues with the remaining rows.
type RowError struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Result summarizes a migration run.
type Result struct {
	Status      Status     `json:"status"`
	Sessions    int        `json:"sessions_migrated"`
	Memories    int        `json:"memories_migrated"`
	Collections int        `json:"collections_migrated"`
	Patterns    int        `json:"patterns_migrated"`
	Skipped     []RowError `json:"skipped,omitempty"`
	BackupPath  string     `json:"backup_path,omitempty"`
}

func (r *Result) migrated() int {
	return r.Sessions + r.Memories + r.Collections + r.Patterns
}

// Engine runs the one-time snapshot migration for one project root.
type Engine struct {
	store *store.SQLiteStore
	root  string
	log   *zap.Logger
}

// New creates a migration engine for the given project root.
func New(s *store.SQLiteStore, projectRoot string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: s, root: projectRoot, log: log}
}

// SnapshotPath returns the expected legacy snapshot location.
func (e *Engine) SnapshotPath() string {
	return filepath.Join(e.root, SnapshotName)
}

// Detect reports the migration status without mutating anything:
// Detected only when the snapshot exists and the target database holds
// zero entity rows and no completed migration is recorded.
func (e *Engine) Detect(ctx context.Context) (Status, error) {
	state, err := e.store.MigrationState(ctx)
	if err != nil {
		return StatusFailed, err
	}
	if state != nil {
		switch state.Status {
		case store.MigrationCompleted:
			return StatusCompleted, nil
		case store.MigrationFailed:
			return StatusFailed, nil
		case store.MigrationInProgress:
			return StatusInProgress, nil
		}
	}

	if _, err := os.Stat(e.SnapshotPath()); err != nil {
		return StatusNotNeeded, nil
	}
	rows, err := e.store.EntityRowCount(ctx)
	if err != nil {
		return StatusNotNeeded, err
	}
	if rows > 0 {
		return StatusNotNeeded, nil
	}
	return StatusDetected, nil
}

// Run executes the migration. Without force it is a no-op unless Detect
// reports Detected; force re-detects but never erases existing rows.
// When some rows were skipped the returned error wraps
// model.ErrMigrationPartial while the result still reports Completed.
func (e *Engine) Run(ctx context.Context, force bool) (*Result, error) {
	if !force {
		status, err := e.Detect(ctx)
		if err != nil {
			return nil, err
		}
		if status != StatusDetected {
			return &Result{Status: status}, nil
		}
	}
	if _, err := os.Stat(e.SnapshotPath()); err != nil {
		return &Result{Status: StatusNotNeeded}, nil
	}

	snap, err := loadSnapshot(e.SnapshotPath())
	if err != nil {
		return nil, err
	}

	res, err := e.importSnapshot(ctx, snap, force)
	if err != nil {
		if markErr := e.store.MarkMigrationFailed(ctx); markErr != nil {
			e.log.Warn("record failed migration state", zap.Error(markErr))
		}
		return &Result{Status: StatusFailed}, err
	}
	if res.Status != StatusCompleted {
		return res, nil
	}

	backup, err := e.backupSnapshot()
	if err != nil {
		// The database is already authoritative; a failed backup only
		// loses the rename, not data.
		e.log.Warn("snapshot backup failed", zap.Error(err))
	} else {
		res.BackupPath = backup
	}

	e.log.Info("migration completed",
		zap.Int("sessions", res.Sessions),
		zap.Int("memories", res.Memories),
		zap.Int("collections", res.Collections),
		zap.Int("patterns", res.Patterns),
		zap.Int("skipped", len(res.Skipped)))

	if len(res.Skipped) > 0 {
		return res, goerr.Wrap(model.ErrMigrationPartial, "some snapshot rows were skipped",
			goerr.V("skipped", len(res.Skipped)))
	}
	return res, nil
}

// importSnapshot writes every resolvable row within one transaction.
func (e *Engine) importSnapshot(ctx context.Context, snap *snapshot, force bool) (*Result, error) {
	itx, err := e.store.BeginImport(ctx)
	if err != nil {
		return nil, err
	}
	defer itx.Rollback()

	if err := itx.Claim(ctx, force); err != nil {
		if errors.Is(err, model.ErrConstraintViolation) {
			return &Result{Status: StatusCompleted}, nil
		}
		return nil, err
	}
	if !force {
		rows, err := itx.EntityRowCount(ctx)
		if err != nil {
			return nil, err
		}
		if rows > 0 {
			return &Result{Status: StatusNotNeeded}, nil
		}
	}

	res := &Result{Status: StatusCompleted}
	now := time.Now().UTC()

	sessionIDs := sortedKeys(snap.Sessions)
	for _, id := range sessionIDs {
		sd := snap.Sessions[id]
		sess := &model.Session{
			ID:               id,
			ProblemStatement: sd.ProblemStatement,
			SuccessCriteria:  sd.SuccessCriteria,
			Constraints:      sd.Constraints,
			StartedAt:        parseSnapshotTime(sd.Started, now),
			LastUpdatedAt:    parseSnapshotTime(sd.LastUpdated, now),
		}
		if err := itx.InsertSession(ctx, sess); err != nil {
			return nil, err
		}
		res.Sessions++
	}

	memorySession := assignMemorySessions(snap)
	inserted := map[string]bool{}
	skippedMemory := map[string]bool{}

	// Rounds: a memory is insertable once its revision target and
	// dependencies are either already inserted or known-absent (which
	// skips the row instead). Rows left after a no-progress round are
	// unresolvable.
	pending := make([]string, 0, len(snap.Memories))
	for id := range snap.Memories {
		pending = append(pending, id)
	}
	sort.Slice(pending, func(i, j int) bool {
		mi, mj := snap.Memories[pending[i]], snap.Memories[pending[j]]
		if mi.Number != mj.Number {
			return mi.Number < mj.Number
		}
		return pending[i] < pending[j]
	})

	for len(pending) > 0 {
		progressed := false
		var next []string
		for _, id := range pending {
			md := snap.Memories[id]
			sessionID, ok := memorySession[id]
			if !ok {
				res.Skipped = append(res.Skipped, RowError{
					Entity: "memory", ID: id, Reason: "not referenced by any session"})
				skippedMemory[id] = true
				progressed = true
				continue
			}

			ready, rowErr := memoryRefsReady(id, md, sessionID, snap, memorySession, inserted, skippedMemory)
			if rowErr != nil {
				res.Skipped = append(res.Skipped, *rowErr)
				skippedMemory[id] = true
				progressed = true
				continue
			}
			if !ready {
				next = append(next, id)
				continue
			}

			mem := &model.Memory{
				ID:             id,
				SessionID:      sessionID,
				Content:        md.Content,
				Seq:            md.Number,
				TotalEstimated: md.TotalEstimated,
				Timestamp:      parseSnapshotTime(md.Timestamp, now),
				Confidence:     md.Confidence,
				Dependencies:   md.Dependencies,
				Tags:           md.Tags,
				CollectionID:   md.CollectionID,
				RevisionOf:     md.RevisionOf,
				IsCheckpoint:   md.IsCheckpoint,
			}
			if err := itx.InsertMemory(ctx, mem); err != nil {
				return nil, err
			}
			inserted[id] = true
			res.Memories++
			progressed = true
		}
		if !progressed {
			for _, id := range next {
				res.Skipped = append(res.Skipped, RowError{
					Entity: "memory", ID: id, Reason: "unresolvable reference chain"})
				skippedMemory[id] = true
			}
			next = nil
		}
		pending = next
	}

	for _, sessionID := range sessionIDs {
		sd := snap.Sessions[sessionID]
		for _, collID := range sortedKeys(sd.Collections) {
			cd := sd.Collections[collID]
			if cd.CreatedFrom != "" && !inserted[cd.CreatedFrom] {
				res.Skipped = append(res.Skipped, RowError{
					Entity: "collection", ID: collID, Reason: "seed memory missing"})
				continue
			}
			members := make([]string, 0, len(cd.Memories))
			for _, mid := range cd.Memories {
				if inserted[mid] {
					members = append(members, mid)
				}
			}
			coll := &model.Collection{
				ID:          collID,
				SessionID:   sessionID,
				Name:        cd.Name,
				CreatedFrom: cd.CreatedFrom,
				Purpose:     cd.Purpose,
				MemberIDs:   members,
				Merged:      cd.Merged,
				MergeTarget: cd.MergeTarget,
			}
			if err := itx.InsertCollection(ctx, coll); err != nil {
				return nil, err
			}
			res.Collections++
		}
	}

	if len(snap.Patterns) > 0 {
		patternSession := latestSession(snap, sessionIDs)
		if patternSession == "" {
			for _, p := range sortedKeys(snap.Patterns) {
				res.Skipped = append(res.Skipped, RowError{
					Entity: "pattern", ID: p, Reason: "no session to attach to"})
			}
		} else {
			for _, p := range sortedKeys(snap.Patterns) {
				if err := itx.InsertPattern(ctx, patternSession, p, snap.Patterns[p], now); err != nil {
					return nil, err
				}
				res.Patterns++
			}
		}
	}

	if err := itx.Finish(ctx, res.migrated(), len(res.Skipped)); err != nil {
		return nil, err
	}
	if err := itx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// assignMemorySessions maps memory ids to their owning session: seeded
// from main threads and collection membership, then propagated along
// revision_of and dependency links until stable. The legacy writer
// dropped revised-away ancestors from the thread lists, so the chain
// walk is what recovers their owner.
func assignMemorySessions(snap *snapshot) map[string]string {
	owner := map[string]string{}
	for sessionID, sd := range snap.Sessions {
		for _, mid := range sd.MainThread {
			owner[mid] = sessionID
		}
		for _, cd := range sd.Collections {
			for _, mid := range cd.Memories {
				owner[mid] = sessionID
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for mid, sessionID := range owner {
			md, ok := snap.Memories[mid]
			if !ok {
				continue
			}
			refs := append([]string{md.RevisionOf}, md.Dependencies...)
			for _, ref := range refs {
				if ref == "" {
					continue
				}
				if _, known := owner[ref]; !known {
					if _, exists := snap.Memories[ref]; exists {
						owner[ref] = sessionID
						changed = true
					}
				}
			}
		}
	}
	return owner
}

// memoryRefsReady reports whether every reference of a memory is already
// inserted. A reference that cannot ever resolve (absent from the
// snapshot, skipped, or cross-session) yields a RowError instead.
func memoryRefsReady(id string, md snapshotMemory, sessionID string, snap *snapshot,
	owner map[string]string, inserted, skipped map[string]bool) (bool, *RowError) {

	check := func(ref, kind string) (bool, *RowError) {
		if ref == "" {
			return true, nil
		}
		if skipped[ref] {
			return false, &RowError{Entity: "memory", ID: id, Reason: kind + " was skipped"}
		}
		if _, exists := snap.Memories[ref]; !exists {
			return false, &RowError{Entity: "memory", ID: id, Reason: kind + " not in snapshot"}
		}
		if owner[ref] != sessionID {
			return false, &RowError{Entity: "memory", ID: id, Reason: kind + " belongs to another session"}
		}
		return inserted[ref], nil
	}

	ready, rowErr := check(md.RevisionOf, "revision target")
	if rowErr != nil || !ready {
		return ready, rowErr
	}
	for _, dep := range md.Dependencies {
		ready, rowErr = check(dep, "dependency")
		if rowErr != nil || !ready {
			return ready, rowErr
		}
	}
	return true, nil
}

// latestSession picks the most recently updated session; the legacy
// format kept one global pattern map, attached on migration to the
// freshest session.
func latestSession(snap *snapshot, ids []string) string {
	latest := ""
	var latestAt string
	for _, id := range ids {
		if sd := snap.Sessions[id]; latest == "" || sd.LastUpdated > latestAt {
			latest = id
			latestAt = sd.LastUpdated
		}
	}
	return latest
}

// backupSnapshot copies the snapshot to a timestamped path next to it.
// The original is left on disk.
func (e *Engine) backupSnapshot() (string, error) {
	src := e.SnapshotPath()
	dst := src + ".backup_" + time.Now().UTC().Format("20060102_150405")

	in, err := os.Open(src)
	if err != nil {
		return "", goerr.Wrap(model.ErrStorageIO, "open snapshot", goerr.V("path", src))
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", goerr.Wrap(model.ErrStorageIO, "create backup", goerr.V("path", dst))
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", goerr.Wrap(model.ErrStorageIO, "copy snapshot", goerr.V("path", dst))
	}
	return dst, nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
