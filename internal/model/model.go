// Package model defines the session, memory, collection and pattern types.
package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// SessionType tags a session with the kind of work it tracks.
type SessionType string

const (
	SessionGeneric      SessionType = ""
	SessionCoding       SessionType = "coding"
	SessionDebugging    SessionType = "debugging"
	SessionArchitecture SessionType = "architecture"
)

// ValidSessionTypes are the allowed session type tags.
var ValidSessionTypes = map[SessionType]bool{
	SessionGeneric:      true,
	SessionCoding:       true,
	SessionDebugging:    true,
	SessionArchitecture: true,
}

// Session is a bounded problem-solving context owning memories,
// collections and patterns.
type Session struct {
	ID               string      `json:"id"`
	ProblemStatement string      `json:"problem_statement"`
	SuccessCriteria  string      `json:"success_criteria"`
	Constraints      []string    `json:"constraints,omitempty"`
	SessionType      SessionType `json:"session_type,omitempty"`
	ProjectPath      string      `json:"project_path,omitempty"`
	Language         string      `json:"language,omitempty"`
	Framework        string      `json:"framework,omitempty"`
	PackagesFound    int         `json:"packages_discovered,omitempty"`
	PatternsStored   int         `json:"patterns_stored,omitempty"`
	ValidationChecks int         `json:"validation_checks,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	LastUpdatedAt    time.Time   `json:"last_updated_at"`
	IsActive         bool        `json:"is_active"`
}

// Memory is one atomic, timestamped insight within a session. A revision
// is a new Memory row linked to its ancestor via RevisionOf; the ancestor
// is never mutated.
type Memory struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Content        string    `json:"content"`
	Seq            int       `json:"sequence_number"`
	TotalEstimated int       `json:"total_estimated,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Confidence     float64   `json:"confidence"`
	Dependencies   []string  `json:"dependencies,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	CollectionID   string    `json:"collection_id,omitempty"`
	RevisionOf     string    `json:"revision_of,omitempty"`
	IsCheckpoint   bool      `json:"is_checkpoint,omitempty"`
}

// Validate checks the range constraints that hold for every memory row.
func (m *Memory) Validate() error {
	if m.Confidence < 0.0 || m.Confidence > 1.0 {
		return goerr.Wrap(ErrConstraintViolation, "confidence must be within [0.0, 1.0]",
			goerr.V("confidence", m.Confidence))
	}
	if m.Content == "" {
		return goerr.Wrap(ErrConstraintViolation, "memory content is empty")
	}
	return nil
}

// Collection is a named, purposeful grouping of memories. Once merged it
// is frozen and its members logically belong to MergeTarget.
type Collection struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"session_id"`
	Name        string   `json:"name"`
	CreatedFrom string   `json:"created_from"`
	Purpose     string   `json:"purpose,omitempty"`
	MemberIDs   []string `json:"member_memory_ids"`
	Merged      bool     `json:"merged"`
	MergeTarget string   `json:"merge_target,omitempty"`
}

// Pattern is a recurring token or theme observed across a session's
// memories. Unique per (session, pattern string).
type Pattern struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Pattern         string    `json:"pattern"`
	OccurrenceCount int       `json:"occurrence_count"`
	LastDetectedAt  time.Time `json:"last_detected_at"`
}
