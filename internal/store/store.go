// Package store provides the session knowledge store interface and its
// SQLite implementation. All mutating operations run inside a single
// transaction that validates referential invariants before commit.
package store

import (
	"context"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// StartSessionParams holds parameters for starting a session.
type StartSessionParams struct {
	Problem     string
	Criteria    string
	Constraints []string
	Type        model.SessionType
	ProjectPath string
	Language    string
	Framework   string
}

// AddMemoryParams holds parameters for storing a memory.
type AddMemoryParams struct {
	SessionID      string
	Content        string
	Confidence     float64
	Dependencies   []string
	Tags           []string
	CollectionID   string
	RevisionOf     string
	TotalEstimated int
	IsCheckpoint   bool
}

// ReviseMemoryParams holds parameters for revising a memory. The
// original row is preserved; revision inserts a new row linked to it.
type ReviseMemoryParams struct {
	SessionID  string
	MemoryID   string
	Content    string
	Confidence float64
}

// ListMemoriesParams holds filters for listing a session's memories.
type ListMemoriesParams struct {
	SessionID    string
	CurrentOnly  bool   // exclude memories superseded by a revision
	CollectionID string // only members of this collection
	Tag          string // only memories carrying this tag
}

// CreateCollectionParams holds parameters for creating a collection.
type CreateCollectionParams struct {
	SessionID    string
	Name         string
	SeedMemoryID string
	Purpose      string
}

// Store defines the session knowledge store interface.
type Store interface {
	// Sessions.
	StartSession(ctx context.Context, p StartSessionParams) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ListSessions(ctx context.Context) ([]model.Session, error)
	CloseSession(ctx context.Context, sessionID string) error
	SetActiveSession(ctx context.Context, sessionID string) error
	ActiveSessionID(ctx context.Context) (string, error)
	IncrementSessionCounter(ctx context.Context, sessionID, counter string) error

	// Memories.
	AddMemory(ctx context.Context, p AddMemoryParams) (*model.Memory, error)
	ReviseMemory(ctx context.Context, p ReviseMemoryParams) (*model.Memory, error)
	GetMemory(ctx context.Context, sessionID, memoryID string) (*model.Memory, error)
	ListMemories(ctx context.Context, p ListMemoriesParams) ([]model.Memory, error)
	LatestRevision(ctx context.Context, sessionID, memoryID string) (*model.Memory, error)

	// Collections.
	CreateCollection(ctx context.Context, p CreateCollectionParams) (*model.Collection, error)
	AddToCollection(ctx context.Context, sessionID, collectionID, memoryID string) (*model.Collection, error)
	MergeCollections(ctx context.Context, sessionID, sourceID, targetID string) (*model.Collection, error)
	GetCollection(ctx context.Context, sessionID, collectionID string) (*model.Collection, error)
	ListCollections(ctx context.Context, sessionID string) ([]model.Collection, error)

	// Patterns.
	UpsertPatterns(ctx context.Context, sessionID string, counts map[string]int) error
	ListPatterns(ctx context.Context, sessionID string) ([]model.Pattern, error)

	// Export returns a stable, format-agnostic read of one session's
	// entities for export collaborators.
	Export(ctx context.Context, sessionID string) (map[string]any, error)

	Close() error
}
