package migrate

import (
	"encoding/json"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// SnapshotName is the legacy flat-file store recognized in the project
// root.
const SnapshotName = "memory_storage.json"

// snapshot mirrors the legacy JSON layout: top-level session and memory
// maps, collections nested inside their session, and a flat pattern
// count map.
type snapshot struct {
	Sessions map[string]snapshotSession `json:"sessions"`
	Memories map[string]snapshotMemory  `json:"memories"`
	Patterns map[string]int             `json:"patterns"`
}

type snapshotSession struct {
	ProblemStatement string                        `json:"problem_statement"`
	SuccessCriteria  string                        `json:"success_criteria"`
	Constraints      []string                      `json:"constraints"`
	MainThread       []string                      `json:"main_thread"`
	Collections      map[string]snapshotCollection `json:"collections"`
	Started          string                        `json:"started"`
	LastUpdated      string                        `json:"last_updated"`
}

type snapshotMemory struct {
	Content        string   `json:"content"`
	Number         int      `json:"number"`
	TotalEstimated int      `json:"total_estimated"`
	Timestamp      string   `json:"timestamp"`
	Confidence     float64  `json:"confidence"`
	Dependencies   []string `json:"dependencies"`
	Tags           []string `json:"tags"`
	CollectionID   string   `json:"collection_id"`
	RevisionOf     string   `json:"revision_of"`
	IsCheckpoint   bool     `json:"is_checkpoint"`
}

type snapshotCollection struct {
	Name        string   `json:"name"`
	CreatedFrom string   `json:"created_from"`
	Purpose     string   `json:"purpose"`
	Memories    []string `json:"memories"`
	Merged      bool     `json:"merged"`
	MergeTarget string   `json:"merge_target"`
}

func loadSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStorageIO, "read snapshot", goerr.V("path", path))
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, goerr.Wrap(model.ErrStorageIO, "parse snapshot",
			goerr.V("path", path), goerr.V("cause", err.Error()))
	}
	return &snap, nil
}

// snapshotTimeLayouts covers RFC3339 and the zone-less ISO form the
// legacy writer produced.
var snapshotTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// parseSnapshotTime is lenient: a missing or malformed timestamp falls
// back to now rather than failing the row, matching the legacy loader.
func parseSnapshotTime(s string, fallback time.Time) time.Time {
	for _, layout := range snapshotTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
