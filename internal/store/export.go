package store

import (
	"context"
)

// Export returns a complete, format-agnostic read of one session: the
// session fields, every memory (with current ids separated), collections
// and patterns. Serialization to markdown/JSON is the caller's concern.
func (s *SQLiteStore) Export(ctx context.Context, sessionID string) (map[string]any, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	all, err := s.ListMemories(ctx, ListMemoriesParams{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	current, err := s.ListMemories(ctx, ListMemoriesParams{SessionID: sessionID, CurrentOnly: true})
	if err != nil {
		return nil, err
	}
	colls, err := s.ListCollections(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	patterns, err := s.ListPatterns(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	currentIDs := make([]string, 0, len(current))
	for _, m := range current {
		currentIDs = append(currentIDs, m.ID)
	}

	memories := make([]map[string]any, 0, len(all))
	for _, m := range all {
		memories = append(memories, map[string]any{
			"id":              m.ID,
			"content":         m.Content,
			"sequence_number": m.Seq,
			"total_estimated": m.TotalEstimated,
			"timestamp":       m.Timestamp,
			"confidence":      m.Confidence,
			"dependencies":    m.Dependencies,
			"tags":            m.Tags,
			"collection_id":   m.CollectionID,
			"revision_of":     m.RevisionOf,
			"is_checkpoint":   m.IsCheckpoint,
		})
	}

	collections := make([]map[string]any, 0, len(colls))
	for _, c := range colls {
		collections = append(collections, map[string]any{
			"id":                c.ID,
			"name":              c.Name,
			"created_from":      c.CreatedFrom,
			"purpose":           c.Purpose,
			"member_memory_ids": c.MemberIDs,
			"merged":            c.Merged,
			"merge_target":      c.MergeTarget,
		})
	}

	patternMap := make(map[string]int, len(patterns))
	for _, p := range patterns {
		patternMap[p.Pattern] = p.OccurrenceCount
	}

	return map[string]any{
		"session": map[string]any{
			"id":                  sess.ID,
			"problem_statement":   sess.ProblemStatement,
			"success_criteria":    sess.SuccessCriteria,
			"constraints":         sess.Constraints,
			"session_type":        string(sess.SessionType),
			"project_path":        sess.ProjectPath,
			"language":            sess.Language,
			"framework":           sess.Framework,
			"packages_discovered": sess.PackagesFound,
			"patterns_stored":     sess.PatternsStored,
			"validation_checks":   sess.ValidationChecks,
			"started_at":          sess.StartedAt,
			"last_updated_at":     sess.LastUpdatedAt,
			"is_active":           sess.IsActive,
		},
		"memories":           memories,
		"current_memory_ids": currentIDs,
		"collections":        collections,
		"patterns":           patternMap,
	}, nil
}
