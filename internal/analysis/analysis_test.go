package analysis

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

func newTestEnv(t *testing.T) (*store.SQLiteStore, string) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sess, err := s.StartSession(context.Background(), store.StartSessionParams{
		Problem:  "api timeouts under load",
		Criteria: "p99 under 200ms",
	})
	require.NoError(t, err)
	return s, sess.ID
}

func addMemory(t *testing.T, s *store.SQLiteStore, sessionID, content string, confidence float64, tags ...string) string {
	t.Helper()
	mem, err := s.AddMemory(context.Background(), store.AddMemoryParams{
		SessionID:  sessionID,
		Content:    content,
		Confidence: confidence,
		Tags:       tags,
	})
	require.NoError(t, err)
	return mem.ID
}

func TestAnalyzeEmptySession(t *testing.T) {
	s, sessionID := newTestEnv(t)
	engine := New(s, DefaultConfig())

	report, err := engine.Analyze(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalMemories)
	assert.Nil(t, report.AverageConfidence)
	assert.Empty(t, report.Contradictions)
	assert.Equal(t, QualityInsufficient, report.Quality)
}

func TestAnalyzeAverageConfidence(t *testing.T) {
	s, sessionID := newTestEnv(t)
	addMemory(t, s, sessionID, "connection pool exhausted under load", 0.6)
	addMemory(t, s, sessionID, "raising pool size reduced timeouts", 0.8)

	engine := New(s, DefaultConfig())
	report, err := engine.Analyze(context.Background(), sessionID)
	require.NoError(t, err)

	require.NotNil(t, report.AverageConfidence)
	assert.InDelta(t, 0.7, *report.AverageConfidence, 1e-9)
}

func TestAnalyzeConfidenceIgnoresRevisedAway(t *testing.T) {
	ctx := context.Background()
	s, sessionID := newTestEnv(t)

	orig := addMemory(t, s, sessionID, "initial low-confidence guess", 0.2)
	_, err := s.ReviseMemory(ctx, store.ReviseMemoryParams{
		SessionID: sessionID, MemoryID: orig, Content: "confirmed root cause", Confidence: 0.9,
	})
	require.NoError(t, err)

	engine := New(s, DefaultConfig())
	report, err := engine.Analyze(ctx, sessionID)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalMemories)
	assert.Equal(t, 1, report.CurrentMemories)
	assert.Equal(t, 1, report.Revisions)
	require.NotNil(t, report.AverageConfidence)
	assert.InDelta(t, 0.9, *report.AverageConfidence, 1e-9)
}

func TestDetectContradictions(t *testing.T) {
	s, sessionID := newTestEnv(t)

	a := addMemory(t, s, sessionID, "the cache is not the bottleneck", 0.7, "cache")
	b := addMemory(t, s, sessionID, "it is true the cache dominates latency", 0.7, "cache")
	addMemory(t, s, sessionID, "unrelated note about deployments", 0.7, "deploy")

	engine := New(s, DefaultConfig())
	report, err := engine.Analyze(context.Background(), sessionID)
	require.NoError(t, err)

	require.Len(t, report.Contradictions, 1)
	pair := report.Contradictions[0]
	assert.Equal(t, "cache", pair.SharedTag)
	assert.LessOrEqual(t, pair.A, pair.B)
	got := map[string]bool{pair.A: true, pair.B: true}
	assert.True(t, got[a] && got[b])
}

func TestNoContradictionWithoutSharedTag(t *testing.T) {
	s, sessionID := newTestEnv(t)

	addMemory(t, s, sessionID, "this approach is wrong", 0.7, "alpha")
	addMemory(t, s, sessionID, "this approach is correct", 0.7, "beta")

	engine := New(s, DefaultConfig())
	report, err := engine.Analyze(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, report.Contradictions)
}

func TestDetectPatterns(t *testing.T) {
	s, sessionID := newTestEnv(t)

	addMemory(t, s, sessionID, "the latency spike happens because the pool drains", 0.7)
	addMemory(t, s, sessionID, "because the pool drains, latency climbs; therefore cap connections", 0.7)
	addMemory(t, s, sessionID, "therefore the fix is a bounded pool", 0.7)

	engine := New(s, DefaultConfig())
	report, err := engine.Analyze(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Patterns["because"])
	assert.Equal(t, 2, report.Patterns["therefore"])
	assert.Equal(t, 3, report.Patterns["pool"])
	assert.NotContains(t, report.Patterns, "the")
	assert.NotContains(t, report.Patterns, "fix")

	stored, err := s.ListPatterns(context.Background(), sessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
}

func TestPatternCountMatchesOccurrences(t *testing.T) {
	s, sessionID := newTestEnv(t)

	// "because" appears exactly once per memory; the stored count must
	// be 2, not inflated by counting it as both token and key phrase.
	addMemory(t, s, sessionID, "latency climbs because the pool drains", 0.7)
	addMemory(t, s, sessionID, "because the pool drains we must cap it", 0.7)

	report, err := New(s, DefaultConfig()).Analyze(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Patterns["because"])

	patterns, err := s.ListPatterns(context.Background(), sessionID)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, p := range patterns {
		counts[p.Pattern] = p.OccurrenceCount
	}
	assert.Equal(t, 2, counts["because"])
}

func TestMultiWordKeyPhraseCounted(t *testing.T) {
	s, sessionID := newTestEnv(t)

	addMemory(t, s, sessionID, "reasoning from first principles about the cache", 0.7)
	addMemory(t, s, sessionID, "first principles say the cache must be bounded", 0.7)

	report, err := New(s, DefaultConfig()).Analyze(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Patterns["first principles"])
}

func TestAnalyzeDeterministic(t *testing.T) {
	ctx := context.Background()
	s, sessionID := newTestEnv(t)

	addMemory(t, s, sessionID, "the parser is not at fault", 0.8, "parser")
	addMemory(t, s, sessionID, "it is true the parser mishandles unicode", 0.8, "parser")
	addMemory(t, s, sessionID, "assumption: inputs are ascii. that assumption is stale", 0.8)

	engine := New(s, DefaultConfig())
	first, err := engine.Analyze(ctx, sessionID)
	require.NoError(t, err)
	second, err := engine.Analyze(ctx, sessionID)
	require.NoError(t, err)

	assert.Equal(t, first.Contradictions, second.Contradictions)
	assert.Equal(t, first.Patterns, second.Patterns)
	assert.Equal(t, first.Quality, second.Quality)

	// Re-analysis leaves the same pattern rows in place.
	patterns, err := s.ListPatterns(ctx, sessionID)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, p := range patterns {
		counts[p.Pattern] = p.OccurrenceCount
	}
	assert.Equal(t, first.Patterns, counts)
}

func TestQualityBuckets(t *testing.T) {
	t.Run("insufficient below minimum memories", func(t *testing.T) {
		s, sessionID := newTestEnv(t)
		addMemory(t, s, sessionID, "only one note", 0.9)

		report, err := New(s, DefaultConfig()).Analyze(context.Background(), sessionID)
		require.NoError(t, err)
		assert.Equal(t, QualityInsufficient, report.Quality)
	})

	t.Run("high with confident uncontradicted memories", func(t *testing.T) {
		s, sessionID := newTestEnv(t)
		addMemory(t, s, sessionID, "observation one", 0.9)
		addMemory(t, s, sessionID, "observation two", 0.85)
		addMemory(t, s, sessionID, "observation three", 0.9)

		report, err := New(s, DefaultConfig()).Analyze(context.Background(), sessionID)
		require.NoError(t, err)
		assert.Equal(t, QualityHigh, report.Quality)
	})

	t.Run("good with middling confidence", func(t *testing.T) {
		s, sessionID := newTestEnv(t)
		addMemory(t, s, sessionID, "observation one", 0.6)
		addMemory(t, s, sessionID, "observation two", 0.7)
		addMemory(t, s, sessionID, "observation three", 0.65)

		report, err := New(s, DefaultConfig()).Analyze(context.Background(), sessionID)
		require.NoError(t, err)
		assert.Equal(t, QualityGood, report.Quality)
	})

	t.Run("basic with low confidence", func(t *testing.T) {
		s, sessionID := newTestEnv(t)
		addMemory(t, s, sessionID, "observation one", 0.3)
		addMemory(t, s, sessionID, "observation two", 0.4)
		addMemory(t, s, sessionID, "observation three", 0.35)

		report, err := New(s, DefaultConfig()).Analyze(context.Background(), sessionID)
		require.NoError(t, err)
		assert.Equal(t, QualityBasic, report.Quality)
	})

	t.Run("contradiction blocks high", func(t *testing.T) {
		s, sessionID := newTestEnv(t)
		addMemory(t, s, sessionID, "the theory is not sound", 0.9, "theory")
		addMemory(t, s, sessionID, "the theory is correct", 0.9, "theory")
		addMemory(t, s, sessionID, "third observation", 0.9)

		report, err := New(s, DefaultConfig()).Analyze(context.Background(), sessionID)
		require.NoError(t, err)
		assert.Equal(t, QualityGood, report.Quality)
	})
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("The Pool, drains; the POOL drains!")
	assert.Equal(t, []string{"the", "pool", "drains", "the", "pool", "drains"}, tokens)

	set := tokenSet("it is NOT ok")
	assert.True(t, set["not"])
	assert.True(t, set["ok"])
}
