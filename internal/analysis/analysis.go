// Package analysis computes read-side quality metrics for one session:
// contradiction candidates, confidence aggregation and recurring-term
// detection. It never mutates memories or collections; its only write is
// the idempotent pattern upsert.
package analysis

import (
	"context"
	"sort"
	"strings"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

// ReadStore is the slice of the store the engine needs.
type ReadStore interface {
	ListMemories(ctx context.Context, p store.ListMemoriesParams) ([]model.Memory, error)
	ListCollections(ctx context.Context, sessionID string) ([]model.Collection, error)
	UpsertPatterns(ctx context.Context, sessionID string, counts map[string]int) error
	ListPatterns(ctx context.Context, sessionID string) ([]model.Pattern, error)
}

// ContradictionPair flags two current memories as a contradiction
// candidate. A < B, so symmetric pairs collapse to one entry.
type ContradictionPair struct {
	A         string `json:"a"`
	B         string `json:"b"`
	SharedTag string `json:"shared_tag"`
}

// Report is the metrics snapshot for one session.
type Report struct {
	SessionID         string              `json:"session_id"`
	TotalMemories     int                 `json:"total_memories"`
	CurrentMemories   int                 `json:"current_memories"`
	Revisions         int                 `json:"revisions"`
	Collections       int                 `json:"collections"`
	AverageConfidence *float64            `json:"average_confidence"` // nil when no current memories
	Contradictions    []ContradictionPair `json:"contradictions"`
	Patterns          map[string]int      `json:"patterns"`
	Quality           string              `json:"quality"`
}

// Quality buckets.
const (
	QualityInsufficient = "insufficient"
	QualityBasic        = "basic"
	QualityGood         = "good"
	QualityHigh         = "high"
)

// Engine computes session metrics against a store.
type Engine struct {
	store ReadStore
	cfg   Config
}

// New creates an engine. Zero-valued config fields fall back to
// defaults.
func New(s ReadStore, cfg Config) *Engine {
	return &Engine{store: s, cfg: cfg.withDefaults()}
}

// Analyze computes the full report for one session and upserts the
// detected patterns. Two consecutive calls on unchanged data produce
// identical reports and identical pattern rows.
func (e *Engine) Analyze(ctx context.Context, sessionID string) (*Report, error) {
	all, err := e.store.ListMemories(ctx, store.ListMemoriesParams{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	current, err := e.store.ListMemories(ctx, store.ListMemoriesParams{SessionID: sessionID, CurrentOnly: true})
	if err != nil {
		return nil, err
	}
	colls, err := e.store.ListCollections(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	revisions := 0
	for _, m := range all {
		if m.RevisionOf != "" {
			revisions++
		}
	}

	report := &Report{
		SessionID:       sessionID,
		TotalMemories:   len(all),
		CurrentMemories: len(current),
		Revisions:       revisions,
		Collections:     len(colls),
		Contradictions:  e.detectContradictions(current),
	}

	if len(current) > 0 {
		sum := 0.0
		for _, m := range current {
			sum += m.Confidence
		}
		avg := sum / float64(len(current))
		report.AverageConfidence = &avg
	}

	report.Patterns = e.detectPatterns(current)
	if err := e.store.UpsertPatterns(ctx, sessionID, report.Patterns); err != nil {
		return nil, err
	}

	report.Quality = e.quality(report)
	return report, nil
}

// detectContradictions flags pairs of current memories that share a tag
// where one side matches the negation markers and the other the
// affirmative markers. Token-level heuristic, not a semantic judgment.
func (e *Engine) detectContradictions(current []model.Memory) []ContradictionPair {
	type side struct {
		mem      model.Memory
		negative bool
		positive bool
	}

	sides := make([]side, len(current))
	for i, m := range current {
		tokens := tokenSet(m.Content)
		sides[i] = side{
			mem:      m,
			negative: matchesAny(tokens, e.cfg.NegationMarkers),
			positive: matchesAny(tokens, e.cfg.AffirmativeMarkers),
		}
	}

	seen := map[[2]string]bool{}
	var pairs []ContradictionPair
	for i := 0; i < len(sides); i++ {
		for j := i + 1; j < len(sides); j++ {
			tag := sharedTag(sides[i].mem.Tags, sides[j].mem.Tags)
			if tag == "" {
				continue
			}
			opposed := (sides[i].negative && sides[j].positive) ||
				(sides[i].positive && sides[j].negative)
			if !opposed {
				continue
			}
			a, b := sides[i].mem.ID, sides[j].mem.ID
			if b < a {
				a, b = b, a
			}
			key := [2]string{a, b}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, ContradictionPair{A: a, B: b, SharedTag: tag})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// detectPatterns counts stopword-filtered token frequency plus the
// configured key phrases across current memories, keeping entries at or
// above the occurrence threshold. Single-word key phrases are already
// covered by the token pass; the phrase pass only counts multi-word
// phrases, so no key lands in the map twice per occurrence.
func (e *Engine) detectPatterns(current []model.Memory) map[string]int {
	counts := map[string]int{}
	for _, m := range current {
		for _, tok := range tokenize(m.Content) {
			if e.cfg.stopwords[tok] {
				continue
			}
			counts[tok]++
		}
		lower := foldContent(m.Content)
		for _, phrase := range e.cfg.KeyPhrases {
			if !strings.Contains(phrase, " ") {
				continue
			}
			counts[phrase] += countOccurrences(lower, phrase)
		}
	}

	detected := map[string]int{}
	for tok, n := range counts {
		if n >= e.cfg.MinOccurrences {
			detected[tok] = n
		}
	}
	return detected
}

// quality derives the bucket from memory count, average confidence and
// contradiction count. Thresholds come from config, not computation.
func (e *Engine) quality(r *Report) string {
	if r.CurrentMemories < e.cfg.MinMemories {
		return QualityInsufficient
	}
	avg := 0.0
	if r.AverageConfidence != nil {
		avg = *r.AverageConfidence
	}
	switch {
	case avg >= e.cfg.HighConfidence && len(r.Contradictions) <= e.cfg.MaxContradictionsHigh:
		return QualityHigh
	case avg >= e.cfg.GoodConfidence:
		return QualityGood
	default:
		return QualityBasic
	}
}

func sharedTag(a, b []string) string {
	for _, ta := range a {
		for _, tb := range b {
			if ta == tb {
				return ta
			}
		}
	}
	return ""
}

func matchesAny(tokens map[string]bool, markers []string) bool {
	for _, m := range markers {
		if tokens[m] {
			return true
		}
	}
	return false
}
