package store

import (
	"context"
	"errors"
	"testing"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

func TestUpsertPatterns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sess := startTestSession(t, s)

	err := s.UpsertPatterns(ctx, sess.ID, map[string]int{"assumption": 3, "therefore": 2})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	patterns, err := s.ListPatterns(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
	if patterns[0].Pattern != "assumption" || patterns[0].OccurrenceCount != 3 {
		t.Errorf("expected assumption=3 first, got %+v", patterns[0])
	}

	// Re-detection updates the stored count in place.
	if err := s.UpsertPatterns(ctx, sess.ID, map[string]int{"assumption": 5}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	patterns, _ = s.ListPatterns(ctx, sess.ID)
	if len(patterns) != 2 {
		t.Fatalf("expected still 2 patterns, got %d", len(patterns))
	}
	if patterns[0].Pattern != "assumption" || patterns[0].OccurrenceCount != 5 {
		t.Errorf("expected assumption=5, got %+v", patterns[0])
	}
}

func TestUpsertPatternsUnknownSession(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertPatterns(context.Background(), "missing", map[string]int{"x": 1})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListPatternsOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sess := startTestSession(t, s)

	s.UpsertPatterns(ctx, sess.ID, map[string]int{"beta": 2, "alpha": 2, "gamma": 7})

	patterns, err := s.ListPatterns(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"gamma", "alpha", "beta"}
	for i, p := range patterns {
		if p.Pattern != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], p.Pattern)
		}
	}
}
