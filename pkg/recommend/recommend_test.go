package recommend

import (
	"context"
	"fmt"
	"testing"

	"github.com/knograph/knograph/pkg/logger"
	"github.com/knograph/knograph/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewEngine(s, logger.NewNop()), s
}

func addConcept(t *testing.T, s store.Store, name, topic string, complexity int) {
	t.Helper()
	ctx := context.Background()
	if err := s.PutConcept(ctx, &store.Concept{Name: name, Description: name + " desc", Complexity: complexity}); err != nil {
		t.Fatalf("put concept %q: %v", name, err)
	}
	if topic != "" {
		if err := s.LinkConceptToTopic(ctx, name, topic, store.BelongsTo{Primary: true, Importance: 0.8}); err != nil {
			t.Fatalf("link %q to %q: %v", name, topic, err)
		}
	}
}

func know(t *testing.T, s store.Store, userID, concept string, proficiency float64) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.EnsureUser(ctx, userID, userID); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := s.EnsureConcept(ctx, concept); err != nil {
		t.Fatalf("ensure concept: %v", err)
	}
	if _, err := s.MergeKnowledge(ctx, userID, concept, store.Evidence{
		Proficiency: proficiency,
		EventType:   store.EventPracticed,
		Stage:       store.StagePracticing,
	}); err != nil {
		t.Fatalf("merge knowledge: %v", err)
	}
}

func TestNext_ScoreOrdering(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	addConcept(t, s, "channels", "Go", 2)
	addConcept(t, s, "reflection", "Metaprogramming", 4)

	if _, err := s.EnsureUser(ctx, "alice", "alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := s.TrackTopic(ctx, "alice", "Go", 5, "ship a service"); err != nil {
		t.Fatalf("track Go: %v", err)
	}
	if err := s.TrackTopic(ctx, "alice", "Metaprogramming", 3, "curiosity"); err != nil {
		t.Fatalf("track Metaprogramming: %v", err)
	}

	recs, err := engine.Next(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d: %+v", len(recs), recs)
	}
	// priority 5 * 2 - complexity 2 = 8, priority 3 * 2 - complexity 4 = 2
	if recs[0].Name != "channels" || recs[0].Score != 8 {
		t.Errorf("expected channels with score 8 first, got %+v", recs[0])
	}
	if recs[1].Name != "reflection" || recs[1].Score != 2 {
		t.Errorf("expected reflection with score 2 second, got %+v", recs[1])
	}
}

func TestNext_TieBreakByName(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	addConcept(t, s, "maps", "Go", 2)
	addConcept(t, s, "interfaces", "Go", 2)

	if _, err := s.EnsureUser(ctx, "alice", "alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := s.TrackTopic(ctx, "alice", "Go", 4, ""); err != nil {
		t.Fatalf("track: %v", err)
	}

	recs, err := engine.Next(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 || recs[0].Name != "interfaces" || recs[1].Name != "maps" {
		t.Errorf("expected name-ordered tie break, got %+v", recs)
	}
}

func TestNext_UnmetPrerequisiteExcluded(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	addConcept(t, s, "goroutines", "Go", 3)
	addConcept(t, s, "channels", "Go", 3)
	if err := s.LinkPrerequisite(ctx, "goroutines", "channels", store.Prerequisite{Strength: 0.9}); err != nil {
		t.Fatalf("link prerequisite: %v", err)
	}

	if _, err := s.EnsureUser(ctx, "alice", "alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := s.TrackTopic(ctx, "alice", "Go", 4, ""); err != nil {
		t.Fatalf("track: %v", err)
	}

	recs, err := engine.Next(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range recs {
		if r.Name == "channels" {
			t.Errorf("channels should be ineligible until goroutines is known: %+v", recs)
		}
	}

	// Working knowledge of the prerequisite unlocks the dependent concept.
	know(t, s, "alice", "goroutines", 3)
	recs, err = engine.Next(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, r := range recs {
		if r.Name == "channels" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected channels eligible after prerequisite known, got %+v", recs)
	}
}

func TestNext_WellKnownConceptsExcluded(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	addConcept(t, s, "slices", "Go", 2)
	know(t, s, "alice", "slices", 4)
	if err := s.TrackTopic(ctx, "alice", "Go", 3, ""); err != nil {
		t.Fatalf("track: %v", err)
	}

	recs, err := engine.Next(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("proficiency 4 concepts should not be recommended, got %+v", recs)
	}
}

func TestNext_TopicFilter(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	addConcept(t, s, "channels", "Go", 2)
	addConcept(t, s, "lifetimes", "Rust", 4)
	if _, err := s.EnsureUser(ctx, "alice", "alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	recs, err := engine.Next(ctx, "alice", "Rust")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "lifetimes" {
		t.Errorf("expected only Rust concepts, got %+v", recs)
	}
	if recs[0].Tracked {
		t.Error("untracked topic should yield Tracked=false")
	}
	// Untracked candidates score with the default priority.
	if want := store.DefaultTrackPriority*2 - 4; recs[0].Score != want {
		t.Errorf("expected default-priority score %d, got %d", want, recs[0].Score)
	}
}

func TestNext_NoTrackedTopicsFallsBackToAll(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	addConcept(t, s, "channels", "Go", 2)
	addConcept(t, s, "lifetimes", "Rust", 4)
	if _, err := s.EnsureUser(ctx, "bob", "bob"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	recs, err := engine.Next(ctx, "bob", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected unrestricted candidates for untracked user, got %+v", recs)
	}
}

func TestNext_CapsAtFive(t *testing.T) {
	engine, s := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		addConcept(t, s, fmt.Sprintf("concept-%d", i), "Go", 1)
	}
	if _, err := s.EnsureUser(ctx, "alice", "alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := s.TrackTopic(ctx, "alice", "Go", 3, ""); err != nil {
		t.Fatalf("track: %v", err)
	}

	recs, err := engine.Next(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 5 {
		t.Errorf("expected 5 recommendations, got %d", len(recs))
	}
}
