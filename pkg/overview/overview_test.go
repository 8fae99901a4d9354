package overview

import (
	"context"
	"errors"
	"testing"

	"github.com/knograph/knograph/pkg/logger"
	"github.com/knograph/knograph/pkg/store"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, logger.NewNop()), s
}

func merge(t *testing.T, s store.Store, userID, concept string, proficiency float64, stage store.Stage) {
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
		Stage:       stage,
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}
}

func TestUserOverview(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	merge(t, s, "alice", "slices", 4, store.StagePracticing)
	merge(t, s, "alice", "maps", 2, store.StageLearning)
	merge(t, s, "alice", "channels", 2, store.StageLearning)
	if err := s.TrackTopic(ctx, "alice", "Go", 4, "backend work"); err != nil {
		t.Fatalf("track: %v", err)
	}

	ov, err := svc.UserOverview(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ov.User.ID != "alice" {
		t.Errorf("unexpected user %+v", ov.User)
	}
	if len(ov.TrackedTopics) != 1 || ov.TrackedTopics[0].Name != "Go" {
		t.Errorf("unexpected tracked topics %+v", ov.TrackedTopics)
	}
	if len(ov.KnownConcepts) != 3 {
		t.Errorf("expected 3 known concepts, got %d", len(ov.KnownConcepts))
	}
	if ov.StageCounts[store.StageLearning] != 2 || ov.StageCounts[store.StagePracticing] != 1 {
		t.Errorf("unexpected stage counts %v", ov.StageCounts)
	}
}

func TestUserOverview_UnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UserOverview(context.Background(), "nobody")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTopicKnowledge(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"slices", "maps"} {
		if err := s.LinkConceptToTopic(ctx, name, "Go", store.BelongsTo{Primary: true, Importance: 0.8}); err != nil {
			t.Fatalf("link: %v", err)
		}
	}
	merge(t, s, "alice", "slices", 4, store.StagePracticing)

	tk, err := svc.TopicKnowledge(ctx, "alice", "Go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Topic.Name != "Go" {
		t.Errorf("unexpected topic %+v", tk.Topic)
	}
	if len(tk.Concepts) != 2 {
		t.Fatalf("expected 2 concepts, got %d", len(tk.Concepts))
	}
	if tk.KnownCount != 1 {
		t.Errorf("expected 1 known concept, got %d", tk.KnownCount)
	}
	for _, c := range tk.Concepts {
		switch c.Name {
		case "slices":
			if !c.Known || c.Proficiency != 4 {
				t.Errorf("expected slices known at 4, got %+v", c)
			}
		case "maps":
			if c.Known {
				t.Errorf("maps should be unknown, got %+v", c)
			}
		}
	}
}

func TestTopicKnowledge_MissingTopic(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.TopicKnowledge(context.Background(), "alice", "Quantum Basket Weaving")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConcepts_SkipsUnknownNames(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	if err := s.PutConcept(ctx, &store.Concept{Name: "closures", Description: "functions capturing scope", Complexity: 3}); err != nil {
		t.Fatalf("put concept: %v", err)
	}
	merge(t, s, "alice", "closures", 3, store.StageLearning)

	got, err := svc.Concepts(ctx, "alice", []string{"closures", "no-such-concept"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 concept, got %d", len(got))
	}
	if got[0].Name != "closures" || !got[0].Known {
		t.Errorf("expected closures known, got %+v", got[0])
	}
}

func TestRelated_PartitionsByKnowledge(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	if err := s.LinkRelated(ctx, "goroutines", "threads", store.Related{Type: store.RelatedSimilar, Strength: 0.7}); err != nil {
		t.Fatalf("link related: %v", err)
	}
	if err := s.LinkRelated(ctx, "goroutines", "channels", store.Related{Type: store.RelatedAppliedIn, Strength: 0.9}); err != nil {
		t.Fatalf("link related: %v", err)
	}
	merge(t, s, "alice", "threads", 4, store.StagePracticing)

	rel, err := svc.Related(ctx, "alice", "goroutines")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rel.Known) != 1 || rel.Known[0].Name != "threads" {
		t.Errorf("expected threads known, got %+v", rel.Known)
	}
	if len(rel.Unknown) != 1 || rel.Unknown[0].Name != "channels" {
		t.Errorf("expected channels unknown, got %+v", rel.Unknown)
	}
}

func TestRelated_NoUser(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	if err := s.LinkRelated(ctx, "goroutines", "threads", store.Related{Type: store.RelatedSimilar, Strength: 0.7}); err != nil {
		t.Fatalf("link related: %v", err)
	}

	rel, err := svc.Related(ctx, "", "goroutines")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rel.Known) != 0 || len(rel.Unknown) != 1 {
		t.Errorf("expected everything unknown without a user, got %+v", rel)
	}
}

func TestRecentEvents_DefaultLimit(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	if _, err := s.EnsureUser(ctx, "alice", "alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	for i := 0; i < 12; i++ {
		if _, err := s.RecordEvent(ctx, "alice", store.EventPracticed, "rep", nil); err != nil {
			t.Fatalf("record event: %v", err)
		}
	}

	events, err := svc.RecentEvents(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 10 {
		t.Errorf("expected default limit of 10, got %d", len(events))
	}
}
