package knograph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/knograph/knograph/pkg/knowledge"
	"github.com/knograph/knograph/pkg/logger"
	"github.com/knograph/knograph/pkg/metrics"
	"github.com/knograph/knograph/pkg/store"
)

// fakeLLM answers the relevance gate and the analysis prompt in sequence.
type fakeLLM struct {
	relevance string
	analysis  string
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.relevance, nil
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, prompt string, out any) error {
	return json.Unmarshal([]byte(f.analysis), out)
}

func newTestService(t *testing.T, client *fakeLLM) *Service {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	var svc *Service
	if client != nil {
		svc = NewFromParts(st, client, metrics.NewNoopCollector(), logger.NewNop())
	} else {
		svc = NewFromParts(st, nil, metrics.NewNoopCollector(), logger.NewNop())
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestRecordLearning_MergeSemantics(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.RecordLearning(ctx, "alice", store.EventLearned, "intro session", []knowledge.Observation{
		{Concept: "recursion", Proficiency: 2, EventType: store.EventLearned, Details: "saw base cases"},
	})
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if len(first.States) != 1 || first.States[0].Stage != store.StageAware {
		t.Fatalf("expected aware after first learned event, got %+v", first.States)
	}

	second, err := svc.RecordLearning(ctx, "alice", store.EventPracticed, "struggled on exercises", []knowledge.Observation{
		{Concept: "recursion", Proficiency: 1, EventType: store.EventPracticed},
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	state := second.States[0]
	if state.Proficiency != 2 {
		t.Errorf("proficiency must not decrease, got %v", state.Proficiency)
	}
	if state.EvidenceCount != 2 {
		t.Errorf("expected evidence count 2, got %d", state.EvidenceCount)
	}
	if state.Stage != store.StageLearning {
		t.Errorf("expected stage learning from latest event, got %q", state.Stage)
	}

	events, err := svc.RecentEvents(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
}

func TestAnalyzeAndRecord(t *testing.T) {
	fake := &fakeLLM{
		relevance: "yes",
		analysis: `{
			"detected_topic": "Go",
			"overall_understanding": 3,
			"misconceptions": "",
			"concepts": [
				{"name": "goroutines", "proficiency": 3, "event_type": "practiced", "details": "built a pipeline"}
			]
		}`,
	}
	svc := newTestService(t, fake)
	ctx := context.Background()

	report, err := svc.AnalyzeAndRecord(ctx, "alice", "we built a pipeline with goroutines", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Relevant {
		t.Fatal("expected relevant report")
	}
	if report.EventID == "" {
		t.Error("expected a recorded event")
	}
	if len(report.States) != 1 || report.States[0].Concept != "goroutines" {
		t.Errorf("unexpected states %+v", report.States)
	}

	progress, err := svc.LearningProgress(ctx, "alice")
	if err != nil {
		t.Fatalf("learning progress: %v", err)
	}
	if len(progress.KnownConcepts) != 1 {
		t.Errorf("expected goroutines in progress, got %+v", progress.KnownConcepts)
	}
}

func TestAnalyzeAndRecord_IrrelevantText(t *testing.T) {
	svc := newTestService(t, &fakeLLM{relevance: "no"})

	report, err := svc.AnalyzeAndRecord(context.Background(), "alice", "what should I cook tonight", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Relevant {
		t.Error("cooking chat should not be relevant")
	}

	// Nothing was written, not even the user.
	if _, err := svc.LearningProgress(context.Background(), "alice"); err == nil {
		t.Error("expected no user to exist after irrelevant text")
	}
}

func TestAnalyzeAndRecord_NoProvider(t *testing.T) {
	svc := newTestService(t, nil)

	if _, err := svc.AnalyzeAndRecord(context.Background(), "alice", "text", ""); err == nil {
		t.Fatal("expected error without an LLM provider")
	}
}

func TestTrackTopic_ValidatesPriority(t *testing.T) {
	svc := newTestService(t, nil)

	if err := svc.TrackTopic(context.Background(), "alice", "Go", 9, ""); err == nil {
		t.Fatal("expected error for out-of-range priority")
	}
	if err := svc.TrackTopic(context.Background(), "alice", "Go", 4, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAddConcept_LinksTopic(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	err := svc.AddConcept(ctx, &store.Concept{Name: "channels", Description: "typed conduits", Complexity: 3},
		"Go", store.BelongsTo{Primary: true, Importance: 0.9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tk, err := svc.TopicKnowledge(ctx, "", "Go")
	if err != nil {
		t.Fatalf("topic knowledge: %v", err)
	}
	if len(tk.Concepts) != 1 || tk.Concepts[0].Name != "channels" {
		t.Errorf("expected channels under Go, got %+v", tk.Concepts)
	}
}

func TestAddConcept_EmptyName(t *testing.T) {
	svc := newTestService(t, nil)

	if err := svc.AddConcept(context.Background(), &store.Concept{}, "", store.BelongsTo{}); err == nil {
		t.Fatal("expected validation error")
	}
}
