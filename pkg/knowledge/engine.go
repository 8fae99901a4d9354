package knowledge

import (
	"context"
	"fmt"

	"github.com/knograph/knograph/pkg/logger"
	"github.com/knograph/knograph/pkg/store"
)

// Observation is one piece of evidence about a learner's grasp of a concept.
type Observation struct {
	Concept     string
	Proficiency float64 // 0-5
	EventType   store.EventType
	Details     string
}

// BatchResult reports the outcome of applying a batch of observations. Each
// observation is applied independently: a failure on one concept does not
// roll back the others.
type BatchResult struct {
	EventID string
	States  []*store.KnowledgeState
	Failed  map[string]error
}

// Engine applies observations to the knowledge graph.
type Engine struct {
	store store.Store
	log   *logger.Logger
}

func NewEngine(s store.Store, log *logger.Logger) *Engine {
	return &Engine{store: s, log: log}
}

// Apply merges a single observation into the user's knowledge state. The user
// and concept are created if absent. Proficiency never decreases across
// merges; the stage is recomputed from this observation alone.
func (e *Engine) Apply(ctx context.Context, userID string, obs Observation) (*store.KnowledgeState, error) {
	if obs.Concept == "" {
		return nil, fmt.Errorf("observation has no concept name")
	}

	if _, err := e.store.EnsureUser(ctx, userID, userID); err != nil {
		return nil, fmt.Errorf("ensure user %q: %w", userID, err)
	}
	if err := e.store.EnsureConcept(ctx, obs.Concept); err != nil {
		return nil, fmt.Errorf("ensure concept %q: %w", obs.Concept, err)
	}

	ev := store.Evidence{
		Proficiency: obs.Proficiency,
		EventType:   obs.EventType,
		Stage:       DeriveStage(obs.EventType, obs.Proficiency),
		Details:     obs.Details,
	}
	state, err := e.store.MergeKnowledge(ctx, userID, obs.Concept, ev)
	if err != nil {
		return nil, fmt.Errorf("merge knowledge for %q: %w", obs.Concept, err)
	}

	// Topic tracking is advisory: failure must not undo the merge.
	if err := e.store.TrackTopicsOf(ctx, userID, obs.Concept); err != nil {
		e.log.Warn("failed to track topics", "user", userID, "concept", obs.Concept, "error", err)
	}

	e.log.Debug("applied observation",
		"user", userID,
		"concept", obs.Concept,
		"proficiency", state.Proficiency,
		"stage", state.Stage,
		"evidence_count", state.EvidenceCount)

	return state, nil
}

// ApplyBatch merges each observation independently and records one learning
// event covering the concepts that merged successfully. eventType and details
// describe the batch as a whole (e.g. the analyzed conversation).
func (e *Engine) ApplyBatch(ctx context.Context, userID string, eventType store.EventType, details string, observations []Observation) (*BatchResult, error) {
	if len(observations) == 0 {
		return &BatchResult{Failed: map[string]error{}}, nil
	}

	result := &BatchResult{Failed: map[string]error{}}
	var merged []string

	for _, obs := range observations {
		state, err := e.Apply(ctx, userID, obs)
		if err != nil {
			e.log.Warn("observation failed", "user", userID, "concept", obs.Concept, "error", err)
			result.Failed[obs.Concept] = err
			continue
		}
		result.States = append(result.States, state)
		merged = append(merged, obs.Concept)
	}

	if len(merged) == 0 {
		return result, fmt.Errorf("all %d observations failed", len(observations))
	}

	eventID, err := e.store.RecordEvent(ctx, userID, eventType, details, merged)
	if err != nil {
		return result, fmt.Errorf("record event: %w", err)
	}
	result.EventID = eventID
	return result, nil
}
