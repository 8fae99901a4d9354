// Package overview answers read-only progress queries against the graph.
package overview

import (
	"context"
	"fmt"

	"github.com/knograph/knograph/pkg/logger"
	"github.com/knograph/knograph/pkg/store"
)

// Service composes store reads into learner-facing summaries. Methods taking
// a userID return store.ErrNotFound when the user does not exist; callers
// decide whether that is an error or an empty state.
type Service struct {
	store store.Store
	log   *logger.Logger
}

func New(s store.Store, log *logger.Logger) *Service {
	return &Service{store: s, log: log}
}

// Overview is a learner's full progress snapshot.
type Overview struct {
	User          *store.User
	TrackedTopics []store.TrackedTopic
	KnownConcepts []store.KnownConcept
	StageCounts   map[store.Stage]int
}

// UserOverview returns the user, their tracked topics and every concept they
// have knowledge of, with a count per stage.
func (s *Service) UserOverview(ctx context.Context, userID string) (*Overview, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	topics, err := s.store.TrackedTopics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("tracked topics: %w", err)
	}
	concepts, err := s.store.KnownConcepts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("known concepts: %w", err)
	}

	counts := make(map[store.Stage]int)
	for _, c := range concepts {
		counts[c.Stage]++
	}

	return &Overview{
		User:          user,
		TrackedTopics: topics,
		KnownConcepts: concepts,
		StageCounts:   counts,
	}, nil
}

// ConceptProgress is a concept annotated with one user's standing on it.
type ConceptProgress struct {
	store.Concept
	Proficiency float64
	Known       bool // proficiency at or above the working threshold
}

// TopicKnowledge is a topic with per-concept progress.
type TopicKnowledge struct {
	Topic      *store.Topic
	Concepts   []ConceptProgress
	KnownCount int
}

// TopicKnowledge returns the topic and its concepts annotated with the user's
// proficiency. An empty userID returns the topic contents without progress.
func (s *Service) TopicKnowledge(ctx context.Context, userID, topic string) (*TopicKnowledge, error) {
	t, err := s.store.GetTopic(ctx, topic)
	if err != nil {
		return nil, err
	}
	concepts, err := s.store.TopicConcepts(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("topic concepts: %w", err)
	}

	var prof map[string]float64
	if userID != "" {
		names := make([]string, len(concepts))
		for i, c := range concepts {
			names[i] = c.Name
		}
		prof, err = s.store.ProficiencyFor(ctx, userID, names)
		if err != nil {
			return nil, fmt.Errorf("proficiency: %w", err)
		}
	}

	result := &TopicKnowledge{Topic: t}
	for _, c := range concepts {
		p := prof[c.Name]
		known := p >= store.KnownThreshold
		if known {
			result.KnownCount++
		}
		result.Concepts = append(result.Concepts, ConceptProgress{
			Concept:     c,
			Proficiency: p,
			Known:       known,
		})
	}
	return result, nil
}

// ConceptKnowledge is a concept detail annotated with one user's standing.
type ConceptKnowledge struct {
	store.ConceptDetail
	Proficiency float64
	Known       bool
}

// Concepts returns details for the named concepts, annotated with the user's
// proficiency when userID is non-empty. Unknown names are skipped.
func (s *Service) Concepts(ctx context.Context, userID string, names []string) ([]ConceptKnowledge, error) {
	details, err := s.store.GetConcepts(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("get concepts: %w", err)
	}

	var prof map[string]float64
	if userID != "" && len(details) > 0 {
		found := make([]string, len(details))
		for i, d := range details {
			found[i] = d.Name
		}
		prof, err = s.store.ProficiencyFor(ctx, userID, found)
		if err != nil {
			return nil, fmt.Errorf("proficiency: %w", err)
		}
	}

	result := make([]ConceptKnowledge, 0, len(details))
	for _, d := range details {
		p := prof[d.Name]
		result = append(result, ConceptKnowledge{
			ConceptDetail: d,
			Proficiency:   p,
			Known:         p >= store.KnownThreshold,
		})
	}
	return result, nil
}

// RelatedConcepts partitions a concept's RELATED_TO neighbours by whether the
// user already knows them. With an empty userID everything lands in Unknown.
type RelatedConcepts struct {
	Concept string
	Known   []store.RelatedEdge
	Unknown []store.RelatedEdge
}

func (s *Service) Related(ctx context.Context, userID, concept string) (*RelatedConcepts, error) {
	edges, err := s.store.RelatedOf(ctx, concept)
	if err != nil {
		return nil, fmt.Errorf("related of %q: %w", concept, err)
	}

	result := &RelatedConcepts{Concept: concept}
	if len(edges) == 0 {
		return result, nil
	}

	var prof map[string]float64
	if userID != "" {
		names := make([]string, len(edges))
		for i, e := range edges {
			names[i] = e.Name
		}
		prof, err = s.store.ProficiencyFor(ctx, userID, names)
		if err != nil {
			return nil, fmt.Errorf("proficiency: %w", err)
		}
	}

	for _, e := range edges {
		if prof[e.Name] >= store.KnownThreshold {
			result.Known = append(result.Known, e)
		} else {
			result.Unknown = append(result.Unknown, e)
		}
	}
	return result, nil
}

// defaultEventLimit applies when a caller does not say how many events to
// return.
const defaultEventLimit = 10

// RecentEvents returns the user's learning events newest first. limit <= 0
// falls back to the default.
func (s *Service) RecentEvents(ctx context.Context, userID string, limit int) ([]store.LearningEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	return s.store.RecentEvents(ctx, userID, limit)
}
