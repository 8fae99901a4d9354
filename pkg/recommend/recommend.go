package recommend

import (
	"context"
	"fmt"
	"sort"

	"github.com/knograph/knograph/pkg/store"
)

// maxRecommendations caps how many suggestions a single query returns.
const maxRecommendations = 5

// Recommendation is one suggested next concept. Score favors high-priority
// tracked topics and penalizes complexity.
type Recommendation struct {
	Name        string
	Description string
	Complexity  int
	Score       int
	Tracked     bool
}

// Next suggests concepts the user is ready to learn. A concept is a candidate
// when the user has no knowledge of it or knows it below proficiency 4, and
// eligible when every prerequisite is known. topic narrows candidates to one
// topic; otherwise candidates come from actively tracked topics when any
// exist. Results are sorted by score descending, then name, and capped at
// five.
func (e *Engine) Next(ctx context.Context, userID, topic string) ([]Recommendation, error) {
	candidates, err := e.store.Candidates(ctx, userID, topic)
	if err != nil {
		return nil, fmt.Errorf("candidates for %q: %w", userID, err)
	}

	var recs []Recommendation
	for _, c := range candidates {
		if c.PrereqCount != c.KnownPrereqCount {
			continue
		}
		priority := store.DefaultTrackPriority
		if c.Tracked {
			priority = c.TopicPriority
		}
		recs = append(recs, Recommendation{
			Name:        c.Name,
			Description: c.Description,
			Complexity:  c.Complexity,
			Score:       priority*2 - c.Complexity,
			Tracked:     c.Tracked,
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Name < recs[j].Name
	})

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}

	e.log.Debug("recommendations computed",
		"user", userID,
		"topic", topic,
		"candidates", len(candidates),
		"eligible", len(recs))

	return recs, nil
}
