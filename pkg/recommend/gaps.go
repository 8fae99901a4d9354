// Package recommend finds prerequisite gaps and suggests what to learn next.
package recommend

import (
	"context"
	"fmt"

	"github.com/knograph/knograph/pkg/logger"
	"github.com/knograph/knograph/pkg/store"
)

// Gap lists the prerequisites of a target concept the user has not yet
// reached working knowledge of.
type Gap struct {
	Concept string
	Missing []store.PrereqEdge
}

// Engine answers gap and recommendation queries against the store.
type Engine struct {
	store store.Store
	log   *logger.Logger
}

func NewEngine(s store.Store, log *logger.Logger) *Engine {
	return &Engine{store: s, log: log}
}

// MissingPrerequisites checks each target concept and returns the
// prerequisites the user either has never seen or knows below the working
// threshold. Targets with no prerequisites, or with all prerequisites known,
// produce no gap entry.
func (e *Engine) MissingPrerequisites(ctx context.Context, userID string, concepts []string) ([]Gap, error) {
	var gaps []Gap

	for _, concept := range concepts {
		prereqs, err := e.store.PrerequisitesOf(ctx, concept)
		if err != nil {
			return nil, fmt.Errorf("prerequisites of %q: %w", concept, err)
		}
		if len(prereqs) == 0 {
			continue
		}

		names := make([]string, len(prereqs))
		for i, p := range prereqs {
			names[i] = p.Name
		}
		known, err := e.store.ProficiencyFor(ctx, userID, names)
		if err != nil {
			return nil, fmt.Errorf("proficiency for %q: %w", concept, err)
		}

		var missing []store.PrereqEdge
		for _, p := range prereqs {
			if prof, ok := known[p.Name]; !ok || prof < store.KnownThreshold {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			gaps = append(gaps, Gap{Concept: concept, Missing: missing})
		}
	}

	return gaps, nil
}
