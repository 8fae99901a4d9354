// Package knowledge turns learning observations into merged knowledge state.
package knowledge

import "github.com/knograph/knograph/pkg/store"

// DeriveStage maps the latest observation to a knowledge stage. The stage
// reflects the most recent evidence only: a confused event always yields
// "learning" regardless of accumulated proficiency.
func DeriveStage(eventType store.EventType, proficiency float64) store.Stage {
	switch eventType {
	case store.EventLearned:
		if proficiency <= 2 {
			return store.StageAware
		}
		return store.StageLearning
	case store.EventPracticed:
		if proficiency <= 3 {
			return store.StageLearning
		}
		return store.StagePracticing
	case store.EventConfused:
		return store.StageLearning
	case store.EventMastered:
		return store.StageMastered
	default:
		switch {
		case proficiency <= 1:
			return store.StageAware
		case proficiency <= 3:
			return store.StageLearning
		case proficiency <= 4:
			return store.StagePracticing
		default:
			return store.StageMastered
		}
	}
}
