package memory

import (
	"time"

	"erpbot/pkg"
)

// EntityTuning carries the confidence heuristics of the entity store.
// The persistence threshold decides whether a conflicting value replaces
// an established fact or only decays it.
type EntityTuning struct {
	PersistenceThreshold int
	RepeatIncrement      float64
	ReplaceConfidence    float64
	DecayStep            float64
	DecayFloor           float64
	PruneMinConfidence   float64
	PruneMaxAge          time.Duration
}

// DefaultEntityTuning returns the deployed defaults.
func DefaultEntityTuning() EntityTuning {
	return EntityTuning{
		PersistenceThreshold: 2,
		RepeatIncrement:      0.2,
		ReplaceConfidence:    0.8,
		DecayStep:            0.1,
		DecayFloor:           0.3,
		PruneMinConfidence:   0.4,
		PruneMaxAge:          7 * 24 * time.Hour,
	}
}

// entityStore applies the confidence heuristics to the per-record
// entity map. It holds no per-conversation state of its own.
type entityStore struct {
	tuning EntityTuning
}

// Upsert records an observation of (entityType, value).
//
// Same value again: confidence +RepeatIncrement (cap 1.0), occurrences +1.
// Different value: replace wholesale (confidence ReplaceConfidence) while
// the stored fact has fewer than PersistenceThreshold occurrences;
// otherwise keep the stored value and decay it by DecayStep (floor
// DecayFloor). A well-established fact resists a single conflicting turn.
func (s entityStore) Upsert(entities map[string]*pkg.KnownEntity, entityType, value string, initialConfidence float64, now time.Time) {
	if entityType == "" || value == "" {
		return
	}
	if initialConfidence <= 0 || initialConfidence > 1 {
		initialConfidence = 1.0
	}

	existing, ok := entities[entityType]
	if !ok {
		entities[entityType] = &pkg.KnownEntity{
			Value:       value,
			Confidence:  initialConfidence,
			FirstSeen:   now,
			LastSeen:    now,
			Occurrences: 1,
		}
		return
	}

	if existing.Value == value {
		existing.Confidence = min(existing.Confidence+s.tuning.RepeatIncrement, 1.0)
		existing.Occurrences++
		existing.LastSeen = now
		return
	}

	if existing.Occurrences < s.tuning.PersistenceThreshold {
		entities[entityType] = &pkg.KnownEntity{
			Value:       value,
			Confidence:  s.tuning.ReplaceConfidence,
			FirstSeen:   now,
			LastSeen:    now,
			Occurrences: 1,
		}
		return
	}

	existing.Confidence = max(existing.Confidence-s.tuning.DecayStep, s.tuning.DecayFloor)
	existing.LastSeen = now
}

// Prune drops entries that are both stale and distrusted: confidence below
// PruneMinConfidence and last seen more than PruneMaxAge ago.
func (s entityStore) Prune(entities map[string]*pkg.KnownEntity, now time.Time) int {
	removed := 0
	for entityType, e := range entities {
		if e.Confidence < s.tuning.PruneMinConfidence && now.Sub(e.LastSeen) > s.tuning.PruneMaxAge {
			delete(entities, entityType)
			removed++
		}
	}
	return removed
}

// Flatten strips scores and timestamps down to a type→value map for
// prompt construction.
func Flatten(entities map[string]*pkg.KnownEntity) map[string]string {
	flat := make(map[string]string, len(entities))
	for entityType, e := range entities {
		flat[entityType] = e.Value
	}
	return flat
}
