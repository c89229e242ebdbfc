package nlu

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"erpbot/internal/config"
	"erpbot/internal/memory"
	"erpbot/pkg"
)

// ShiftActionThreshold is the confidence above which callers narrate a
// topic change in the generated response.
const ShiftActionThreshold = 0.7

// Reconciler merges freshly detected intents/entities with the current
// conversational context using the catalog's rule tables.
type Reconciler struct {
	catalog *config.Catalog
}

func NewReconciler(catalog *config.Catalog) *Reconciler {
	return &Reconciler{catalog: catalog}
}

// ExpandIntents widens the detected intent set with (1) catalog intents
// whose keyword appears literally in the lowercased message and (2)
// related intents whose relation condition holds. Relations only add,
// never remove, and are applied to a fixed point, so the expansion is
// idempotent and independent of input order.
func (r *Reconciler) ExpandIntents(message string, detected []string) []string {
	lower := strings.ToLower(message)

	set := make(map[string]bool, len(detected))
	for _, name := range detected {
		set[name] = true
	}

	for _, rule := range r.catalog.Intents {
		if set[rule.Name] {
			continue
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				set[rule.Name] = true
				break
			}
		}
	}

	queue := lo.Keys(set)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		rule, ok := r.catalog.Rule(name)
		if !ok {
			continue
		}
		for _, rel := range rule.Relations {
			if set[rel.Intent] {
				continue
			}
			if relationHolds(rel, lower) {
				set[rel.Intent] = true
				queue = append(queue, rel.Intent)
			}
		}
	}

	// Catalog order first, then any out-of-catalog names sorted: the
	// result depends only on the set, not on detection order.
	result := make([]string, 0, len(set))
	for _, rule := range r.catalog.Intents {
		if set[rule.Name] {
			result = append(result, rule.Name)
			delete(set, rule.Name)
		}
	}
	extras := lo.Keys(set)
	sort.Strings(extras)
	return append(result, extras...)
}

func relationHolds(rel config.Relation, lowerMessage string) bool {
	switch rel.Condition {
	case "always":
		return true
	case "contains":
		for _, kw := range rel.Keywords {
			if strings.Contains(lowerMessage, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

// InferEntities merges fresh extractions with contextually known values.
// Fresh values always win. A known value is only carried forward when its
// type is absent from the fresh set AND the message shows one of the
// trigger phrasings configured for that type; otherwise stale facts stay
// out of the current turn.
func (r *Reconciler) InferEntities(message string, fresh, known map[string]string) map[string]string {
	merged := make(map[string]string, len(fresh)+len(known))
	for entityType, value := range fresh {
		merged[entityType] = value
	}

	lower := strings.ToLower(message)
	for entityType, value := range known {
		if _, ok := merged[entityType]; ok {
			continue
		}
		if r.inferenceTriggered(entityType, lower) {
			merged[entityType] = value
		}
	}
	return merged
}

func (r *Reconciler) inferenceTriggered(entityType, lowerMessage string) bool {
	for _, category := range r.catalog.EntityTriggers[entityType] {
		for _, phrase := range r.catalog.TriggerPhrases[category] {
			if strings.Contains(lowerMessage, strings.ToLower(phrase)) {
				return true
			}
		}
	}
	for _, literal := range r.catalog.EntityLiterals[entityType] {
		if strings.Contains(lowerMessage, strings.ToLower(literal)) {
			return true
		}
	}
	return false
}

// DetectShift compares the topic implied by the new intents against the
// current one and scores the change in [0,1]. Strong intents push toward
// a switch, a settled topic (contextStrength > 0.7) resists one, and a
// second intent mapping to the new topic reinforces it.
func (r *Reconciler) DetectShift(intents []string, view pkg.ContextView) (pkg.Topic, float64, bool) {
	newTopic := memory.Classify(intents)
	if newTopic == view.CurrentTopic {
		return newTopic, 0, false
	}

	confidence := 0.5
	strong := r.catalog.StrongIntents()
	if lo.SomeBy(intents, func(name string) bool { return strong[name] }) {
		confidence += 0.3
	}
	if view.ContextStrength > 0.7 {
		confidence -= 0.2
	}
	mapped := lo.CountBy(intents, func(name string) bool { return memory.TopicOf(name) == newTopic })
	if mapped > 1 {
		confidence += 0.2
	}

	confidence = min(max(confidence, 0), 1)
	return newTopic, confidence, true
}
