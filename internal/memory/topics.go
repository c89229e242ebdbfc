package memory

import (
	"time"

	"erpbot/pkg"
)

// ContextStrengthStep is the per-turn growth of contextStrength while the
// topic is unchanged.
const ContextStrengthStep = 0.1

// topicPriority is the fixed resolution order: the first intent found in
// the detected set decides the topic.
var topicPriority = []string{
	pkg.IntentTrialRequest,
	pkg.IntentTechSupport,
	pkg.IntentComplaint,
	pkg.IntentCancellation,
	pkg.IntentPriceQuery,
	pkg.IntentFeatureQuery,
	pkg.IntentServiceInterest,
	pkg.IntentConfirmation,
	pkg.IntentGratitude,
	pkg.IntentGreeting,
	pkg.IntentFarewell,
}

// TopicOf maps a catalog intent to its topic, exhaustively over the
// closed vocabulary.
func TopicOf(intent string) pkg.Topic {
	switch intent {
	case pkg.IntentTrialRequest:
		return pkg.TopicTrialRequest
	case pkg.IntentTechSupport:
		return pkg.TopicTechnicalSupport
	case pkg.IntentComplaint:
		return pkg.TopicComplaint
	case pkg.IntentCancellation:
		return pkg.TopicCancellation
	case pkg.IntentPriceQuery:
		return pkg.TopicPricingInquiry
	case pkg.IntentFeatureQuery:
		return pkg.TopicFeatureInquiry
	case pkg.IntentServiceInterest:
		return pkg.TopicServiceInterest
	case pkg.IntentConfirmation:
		return pkg.TopicConfirmation
	case pkg.IntentGratitude:
		return pkg.TopicGratitude
	case pkg.IntentGreeting:
		return pkg.TopicGreeting
	case pkg.IntentFarewell:
		return pkg.TopicFarewell
	}
	return pkg.TopicGeneral
}

// Classify derives the topic from a detected-intent set. Input order is
// irrelevant; the priority table decides. Empty or unknown input yields
// the general topic.
func Classify(intents []string) pkg.Topic {
	if len(intents) == 0 {
		return pkg.TopicGeneral
	}
	detected := make(map[string]bool, len(intents))
	for _, name := range intents {
		detected[name] = true
	}
	for _, name := range topicPriority {
		if detected[name] {
			return TopicOf(name)
		}
	}
	return pkg.TopicGeneral
}

// recordTransition applies a newly classified topic to the record.
// An unchanged topic deepens contextStrength; a change archives the
// outgoing span (newest first, bounded) and resets strength to 1.0.
func recordTransition(rec *pkg.MemoryRecord, newTopic pkg.Topic, maxTopics int, now time.Time) {
	if newTopic == "" {
		newTopic = pkg.TopicGeneral
	}

	if rec.Context.CurrentTopic == newTopic {
		rec.Context.ContextStrength = min(rec.Context.ContextStrength+ContextStrengthStep, 1.0)
		return
	}

	if rec.Context.CurrentTopic != "" {
		span := pkg.TopicSpan{
			Topic:     rec.Context.CurrentTopic,
			StartedAt: rec.Context.TopicStartedAt,
			EndedAt:   now,
			Duration:  now.Sub(rec.Context.TopicStartedAt),
		}
		rec.Topics = append([]pkg.TopicSpan{span}, rec.Topics...)
		if len(rec.Topics) > maxTopics {
			rec.Topics = rec.Topics[:maxTopics]
		}
	}

	rec.Context.CurrentTopic = newTopic
	rec.Context.TopicStartedAt = now
	rec.Context.ContextStrength = 1.0
}
