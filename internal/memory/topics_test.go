package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"erpbot/pkg"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, pkg.TopicGeneral, Classify(nil))
	assert.Equal(t, pkg.TopicGeneral, Classify([]string{}))
	assert.Equal(t, pkg.TopicGreeting, Classify([]string{pkg.IntentGreeting}))
	assert.Equal(t, pkg.TopicGeneral, Classify([]string{"algo_desconocido"}))
}

func TestClassifyHonorsPriorityRegardlessOfOrder(t *testing.T) {
	assert.Equal(t, pkg.TopicTrialRequest, Classify([]string{pkg.IntentTrialRequest, pkg.IntentGreeting}))
	assert.Equal(t, pkg.TopicTrialRequest, Classify([]string{pkg.IntentGreeting, pkg.IntentTrialRequest}))
	assert.Equal(t, pkg.TopicTechnicalSupport, Classify([]string{pkg.IntentFarewell, pkg.IntentTechSupport, pkg.IntentGratitude}))
}

func TestRecordTransitionSameTopicDeepens(t *testing.T) {
	now := time.Now()
	rec := &pkg.MemoryRecord{
		Context: pkg.ConversationContext{
			CurrentTopic:    pkg.TopicPricingInquiry,
			TopicStartedAt:  now.Add(-time.Minute),
			ContextStrength: 0.85,
		},
	}

	recordTransition(rec, pkg.TopicPricingInquiry, 10, now)
	assert.InDelta(t, 0.95, rec.Context.ContextStrength, 1e-9)
	assert.Empty(t, rec.Topics)

	recordTransition(rec, pkg.TopicPricingInquiry, 10, now)
	assert.Equal(t, 1.0, rec.Context.ContextStrength)
}

func TestRecordTransitionChangeArchivesAndResets(t *testing.T) {
	start := time.Now()
	rec := &pkg.MemoryRecord{
		Context: pkg.ConversationContext{
			CurrentTopic:    pkg.TopicGreeting,
			TopicStartedAt:  start,
			ContextStrength: 0.4,
		},
	}

	now := start.Add(2 * time.Minute)
	recordTransition(rec, pkg.TopicTrialRequest, 10, now)

	assert.Equal(t, pkg.TopicTrialRequest, rec.Context.CurrentTopic)
	assert.Equal(t, 1.0, rec.Context.ContextStrength)
	assert.Equal(t, now, rec.Context.TopicStartedAt)

	if assert.Len(t, rec.Topics, 1) {
		span := rec.Topics[0]
		assert.Equal(t, pkg.TopicGreeting, span.Topic)
		assert.Equal(t, start, span.StartedAt)
		assert.Equal(t, now, span.EndedAt)
		assert.Equal(t, 2*time.Minute, span.Duration)
	}
}

func TestRecordTransitionHistoryBoundedNewestFirst(t *testing.T) {
	rec := &pkg.MemoryRecord{}
	now := time.Now()
	topics := []pkg.Topic{
		pkg.TopicGreeting, pkg.TopicPricingInquiry, pkg.TopicFeatureInquiry,
		pkg.TopicTrialRequest, pkg.TopicTechnicalSupport, pkg.TopicComplaint,
	}
	for i, topic := range topics {
		recordTransition(rec, topic, 3, now.Add(time.Duration(i)*time.Minute))
	}

	assert.Len(t, rec.Topics, 3)
	// Newest archived span first: the topic active before the last change.
	assert.Equal(t, pkg.TopicTechnicalSupport, rec.Topics[0].Topic)
	assert.Equal(t, pkg.TopicComplaint, rec.Context.CurrentTopic)
}

func TestRecordTransitionFirstTopicDoesNotArchive(t *testing.T) {
	rec := &pkg.MemoryRecord{}
	recordTransition(rec, pkg.TopicGreeting, 10, time.Now())

	assert.Empty(t, rec.Topics)
	assert.Equal(t, pkg.TopicGreeting, rec.Context.CurrentTopic)
	assert.Equal(t, 1.0, rec.Context.ContextStrength)
}
