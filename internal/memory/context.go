package memory

import (
	"context"

	"github.com/samber/lo"

	"erpbot/pkg"
)

// Projection sizes. The view deliberately carries less than the record:
// enough recent signal for a prompt, nothing more.
const (
	projectedMessages = 5
	projectedIntents  = 3
	projectedTopics   = 3
)

// Project flattens the record for key into a ContextView for prompt
// construction. It never mutates the record and never fails: the worst
// case is an empty unregistered view.
func (s *Service) Project(ctx context.Context, key string) (view pkg.ContextView) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Any("panic", r).Str("key", key).Msg("context projection failed, returning empty view")
			view = pkg.EmptyContextView()
		}
	}()

	l := s.lockKey(key)
	defer s.unlockKey(key, l)

	rec := s.live(ctx, key)

	view = pkg.ContextView{
		Registered:      rec.Profile.Registered,
		Profile:         rec.Profile,
		Entities:        Flatten(rec.Entities),
		RecentMessages:  lastN(rec.Messages, projectedMessages),
		RecentIntents:   intentNames(rec.Intents, projectedIntents),
		CurrentTopic:    rec.Context.CurrentTopic,
		RecentTopics:    topicNames(rec.Topics, projectedTopics),
		ContextStrength: rec.Context.ContextStrength,
	}
	if view.CurrentTopic == "" {
		view.CurrentTopic = pkg.TopicGeneral
	}
	return view
}

func lastN(messages []pkg.MemoryMessage, n int) []pkg.MemoryMessage {
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return append([]pkg.MemoryMessage(nil), messages...)
}

// intentNames keeps the newest-first order of the history.
func intentNames(events []pkg.IntentEvent, n int) []string {
	if len(events) > n {
		events = events[:n]
	}
	return lo.Map(events, func(e pkg.IntentEvent, _ int) string { return e.Intent })
}

func topicNames(spans []pkg.TopicSpan, n int) []pkg.Topic {
	if len(spans) > n {
		spans = spans[:n]
	}
	return lo.Map(spans, func(s pkg.TopicSpan, _ int) pkg.Topic { return s.Topic })
}
