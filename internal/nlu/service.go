// Package nlu binds the memory engine to the LLM: prompt construction,
// intent/entity detection, reconciliation with the conversational
// context, and reply generation. Every path degrades to an empty or
// generic result; the assistant always has a next message.
package nlu

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"erpbot/internal/config"
	"erpbot/internal/memory"
	"erpbot/pkg"
)

// FallbackReply is sent when the model is unreachable or unusable.
const FallbackReply = "Disculpa, tuve un problema para responder. ¿Puedes repetirlo?"

// ruleStrength is the strength recorded for intents the expansion pass
// added, as opposed to model-detected ones that carry their confidence.
const ruleStrength = 0.6

// TranscriptStore is the durable write side: the assistant persists both
// directions of the conversation. Failures are logged and dropped.
type TranscriptStore interface {
	SaveMessage(ctx context.Context, key string, msg pkg.MemoryMessage) error
	DeleteConversation(ctx context.Context, key string) error
}

// Service is the externally-callable surface of the core.
type Service struct {
	model       model.BaseChatModel
	memory      *memory.Service
	catalog     *config.Catalog
	reconciler  *Reconciler
	transcripts TranscriptStore
	maxRetries  uint64
	log         zerolog.Logger
}

func NewService(chatModel model.BaseChatModel, mem *memory.Service, catalog *config.Catalog, transcripts TranscriptStore, maxRetries uint64, log zerolog.Logger) *Service {
	return &Service{
		model:       chatModel,
		memory:      mem,
		catalog:     catalog,
		reconciler:  NewReconciler(catalog),
		transcripts: transcripts,
		maxRetries:  maxRetries,
		log:         log,
	}
}

// Reconciler exposes the rule engine for callers that score topic shifts.
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

// ProjectContext is the read-only query: the current ContextView for key.
func (s *Service) ProjectContext(ctx context.Context, key string) pkg.ContextView {
	return s.memory.Project(ctx, key)
}

// ReconcileAndUpdate is the primary write operation: merge a parsed
// detection result with the current context, update memory, and return
// the fresh projection.
func (s *Service) ReconcileAndUpdate(ctx context.Context, key, message string, rawIntents []pkg.Intent, rawEntities []pkg.Entity) pkg.ContextView {
	view := s.memory.Project(ctx, key)

	detected := lo.Map(rawIntents, func(in pkg.Intent, _ int) string { return in.Name })
	expanded := s.reconciler.ExpandIntents(message, detected)

	strength := make(map[string]float64, len(rawIntents))
	for _, in := range rawIntents {
		strength[in.Name] = in.Confidence
	}
	intents := lo.Map(expanded, func(name string, _ int) pkg.Intent {
		if conf, ok := strength[name]; ok {
			return pkg.Intent{Name: name, Confidence: conf}
		}
		return pkg.Intent{Name: name, Confidence: ruleStrength}
	})

	fresh := make(map[string]string, len(rawEntities))
	for _, e := range rawEntities {
		fresh[e.Type] = e.Value
	}
	merged := s.reconciler.InferEntities(message, fresh, view.Entities)

	userMsg := pkg.MemoryMessage{
		Content:  message,
		FromUser: true,
		Intents:  expanded,
		Entities: merged,
	}
	s.memory.Update(ctx, key, pkg.MemoryDelta{
		Entities: rawEntities, // fresh only; known values are already stored
		Intents:  intents,
		Topic:    memory.Classify(expanded),
		Message:  &userMsg,
	})
	s.persist(ctx, key, userMsg)

	return s.memory.Project(ctx, key)
}

// DetectIntents asks the model for intents in the message, with the
// current context embedded. Degrades to an empty result.
func (s *Service) DetectIntents(ctx context.Context, key, message string) []pkg.Intent {
	view := s.memory.Project(ctx, key)
	system, user := BuildIntentPrompt(message, view, s.catalog)

	raw, err := s.complete(ctx, system, user)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("intent detection failed")
		return nil
	}
	return ParseIntents(raw)
}

// ExtractEntities asks the model for the typed facts present in the
// message. Degrades to an empty result.
func (s *Service) ExtractEntities(ctx context.Context, key, message string) []pkg.Entity {
	system, user := BuildEntityPrompt(message, s.catalog)

	raw, err := s.complete(ctx, system, user)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("entity extraction failed")
		return nil
	}
	return ParseEntities(raw)
}

// Respond runs the whole turn: project, detect, extract, reconcile,
// update, and generate the reply.
func (s *Service) Respond(ctx context.Context, key, message string) string {
	started := time.Now()
	before := s.memory.Project(ctx, key)

	rawIntents := s.DetectIntents(ctx, key, message)
	rawEntities := s.ExtractEntities(ctx, key, message)

	detected := lo.Map(rawIntents, func(in pkg.Intent, _ int) string { return in.Name })
	expanded := s.reconciler.ExpandIntents(message, detected)
	_, shiftConfidence, changed := s.reconciler.DetectShift(expanded, before)
	narrateShift := changed && shiftConfidence >= ShiftActionThreshold

	view := s.ReconcileAndUpdate(ctx, key, message, rawIntents, rawEntities)

	system, user := BuildResponsePrompt(message, view, narrateShift)
	raw, err := s.complete(ctx, system, user)
	reply := FallbackReply
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("reply generation failed")
	} else if r := ParseReply(raw); r != "" {
		reply = r
	}

	assistantMsg := pkg.MemoryMessage{Content: reply, FromUser: false}
	s.memory.Update(ctx, key, pkg.MemoryDelta{Message: &assistantMsg})
	s.persist(ctx, key, assistantMsg)

	s.log.Info().
		Str("key", key).
		Strs("intents", expanded).
		Str("topic", string(view.CurrentTopic)).
		Bool("topic_shift_narrated", narrateShift).
		Dur("elapsed", time.Since(started)).
		Msg("turn completed")

	return reply
}

// Reset drops the in-memory record and the stored transcript.
func (s *Service) Reset(ctx context.Context, key string) {
	s.memory.Clear(key)
	if s.transcripts != nil {
		if err := s.transcripts.DeleteConversation(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("transcript delete failed")
		}
	}
}

func (s *Service) persist(ctx context.Context, key string, msg pkg.MemoryMessage) {
	if s.transcripts == nil {
		return
	}
	if err := s.transcripts.SaveMessage(ctx, key, msg); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("transcript write failed")
	}
}

// complete calls the model with retry; retries belong here at the
// boundary, never inside the memory core.
func (s *Service) complete(ctx context.Context, system, user string) (string, error) {
	operation := func() (string, error) {
		out, err := s.model.Generate(ctx, []*schema.Message{
			schema.SystemMessage(system),
			schema.UserMessage(user),
		})
		if err != nil {
			return "", err
		}
		return out.Content, nil
	}
	return backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx))
}
