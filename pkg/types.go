package pkg

import (
	"time"
)

// ----------------------------------------------------
// ================ Topics ================
// Topic is a coarse conversation phase derived from recent intents.
// The set is closed; free-text topics are never stored.
type Topic string

const (
	TopicTrialRequest     Topic = "trial_request"
	TopicTechnicalSupport Topic = "technical_support"
	TopicComplaint        Topic = "complaint"
	TopicCancellation     Topic = "cancellation"
	TopicPricingInquiry   Topic = "pricing_inquiry"
	TopicFeatureInquiry   Topic = "feature_inquiry"
	TopicServiceInterest  Topic = "service_interest"
	TopicConfirmation     Topic = "confirmation"
	TopicGratitude        Topic = "gratitude"
	TopicGreeting         Topic = "greeting"
	TopicFarewell         Topic = "farewell"
	TopicGeneral          Topic = "general"
)

// ----------------------------------------------------
// ================ Intents ================
// Closed intent vocabulary of the ERP assistant. Names stay in Spanish
// because they are what the deployed catalog and the LLM prompts use.
const (
	IntentTrialRequest    = "solicitud_prueba"
	IntentTechSupport     = "soporte_tecnico"
	IntentComplaint       = "queja"
	IntentCancellation    = "cancelacion"
	IntentPriceQuery      = "consulta_precio"
	IntentFeatureQuery    = "consulta_caracteristicas"
	IntentServiceInterest = "interes_en_servicio"
	IntentConfirmation    = "confirmacion"
	IntentGratitude       = "agradecimiento"
	IntentGreeting        = "saludo"
	IntentFarewell        = "despedida"
)

// Intent represents a detected user intent
type Intent struct {
	Name       string         `json:"name"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Entity represents an extracted entity from user input
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ----------------------------------------------------
// ================ Memory ================

// KnownEntity is a remembered typed fact with a trust score.
type KnownEntity struct {
	Value       string    `json:"value"`
	Confidence  float64   `json:"confidence"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Occurrences int       `json:"occurrences"`
}

// UserProfile is a snapshot of a registered user, or the unregistered marker.
type UserProfile struct {
	Registered bool   `json:"registered"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Company    string `json:"company,omitempty"`
	Plan       string `json:"plan,omitempty"`
}

// MemoryMessage is one turn of the rolling conversation transcript.
type MemoryMessage struct {
	ID        string            `json:"id,omitempty"`
	Content   string            `json:"content"`
	FromUser  bool              `json:"from_user"`
	Timestamp time.Time         `json:"timestamp"`
	Intents   []string          `json:"intents,omitempty"`
	Entities  map[string]string `json:"entities,omitempty"`
}

// IntentEvent records one detected intent with the strength the model gave it.
type IntentEvent struct {
	Intent    string    `json:"intent"`
	Timestamp time.Time `json:"timestamp"`
	Strength  float64   `json:"strength"`
}

// TopicSpan is an archived stretch of conversation on one topic.
type TopicSpan struct {
	Topic     Topic         `json:"topic"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
}

// ConversationContext tracks the live topic and how settled it is.
// ContextStrength grows while the topic holds and resets on a change.
type ConversationContext struct {
	CurrentTopic   Topic     `json:"current_topic"`
	TopicStartedAt time.Time `json:"topic_started_at"`
	// ContextStrength is in [0,1].
	ContextStrength float64 `json:"context_strength"`
}

// MemoryRecord is the aggregate conversational state for one ConversationKey.
// All slice fields are bounded; the memory service enforces the limits.
type MemoryRecord struct {
	Key        string                  `json:"key"`
	Profile    UserProfile             `json:"profile"`
	Entities   map[string]*KnownEntity `json:"entities"`
	Messages   []MemoryMessage         `json:"messages"` // oldest first
	Intents    []IntentEvent           `json:"intents"`  // newest first
	Topics     []TopicSpan             `json:"topics"`   // newest first
	Context    ConversationContext     `json:"context"`
	CreatedAt  time.Time               `json:"created_at"`
	LastUpdate time.Time               `json:"last_update"`
}

// ContextView is the read-only projection of a MemoryRecord used for
// prompt construction. Recomputed on every read, never persisted.
type ContextView struct {
	Registered      bool              `json:"registered"`
	Profile         UserProfile       `json:"profile"`
	Entities        map[string]string `json:"entities"`
	RecentMessages  []MemoryMessage   `json:"recent_messages"`
	RecentIntents   []string          `json:"recent_intents"`
	CurrentTopic    Topic             `json:"current_topic"`
	RecentTopics    []Topic           `json:"recent_topics"`
	ContextStrength float64           `json:"context_strength"`
}

// EmptyContextView is what read paths degrade to when nothing is known.
func EmptyContextView() ContextView {
	return ContextView{
		Entities:     map[string]string{},
		CurrentTopic: TopicGeneral,
	}
}

// MemoryDelta is a partial update merged into a MemoryRecord.
// Nil / empty fields are skipped.
type MemoryDelta struct {
	Profile  *UserProfile
	Entities []Entity
	Intents  []Intent
	Topic    Topic
	Message  *MemoryMessage
}

// ----------------------------------------------------
// ================ Result ================

// Maybe makes the "fell back to default" path visible to callers instead
// of a silently swallowed error.
type Maybe[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Maybe[T] { return Maybe[T]{value: v, ok: true} }

func None[T any]() Maybe[T] { return Maybe[T]{} }

// Get returns the value and whether one is present.
func (m Maybe[T]) Get() (T, bool) { return m.value, m.ok }

// OrElse returns the value, or def when empty.
func (m Maybe[T]) OrElse(def T) T {
	if m.ok {
		return m.value
	}
	return def
}
