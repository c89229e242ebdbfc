// Package memory implements the conversational memory engine: per-user
// records with rolling transcript, intent/topic history and remembered
// entities, plus the read-only context projection used for prompts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"erpbot/pkg"
)

// UserStore is the durable collaborator used only while seeding a record.
// Failures are swallowed: seeding degrades to an empty record.
type UserStore interface {
	FindProfile(ctx context.Context, key string) (*pkg.UserProfile, error)
	RecentMessages(ctx context.Context, key string, limit int) ([]pkg.MemoryMessage, error)
}

// Limits bounds the record histories and controls expiry.
type Limits struct {
	MaxMessages   int
	MaxIntents    int
	MaxTopics     int
	Expiration    time.Duration
	SweepInterval time.Duration
}

// DefaultLimits returns the deployed defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxMessages:   20,
		MaxIntents:    10,
		MaxTopics:     10,
		Expiration:    24 * time.Hour,
		SweepInterval: 2 * time.Hour,
	}
}

// Service is the memory store: one MemoryRecord per conversation key,
// held in-process. Updates to the same key serialize on a per-key mutex;
// distinct keys proceed independently.
type Service struct {
	mu      sync.Mutex
	records map[string]*pkg.MemoryRecord
	locks   map[string]*keyLock

	users    UserStore
	clock    func() time.Time
	limits   Limits
	entities entityStore
	log      zerolog.Logger
}

// NewService builds the memory service. users may be a no-op store when
// no durable backend is reachable.
func NewService(users UserStore, limits Limits, tuning EntityTuning, log zerolog.Logger) *Service {
	return &Service{
		records:  make(map[string]*pkg.MemoryRecord),
		locks:    make(map[string]*keyLock),
		users:    users,
		clock:    time.Now,
		limits:   limits,
		entities: entityStore{tuning: tuning},
		log:      log,
	}
}

// WithClock injects a clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// keyLock serializes access to one conversation. refs counts holders and
// waiters so the entry can be dropped when the last one releases; the
// lock map stays bounded by the number of concurrently active keys.
type keyLock struct {
	sync.Mutex
	refs int
}

func (s *Service) lockKey(key string) *keyLock {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return l
}

func (s *Service) unlockKey(key string, l *keyLock) {
	l.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

// Get returns a snapshot of the record for key, lazily initializing it
// and re-initializing it when it has expired. It never fails.
func (s *Service) Get(ctx context.Context, key string) *pkg.MemoryRecord {
	l := s.lockKey(key)
	defer s.unlockKey(key, l)
	return copyRecord(s.live(ctx, key))
}

// live returns the mutable record; the caller holds the key lock.
func (s *Service) live(ctx context.Context, key string) *pkg.MemoryRecord {
	s.mu.Lock()
	rec, ok := s.records[key]
	s.mu.Unlock()

	now := s.clock()
	if ok && now.Sub(rec.LastUpdate) <= s.limits.Expiration {
		return rec
	}
	if ok {
		s.log.Debug().Str("key", key).Msg("memory record expired, reinitializing")
	}

	rec = s.initialize(ctx, key)
	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()
	return rec
}

// initialize seeds a fresh record from durable storage where possible and
// falls back to an empty unregistered record on any failure.
func (s *Service) initialize(ctx context.Context, key string) *pkg.MemoryRecord {
	now := s.clock()
	rec := &pkg.MemoryRecord{
		Key:        key,
		Entities:   make(map[string]*pkg.KnownEntity),
		CreatedAt:  now,
		LastUpdate: now,
	}

	profile, err := s.users.FindProfile(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("profile lookup failed, starting unregistered")
	} else if profile != nil {
		rec.Profile = *profile
	}

	history, err := s.users.RecentMessages(ctx, key, s.limits.MaxMessages)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("history lookup failed, starting empty")
	} else {
		if len(history) > s.limits.MaxMessages {
			history = history[len(history)-s.limits.MaxMessages:]
		}
		rec.Messages = history
	}

	return rec
}

// Update merges a delta into the record for key and stamps lastUpdate.
// The mutation is best-effort: on an internal failure the pre-update
// record is returned unchanged. The returned record is a snapshot.
func (s *Service) Update(ctx context.Context, key string, delta pkg.MemoryDelta) (out *pkg.MemoryRecord) {
	l := s.lockKey(key)
	defer s.unlockKey(key, l)

	rec := s.live(ctx, key)
	before := copyRecord(rec)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Any("panic", r).Str("key", key).Msg("memory update failed, keeping previous state")
			s.mu.Lock()
			s.records[key] = before
			s.mu.Unlock()
			out = copyRecord(before)
		}
	}()

	now := s.clock()

	if delta.Profile != nil {
		mergeProfile(&rec.Profile, delta.Profile)
	}

	for _, e := range delta.Entities {
		s.entities.Upsert(rec.Entities, e.Type, e.Value, e.Confidence, now)
	}
	s.entities.Prune(rec.Entities, now)

	if len(delta.Intents) > 0 {
		events := make([]pkg.IntentEvent, 0, len(delta.Intents))
		for _, in := range delta.Intents {
			events = append(events, pkg.IntentEvent{
				Intent:    in.Name,
				Timestamp: now,
				Strength:  in.Confidence,
			})
		}
		rec.Intents = append(events, rec.Intents...)
		if len(rec.Intents) > s.limits.MaxIntents {
			rec.Intents = rec.Intents[:s.limits.MaxIntents]
		}
	}

	if delta.Topic != "" {
		recordTransition(rec, delta.Topic, s.limits.MaxTopics, now)
	}

	if delta.Message != nil {
		msg := *delta.Message
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		rec.Messages = append(rec.Messages, msg)
		if len(rec.Messages) > s.limits.MaxMessages {
			rec.Messages = rec.Messages[len(rec.Messages)-s.limits.MaxMessages:]
		}
	}

	rec.LastUpdate = now
	return copyRecord(rec)
}

// Clear deletes the record for key (logout / reset).
func (s *Service) Clear(key string) {
	l := s.lockKey(key)
	defer s.unlockKey(key, l)

	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
}

// SweepExpired removes every record older than the expiration window and
// returns the number removed. Surviving records get their entities
// pruned. Each key is inspected under its conversation lock, so the
// sweep never reads or deletes a record mid-update.
func (s *Service) SweepExpired() int {
	now := s.clock()
	s.mu.Lock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	removed := 0
	for _, key := range keys {
		l := s.lockKey(key)

		s.mu.Lock()
		rec, ok := s.records[key]
		s.mu.Unlock()

		switch {
		case !ok:
			// Cleared while we waited for the lock.
		case now.Sub(rec.LastUpdate) > s.limits.Expiration:
			s.mu.Lock()
			delete(s.records, key)
			s.mu.Unlock()
			removed++
		default:
			s.entities.Prune(rec.Entities, now)
		}

		s.unlockKey(key, l)
	}
	return removed
}

// StartSweeper runs SweepExpired on a fixed interval until ctx is done.
func (s *Service) StartSweeper(ctx context.Context) {
	interval := s.limits.SweepInterval
	if interval <= 0 {
		interval = 2 * time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.SweepExpired(); n > 0 {
					s.log.Info().Int("removed", n).Msg("swept expired memory records")
				}
			}
		}
	}()
}

// mergeProfile shallow-merges non-empty fields.
func mergeProfile(dst, src *pkg.UserProfile) {
	if src.Registered {
		dst.Registered = true
	}
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Email != "" {
		dst.Email = src.Email
	}
	if src.Company != "" {
		dst.Company = src.Company
	}
	if src.Plan != "" {
		dst.Plan = src.Plan
	}
}

func copyRecord(rec *pkg.MemoryRecord) *pkg.MemoryRecord {
	cp := *rec
	cp.Entities = make(map[string]*pkg.KnownEntity, len(rec.Entities))
	for t, e := range rec.Entities {
		ce := *e
		cp.Entities[t] = &ce
	}
	cp.Messages = append([]pkg.MemoryMessage(nil), rec.Messages...)
	cp.Intents = append([]pkg.IntentEvent(nil), rec.Intents...)
	cp.Topics = append([]pkg.TopicSpan(nil), rec.Topics...)
	return &cp
}
