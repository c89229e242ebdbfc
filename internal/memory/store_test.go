package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpbot/pkg"
)

type stubUsers struct {
	profile *pkg.UserProfile
	history []pkg.MemoryMessage
	err     error
}

func (s stubUsers) FindProfile(_ context.Context, _ string) (*pkg.UserProfile, error) {
	return s.profile, s.err
}

func (s stubUsers) RecentMessages(_ context.Context, _ string, limit int) ([]pkg.MemoryMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && len(s.history) > limit {
		return s.history[len(s.history)-limit:], nil
	}
	return s.history, nil
}

func newTestService(users UserStore) *Service {
	return NewService(users, DefaultLimits(), DefaultEntityTuning(), zerolog.Nop())
}

func TestGetLazilyInitializesFromDurableStorage(t *testing.T) {
	users := stubUsers{
		profile: &pkg.UserProfile{Registered: true, Name: "Ana", Company: "Acme"},
		history: []pkg.MemoryMessage{{Content: "hola", FromUser: true}},
	}
	s := newTestService(users)

	rec := s.Get(context.Background(), "k1")

	require.NotNil(t, rec)
	assert.True(t, rec.Profile.Registered)
	assert.Equal(t, "Ana", rec.Profile.Name)
	require.Len(t, rec.Messages, 1)
	assert.Equal(t, "hola", rec.Messages[0].Content)
}

func TestInitializeSwallowsStorageFailures(t *testing.T) {
	s := newTestService(stubUsers{err: fmt.Errorf("redis down")})

	rec := s.Get(context.Background(), "k1")

	require.NotNil(t, rec)
	assert.False(t, rec.Profile.Registered)
	assert.Empty(t, rec.Messages)
	assert.NotNil(t, rec.Entities)
}

func TestGetReinitializesExpiredRecord(t *testing.T) {
	s := newTestService(stubUsers{})
	now := time.Now()
	s.WithClock(func() time.Time { return now })
	ctx := context.Background()

	s.Update(ctx, "k1", pkg.MemoryDelta{Message: &pkg.MemoryMessage{Content: "hola", FromUser: true}})
	require.Len(t, s.Get(ctx, "k1").Messages, 1)

	now = now.Add(25 * time.Hour)
	rec := s.Get(ctx, "k1")
	assert.Empty(t, rec.Messages, "expired record must be rebuilt from scratch")
}

func TestUpdateBoundsAllHistories(t *testing.T) {
	s := NewService(stubUsers{}, Limits{
		MaxMessages: 4, MaxIntents: 3, MaxTopics: 2,
		Expiration: 24 * time.Hour, SweepInterval: 2 * time.Hour,
	}, DefaultEntityTuning(), zerolog.Nop())
	ctx := context.Background()

	topics := []pkg.Topic{
		pkg.TopicGreeting, pkg.TopicPricingInquiry, pkg.TopicTrialRequest,
		pkg.TopicTechnicalSupport, pkg.TopicComplaint, pkg.TopicCancellation,
	}
	for i := 0; i < 12; i++ {
		s.Update(ctx, "k1", pkg.MemoryDelta{
			Message: &pkg.MemoryMessage{Content: fmt.Sprintf("m%d", i), FromUser: true},
			Intents: []pkg.Intent{{Name: fmt.Sprintf("i%d", i), Confidence: 0.9}},
			Topic:   topics[i%len(topics)],
		})
	}

	rec := s.Get(ctx, "k1")
	assert.Len(t, rec.Messages, 4)
	assert.Len(t, rec.Intents, 3)
	assert.LessOrEqual(t, len(rec.Topics), 2)
	// Newest message kept, oldest evicted.
	assert.Equal(t, "m11", rec.Messages[len(rec.Messages)-1].Content)
	// Intent history is newest first.
	assert.Equal(t, "i11", rec.Intents[0].Intent)
}

func TestUpdateMergesProfileShallowly(t *testing.T) {
	s := newTestService(stubUsers{})
	ctx := context.Background()

	s.Update(ctx, "k1", pkg.MemoryDelta{Profile: &pkg.UserProfile{Name: "Ana"}})
	s.Update(ctx, "k1", pkg.MemoryDelta{Profile: &pkg.UserProfile{Registered: true, Company: "Acme"}})

	rec := s.Get(ctx, "k1")
	assert.True(t, rec.Profile.Registered)
	assert.Equal(t, "Ana", rec.Profile.Name)
	assert.Equal(t, "Acme", rec.Profile.Company)
}

func TestUpdateStampsLastUpdate(t *testing.T) {
	s := newTestService(stubUsers{})
	now := time.Now()
	s.WithClock(func() time.Time { return now })
	ctx := context.Background()

	first := s.Get(ctx, "k1").LastUpdate
	now = now.Add(time.Minute)
	rec := s.Update(ctx, "k1", pkg.MemoryDelta{Topic: pkg.TopicGreeting})
	assert.True(t, rec.LastUpdate.After(first))
}

func TestClearDeletesRecord(t *testing.T) {
	s := newTestService(stubUsers{})
	ctx := context.Background()

	s.Update(ctx, "k1", pkg.MemoryDelta{Message: &pkg.MemoryMessage{Content: "hola", FromUser: true}})
	s.Clear("k1")

	assert.Empty(t, s.Get(ctx, "k1").Messages)
}

func TestSweepExpiredRemovesOnlyStaleRecords(t *testing.T) {
	s := newTestService(stubUsers{})
	now := time.Now()
	s.WithClock(func() time.Time { return now })
	ctx := context.Background()

	s.Update(ctx, "old", pkg.MemoryDelta{Topic: pkg.TopicGreeting})
	now = now.Add(23 * time.Hour)
	s.Update(ctx, "fresh", pkg.MemoryDelta{Topic: pkg.TopicGreeting})
	now = now.Add(2 * time.Hour)

	removed := s.SweepExpired()

	assert.Equal(t, 1, removed)
	s.mu.Lock()
	_, oldAlive := s.records["old"]
	_, freshAlive := s.records["fresh"]
	s.mu.Unlock()
	assert.False(t, oldAlive)
	assert.True(t, freshAlive)
}

func TestUpdatePrunesStaleEntitiesOnEveryDelta(t *testing.T) {
	tuning := DefaultEntityTuning()
	tuning.PruneMinConfidence = 0.6
	tuning.PruneMaxAge = time.Hour
	s := NewService(stubUsers{}, DefaultLimits(), tuning, zerolog.Nop())
	now := time.Now()
	s.WithClock(func() time.Time { return now })
	ctx := context.Background()

	s.Update(ctx, "k1", pkg.MemoryDelta{Entities: []pkg.Entity{{Type: "plan", Value: "basic", Confidence: 0.5}}})

	// A delta with no entities at all must still prune.
	now = now.Add(2 * time.Hour)
	rec := s.Update(ctx, "k1", pkg.MemoryDelta{Message: &pkg.MemoryMessage{Content: "hola", FromUser: true}})

	assert.NotContains(t, rec.Entities, "plan")
}

func TestSweepPrunesEntitiesOfSurvivingRecords(t *testing.T) {
	tuning := DefaultEntityTuning()
	tuning.PruneMinConfidence = 0.6
	tuning.PruneMaxAge = time.Hour
	s := NewService(stubUsers{}, DefaultLimits(), tuning, zerolog.Nop())
	now := time.Now()
	s.WithClock(func() time.Time { return now })
	ctx := context.Background()

	s.Update(ctx, "k1", pkg.MemoryDelta{Entities: []pkg.Entity{
		{Type: "plan", Value: "basic", Confidence: 0.5},
		{Type: "nombre", Value: "Ana", Confidence: 1.0},
	}})

	now = now.Add(2 * time.Hour) // inside the 24h expiration window
	removed := s.SweepExpired()

	assert.Equal(t, 0, removed)
	rec := s.Get(ctx, "k1")
	assert.NotContains(t, rec.Entities, "plan")
	assert.Contains(t, rec.Entities, "nombre")
}

func TestSweepRunsSafelyAlongsideUpdates(t *testing.T) {
	s := newTestService(stubUsers{})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Update(ctx, "k1", pkg.MemoryDelta{
				Message: &pkg.MemoryMessage{Content: fmt.Sprintf("m%d", i), FromUser: true},
				Topic:   pkg.TopicGreeting,
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.SweepExpired()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Get(ctx, "k1")
		}
	}()
	wg.Wait()

	// Nothing expired, so every update must have landed.
	rec := s.Get(ctx, "k1")
	require.NotEmpty(t, rec.Messages)
	assert.Equal(t, "m199", rec.Messages[len(rec.Messages)-1].Content)
}

func TestConversationLocksAreReleasedWhenIdle(t *testing.T) {
	s := newTestService(stubUsers{})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k%d", i)
		s.Update(ctx, key, pkg.MemoryDelta{Topic: pkg.TopicGreeting})
		s.Get(ctx, key)
	}
	s.Clear("k0")
	s.SweepExpired()

	s.mu.Lock()
	held := len(s.locks)
	s.mu.Unlock()
	assert.Zero(t, held, "idle conversations must not pin lock entries")
}

func TestGetReturnsSnapshotNotLiveRecord(t *testing.T) {
	s := newTestService(stubUsers{})
	ctx := context.Background()

	s.Update(ctx, "k1", pkg.MemoryDelta{Entities: []pkg.Entity{{Type: "nombre", Value: "Ana", Confidence: 1.0}}})
	snapshot := s.Get(ctx, "k1")
	snapshot.Entities["nombre"].Value = "mutated"

	assert.Equal(t, "Ana", s.Get(ctx, "k1").Entities["nombre"].Value)
}
