// Package storage provides the durable user/transcript collaborator the
// memory engine seeds from. The engine itself stays correct without it:
// every accessor degrades to an empty result.
package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"erpbot/pkg"
)

const (
	profileKeyPrefix    = "profile:"
	transcriptKeyPrefix = "transcript:"
)

// RedisStore keeps registered-user profiles and conversation transcripts
// in Redis, JSON-encoded, with a rolling TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects using REDIS_URL and verifies the connection.
func NewRedisStore(ctx context.Context, ttl time.Duration) (*RedisStore, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL environment variable is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// FindProfile returns the registered-user profile for key, or nil when
// none is stored.
func (r *RedisStore) FindProfile(ctx context.Context, key string) (*pkg.UserProfile, error) {
	data, err := r.client.Get(ctx, profileKeyPrefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	var profile pkg.UserProfile
	if err := sonic.UnmarshalString(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// SaveProfile stores a profile snapshot (registration / profile updates).
func (r *RedisStore) SaveProfile(ctx context.Context, key string, profile pkg.UserProfile) error {
	data, err := sonic.MarshalString(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return r.client.Set(ctx, profileKeyPrefix+key, data, r.ttl).Err()
}

// RecentMessages returns up to limit transcript messages, oldest first.
func (r *RedisStore) RecentMessages(ctx context.Context, key string, limit int) ([]pkg.MemoryMessage, error) {
	data, err := r.client.Get(ctx, transcriptKeyPrefix+key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	var messages []pkg.MemoryMessage
	if err := sonic.UnmarshalString(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// SaveMessage appends one message to the transcript and refreshes the TTL.
func (r *RedisStore) SaveMessage(ctx context.Context, key string, msg pkg.MemoryMessage) error {
	messages, err := r.RecentMessages(ctx, key, 0)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	messages = append(messages, msg)

	data, err := sonic.MarshalString(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return r.client.Set(ctx, transcriptKeyPrefix+key, data, r.ttl).Err()
}

// DeleteConversation removes the stored transcript (reset command).
func (r *RedisStore) DeleteConversation(ctx context.Context, key string) error {
	return r.client.Del(ctx, transcriptKeyPrefix+key).Err()
}

// HealthCheck pings the backend.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
