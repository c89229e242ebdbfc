package storage

import (
	"context"

	"erpbot/pkg"
)

// NopStore backs the offline/degraded mode: every lookup is empty, every
// write is accepted and dropped.
type NopStore struct{}

func (NopStore) FindProfile(ctx context.Context, key string) (*pkg.UserProfile, error) {
	return nil, nil
}

func (NopStore) RecentMessages(ctx context.Context, key string, limit int) ([]pkg.MemoryMessage, error) {
	return nil, nil
}

func (NopStore) SaveProfile(ctx context.Context, key string, profile pkg.UserProfile) error {
	return nil
}

func (NopStore) SaveMessage(ctx context.Context, key string, msg pkg.MemoryMessage) error {
	return nil
}

func (NopStore) DeleteConversation(ctx context.Context, key string) error {
	return nil
}
