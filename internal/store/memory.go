package store

import (
	"context"
	"sync"

	"yt-relay/internal/models"
)

// MemoryStore keeps records in process memory. Used by tests and STORE_BACKEND=memory.
type MemoryStore struct {
	mu   sync.RWMutex
	subs []models.Subscription
}

func NewMemoryStore(initial ...models.Subscription) *MemoryStore {
	m := &MemoryStore{}
	for _, sub := range initial {
		m.subs = append(m.subs, clone(sub))
	}
	return m
}

func (m *MemoryStore) List(ctx context.Context) ([]models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, clone(sub))
	}
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, subs []models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]models.Subscription, 0, len(subs))
	for _, sub := range subs {
		next = append(next, clone(sub))
	}
	m.subs = next
	return nil
}

func (m *MemoryStore) Add(ctx context.Context, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subs {
		if existing.UserKey == sub.UserKey || existing.WebhookURL == sub.WebhookURL {
			return ErrExists
		}
	}
	m.subs = append(m.subs, clone(sub))
	return nil
}

func (m *MemoryStore) UpdateByKey(ctx context.Context, userKey string, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(userKey)
	if i < 0 {
		return ErrNotFound
	}
	m.subs[i] = clone(sub)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, userKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(userKey)
	if i < 0 {
		return ErrNotFound
	}
	m.subs = append(m.subs[:i], m.subs[i+1:]...)
	return nil
}

func (m *MemoryStore) FindByWebhook(ctx context.Context, webhookURL string) (models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if sub.WebhookURL == webhookURL {
			return clone(sub), nil
		}
	}
	return models.Subscription{}, ErrNotFound
}

func (m *MemoryStore) FindByKey(ctx context.Context, userKey string) (models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(userKey); i >= 0 {
		return clone(m.subs[i]), nil
	}
	return models.Subscription{}, ErrNotFound
}

func (m *MemoryStore) indexOf(userKey string) int {
	for i, sub := range m.subs {
		if sub.UserKey == userKey {
			return i
		}
	}
	return -1
}

// clone detaches the channel slice so callers cannot mutate stored state.
func clone(sub models.Subscription) models.Subscription {
	sub.ChannelIDs = append(models.ChannelSet(nil), sub.ChannelIDs...)
	return sub
}
