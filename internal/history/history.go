// Package history keeps the most recent payloads forwarded for each user key.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"yt-relay/internal/models"
)

const DefaultSize = 50

// Log records forwarded payloads, newest first.
type Log interface {
	Record(ctx context.Context, userKey string, payload models.WebhookPayload) error
	Recent(ctx context.Context, userKey string) ([]models.WebhookPayload, error)
}

// RedisLog keeps a capped list per user key.
type RedisLog struct {
	client *redis.Client
	size   int
}

func NewRedisLog(client *redis.Client, size int) *RedisLog {
	if size <= 0 {
		size = DefaultSize
	}
	return &RedisLog{client: client, size: size}
}

func listKey(userKey string) string {
	return "relay:history:" + userKey
}

func (l *RedisLog) Record(ctx context.Context, userKey string, payload models.WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, listKey(userKey), data)
	pipe.LTrim(ctx, listKey(userKey), 0, int64(l.size-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

func (l *RedisLog) Recent(ctx context.Context, userKey string) ([]models.WebhookPayload, error) {
	values, err := l.client.LRange(ctx, listKey(userKey), 0, int64(l.size-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read deliveries: %w", err)
	}
	out := make([]models.WebhookPayload, 0, len(values))
	for _, v := range values {
		var p models.WebhookPayload
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// MemoryLog is the in-process Log used with the memory and SQL store backends.
type MemoryLog struct {
	mu      sync.Mutex
	size    int
	entries map[string][]models.WebhookPayload
}

func NewMemoryLog(size int) *MemoryLog {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryLog{size: size, entries: make(map[string][]models.WebhookPayload)}
}

func (l *MemoryLog) Record(ctx context.Context, userKey string, payload models.WebhookPayload) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := append([]models.WebhookPayload{payload}, l.entries[userKey]...)
	if len(list) > l.size {
		list = list[:l.size]
	}
	l.entries[userKey] = list
	return nil
}

func (l *MemoryLog) Recent(ctx context.Context, userKey string) ([]models.WebhookPayload, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.WebhookPayload{}, l.entries[userKey]...), nil
}
