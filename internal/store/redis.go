package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"yt-relay/internal/models"
)

const (
	keyPrefix    = "relay:subscription:"
	webhookIndex = "relay:subscriptions:by_webhook"
	orderIndex   = "relay:subscriptions"

	maxTxRetries = 5
)

// RedisStore keeps each record under its own key. Writes WATCH the record key and
// retry on conflict instead of overwriting a concurrent change.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(userKey string) string {
	return keyPrefix + userKey
}

func (s *RedisStore) List(ctx context.Context) ([]models.Subscription, error) {
	userKeys, err := s.client.ZRange(ctx, orderIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription index: %w", err)
	}
	if len(userKeys) == 0 {
		return []models.Subscription{}, nil
	}

	keys := make([]string, len(userKeys))
	for i, k := range userKeys {
		keys[i] = recordKey(k)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}

	subs := make([]models.Subscription, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record; drop it like an expired key.
			s.client.ZRem(ctx, orderIndex, userKeys[i])
			continue
		}
		var sub models.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription %s: %w", userKeys[i], err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *RedisStore) Save(ctx context.Context, subs []models.Subscription) error {
	existing, err := s.client.ZRange(ctx, orderIndex, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read subscription index: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range existing {
			pipe.Del(ctx, recordKey(k))
		}
		pipe.Del(ctx, webhookIndex, orderIndex)
		for _, sub := range subs {
			if err := writeRecord(ctx, pipe, sub); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save subscriptions: %w", err)
	}
	return nil
}

func (s *RedisStore) Add(ctx context.Context, sub models.Subscription) error {
	key := recordKey(sub.UserKey)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return writeRecord(ctx, pipe, sub)
		})
		return err
	})
}

func (s *RedisStore) UpdateByKey(ctx context.Context, userKey string, sub models.Subscription) error {
	key := recordKey(userKey)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		current, err := readRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		sub.UserKey = userKey
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if current.WebhookURL != sub.WebhookURL {
				pipe.HDel(ctx, webhookIndex, current.WebhookURL)
			}
			return writeRecord(ctx, pipe, sub)
		})
		return err
	})
}

func (s *RedisStore) Delete(ctx context.Context, userKey string) error {
	key := recordKey(userKey)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		current, err := readRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HDel(ctx, webhookIndex, current.WebhookURL)
			pipe.ZRem(ctx, orderIndex, userKey)
			return nil
		})
		return err
	})
}

func (s *RedisStore) FindByWebhook(ctx context.Context, webhookURL string) (models.Subscription, error) {
	userKey, err := s.client.HGet(ctx, webhookIndex, webhookURL).Result()
	if errors.Is(err, redis.Nil) {
		return models.Subscription{}, ErrNotFound
	}
	if err != nil {
		return models.Subscription{}, fmt.Errorf("failed to read webhook index: %w", err)
	}
	return s.FindByKey(ctx, userKey)
}

func (s *RedisStore) FindByKey(ctx context.Context, userKey string) (models.Subscription, error) {
	return readRecord(ctx, s.client, recordKey(userKey))
}

func (s *RedisStore) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRecord(ctx context.Context, c getter, key string) (models.Subscription, error) {
	raw, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return models.Subscription{}, ErrNotFound
	}
	if err != nil {
		return models.Subscription{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	var sub models.Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return models.Subscription{}, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return sub, nil
}

func writeRecord(ctx context.Context, pipe redis.Pipeliner, sub models.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	pipe.Set(ctx, recordKey(sub.UserKey), data, 0)
	pipe.HSet(ctx, webhookIndex, sub.WebhookURL, sub.UserKey)
	// Microseconds fit a float64 exactly; equal scores order by user key.
	pipe.ZAdd(ctx, orderIndex, redis.Z{
		Score:  float64(sub.CreatedAt.UnixMicro()),
		Member: sub.UserKey,
	})
	return nil
}
