// Package store persists subscription records.
//
// Every backend stores one entry per user key with a secondary lookup from
// webhook URL to user key, so concurrent writers of different records never
// overwrite each other.
package store

import (
	"context"
	"errors"

	"yt-relay/internal/models"
)

var (
	// ErrNotFound indicates no record matches the lookup.
	ErrNotFound = errors.New("store: subscription not found")
	// ErrExists indicates Add was called for a user key that is already stored.
	ErrExists = errors.New("store: subscription already exists")
	// ErrConflict indicates an optimistic write kept losing to concurrent writers.
	ErrConflict = errors.New("store: concurrent modification")
)

// Store is the subscription collection, ordered by creation time.
type Store interface {
	List(ctx context.Context) ([]models.Subscription, error)
	// Save replaces the whole collection.
	Save(ctx context.Context, subs []models.Subscription) error
	Add(ctx context.Context, sub models.Subscription) error
	// UpdateByKey returns ErrNotFound when userKey is not stored.
	UpdateByKey(ctx context.Context, userKey string, sub models.Subscription) error
	Delete(ctx context.Context, userKey string) error
	FindByWebhook(ctx context.Context, webhookURL string) (models.Subscription, error)
	FindByKey(ctx context.Context, userKey string) (models.Subscription, error)
}
