package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yt-relay/internal/config"
	"yt-relay/internal/models"
)

func TestOpenMemory(t *testing.T) {
	b, err := Open(context.Background(), config.Config{StoreBackend: config.BackendMemory})
	require.NoError(t, err)
	assert.Nil(t, b.Redis)
	assert.NoError(t, b.Close())
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "relay.db")

	b, err := Open(ctx, config.Config{StoreBackend: config.BackendSQLite, DatabaseURL: dsn})
	require.NoError(t, err)
	defer b.Close()

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	sub := models.Subscription{
		UserKey:    "key-a",
		WebhookURL: "https://example.com/hook",
		ChannelIDs: models.ChannelSet{"UC_x5XG1OV2P6uZZ5FSM9Ttw"},
		CreatedAt:  now,
		Timestamp:  now,
	}
	require.NoError(t, b.Add(ctx, sub))

	got, err := b.FindByWebhook(ctx, sub.WebhookURL)
	require.NoError(t, err)
	assert.Equal(t, sub.UserKey, got.UserKey)
	assert.Equal(t, sub.ChannelIDs, got.ChannelIDs)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreBackend: "mongo"})
	assert.Error(t, err)
}
