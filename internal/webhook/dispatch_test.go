package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yt-relay/internal/models"
)

func samplePayload() models.WebhookPayload {
	return models.NewWebhookPayload(models.VideoEntry{
		VideoID:   "dQw4w9WgXcQ",
		ChannelID: "UC_x5XG1OV2P6uZZ5FSM9Ttw",
		Title:     "Test Video",
		Link:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Author:    "Test Channel",
		Published: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}, time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC))
}

func TestDispatchSendsJSON(t *testing.T) {
	var got models.WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(nil, time.Second)
	delivery := d.Dispatch(context.Background(), server.URL, samplePayload())

	assert.True(t, delivery.Success)
	assert.Equal(t, http.StatusOK, delivery.StatusCode)
	assert.Equal(t, models.EventVideoPublished, got.Event)
	assert.Equal(t, "dQw4w9WgXcQ", got.Video.ID)
	assert.Equal(t, "2024-01-02T03:04:05Z", got.Video.PublishedAt)
	assert.Equal(t, "", got.Video.UpdatedAt)
	assert.Equal(t, "Test Channel", got.Channel.Name)
	assert.Equal(t, "2024-01-02T04:00:00Z", got.Timestamp)
}

func TestDispatchReportsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	delivery := NewDispatcher(nil, time.Second).Dispatch(context.Background(), server.URL, samplePayload())
	assert.False(t, delivery.Success)
	assert.Equal(t, http.StatusNotFound, delivery.StatusCode)
	assert.Contains(t, delivery.Error, "404")
}

func TestDispatchTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	delivery := NewDispatcher(nil, 50*time.Millisecond).Dispatch(context.Background(), server.URL, samplePayload())
	assert.False(t, delivery.Success)
	assert.NotEmpty(t, delivery.Error)
}

func TestDispatchAllIsIndependent(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	deliveries := NewDispatcher(nil, time.Second).DispatchAll(context.Background(), []string{broken.URL, ok.URL}, samplePayload())
	require.Len(t, deliveries, 2)
	assert.Equal(t, broken.URL, deliveries[0].URL)
	assert.False(t, deliveries[0].Success)
	assert.Equal(t, ok.URL, deliveries[1].URL)
	assert.True(t, deliveries[1].Success)
	assert.Equal(t, 1, hits)
}
