package notify

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yt-relay/internal/feed"
	"yt-relay/internal/history"
	"yt-relay/internal/models"
	"yt-relay/internal/store"
	"yt-relay/internal/test"
	"yt-relay/internal/webhook"
	"yt-relay/internal/youtube"
)

const (
	channelA = "UC_x5XG1OV2P6uZZ5FSM9Ttw"
	channelB = "UCBR8-60-B28hp2BmDPdntcQ"
	userKey  = "key-a"
)

var fixedNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func newForwarder(t *testing.T, webhookPath string, channels ...string) (*Forwarder, *test.WebhookReceiver, *history.MemoryLog) {
	recv := test.NewWebhookReceiver(t)
	log := history.NewMemoryLog(10)
	s := store.NewMemoryStore(models.Subscription{
		UserKey:    userKey,
		WebhookURL: recv.URL + webhookPath,
		ChannelIDs: models.NewChannelSet(channels),
		CreatedAt:  fixedNow,
		Timestamp:  fixedNow,
	})
	f := New(Options{
		Store:   s,
		Sender:  webhook.NewDispatcher(nil, time.Second),
		History: log,
		Mirror:  webhook.Mirror{Enabled: true},
		Now:     func() time.Time { return fixedNow },
	})
	return f, recv, log
}

func TestVerifyEchoesChallenge(t *testing.T) {
	f, _, _ := newForwarder(t, "/hook", channelA)

	challenge, err := f.Verify(context.Background(), userKey, models.Verification{
		Mode:      "subscribe",
		Topic:     youtube.TopicURL(channelB),
		Challenge: "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", challenge)
}

func TestVerifyMissingChallenge(t *testing.T) {
	f, recv, _ := newForwarder(t, "/hook", channelA)

	_, err := f.Verify(context.Background(), userKey, models.Verification{
		Mode:  "subscribe",
		Topic: youtube.TopicURL(channelA),
	})
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "hub.challenge")
	assert.Empty(t, recv.Received("/hook"))
}

func TestVerifyTopics(t *testing.T) {
	f, _, _ := newForwarder(t, "/hook", channelA)
	f.verifyTopics = true
	ctx := context.Background()

	_, err := f.Verify(ctx, userKey, models.Verification{Mode: "subscribe", Topic: youtube.TopicURL(channelB), Challenge: "c"})
	assert.ErrorIs(t, err, ErrUnknownTopic)

	_, err = f.Verify(ctx, "missing", models.Verification{Mode: "subscribe", Topic: youtube.TopicURL(channelA), Challenge: "c"})
	assert.ErrorIs(t, err, ErrUnknownTopic)

	got, err := f.Verify(ctx, userKey, models.Verification{Mode: "subscribe", Topic: youtube.TopicURL(channelA), Challenge: "c"})
	require.NoError(t, err)
	assert.Equal(t, "c", got)

	// The record may already be gone when an unsubscribe is verified.
	got, err = f.Verify(ctx, "missing", models.Verification{Mode: "unsubscribe", Topic: youtube.TopicURL(channelA), Challenge: "u"})
	require.NoError(t, err)
	assert.Equal(t, "u", got)
}

func TestForwardDeliversPayload(t *testing.T) {
	f, recv, log := newForwarder(t, "/hook", channelA)

	res, err := f.Forward(context.Background(), userKey, test.Fixture(t, "notification.xml"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Deliveries, 1)
	assert.Equal(t, http.StatusOK, res.Deliveries[0].StatusCode)

	got := recv.Received("/hook")
	require.Len(t, got, 1)
	assert.Equal(t, models.EventVideoPublished, got[0].Event)
	assert.Equal(t, "dQw4w9WgXcQ", got[0].Video.ID)
	assert.Equal(t, "Test Video 1", got[0].Video.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", got[0].Video.URL)
	assert.Equal(t, "2024-03-05T10:00:00Z", got[0].Video.PublishedAt)
	assert.Equal(t, channelA, got[0].Channel.ID)
	assert.Equal(t, "Google for Developers", got[0].Channel.Name)
	assert.Equal(t, "2024-03-05T12:00:00Z", got[0].Timestamp)

	recent, err := log.Recent(context.Background(), userKey)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "dQw4w9WgXcQ", recent[0].Video.ID)
}

func TestForwardMirrorsToCounterpart(t *testing.T) {
	f, recv, _ := newForwarder(t, "/webhook/yt", channelA)
	recv.Fail["/webhook-test/yt"] = http.StatusNotFound

	res, err := f.Forward(context.Background(), userKey, test.Fixture(t, "notification.xml"))
	require.NoError(t, err)
	require.Len(t, res.Deliveries, 2)
	assert.True(t, res.Deliveries[0].Success)
	assert.False(t, res.Deliveries[1].Success)
	assert.Equal(t, http.StatusNotFound, res.Deliveries[1].StatusCode)
	assert.False(t, res.Success)

	assert.Len(t, recv.Received("/webhook/yt"), 1)
	assert.Len(t, recv.Received("/webhook-test/yt"), 1)
}

func TestForwardChannelMismatchIsWarning(t *testing.T) {
	f, recv, _ := newForwarder(t, "/hook", channelB)

	res, err := f.Forward(context.Background(), userKey, test.Fixture(t, "notification.xml"))
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], channelA)
	assert.Len(t, recv.Received("/hook"), 1)
}

func TestForwardErrors(t *testing.T) {
	f, recv, _ := newForwarder(t, "/hook", channelA)
	ctx := context.Background()

	_, err := f.Forward(ctx, "missing", test.Fixture(t, "notification.xml"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Forward(ctx, userKey, test.Fixture(t, "deleted.xml"))
	assert.ErrorIs(t, err, feed.ErrNoEntry)

	_, err = f.Forward(ctx, userKey, []byte("garbage"))
	assert.ErrorIs(t, err, feed.ErrInvalidFeed)

	assert.Empty(t, recv.Received("/hook"))
}
