// Package notify handles the hub's calls to a subscription's callback URL:
// verification challenges and publish notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"yt-relay/internal/feed"
	"yt-relay/internal/history"
	"yt-relay/internal/metrics"
	"yt-relay/internal/models"
	"yt-relay/internal/store"
	"yt-relay/internal/webhook"
	"yt-relay/internal/youtube"
)

var (
	ErrMissingField = errors.New("missing required hub parameter")
	// ErrUnknownTopic rejects a subscribe verification for a channel the record does not hold.
	ErrUnknownTopic = errors.New("topic not subscribed for this callback")
	ErrNotFound     = errors.New("no subscription for this callback")
)

// Sender delivers a payload to each URL, one Delivery per URL in order.
type Sender interface {
	DispatchAll(ctx context.Context, urls []string, payload models.WebhookPayload) []webhook.Delivery
}

type Options struct {
	Store   store.Store
	Sender  Sender
	History history.Log
	Mirror  webhook.Mirror
	// VerifyTopics rejects subscribe verifications for channels missing from the record.
	VerifyTopics bool
	Now          func() time.Time
}

type Forwarder struct {
	store        store.Store
	sender       Sender
	history      history.Log
	mirror       webhook.Mirror
	verifyTopics bool
	now          func() time.Time
}

func New(opts Options) *Forwarder {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Forwarder{
		store:        opts.Store,
		sender:       opts.Sender,
		history:      opts.History,
		mirror:       opts.Mirror,
		verifyTopics: opts.VerifyTopics,
		now:          now,
	}
}

// Verify returns the challenge to echo back to the hub.
func (f *Forwarder) Verify(ctx context.Context, userKey string, v models.Verification) (string, error) {
	metrics.Notifications.WithLabelValues("verification").Inc()

	var missing []string
	if v.Mode == "" {
		missing = append(missing, "hub.mode")
	}
	if v.Topic == "" {
		missing = append(missing, "hub.topic")
	}
	if v.Challenge == "" {
		missing = append(missing, "hub.challenge")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	if f.verifyTopics && v.Mode == "subscribe" {
		sub, err := f.store.FindByKey(ctx, userKey)
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownTopic
		}
		if err != nil {
			return "", fmt.Errorf("failed to look up subscription: %w", err)
		}
		if !sub.ChannelIDs.Contains(youtube.ChannelIDFromTopic(v.Topic)) {
			return "", ErrUnknownTopic
		}
	}

	log.Info().
		Str("user_key", userKey).
		Str("mode", v.Mode).
		Str("topic", v.Topic).
		Str("lease_seconds", v.LeaseSeconds).
		Msg("hub verification accepted")
	return v.Challenge, nil
}

type ForwardResult struct {
	Success    bool                  `json:"success"`
	UserKey    string                `json:"userKey"`
	VideoID    string                `json:"videoId"`
	ChannelID  string                `json:"channelId"`
	Payload    models.WebhookPayload `json:"payload"`
	Deliveries []webhook.Delivery    `json:"deliveries"`
	Warnings   []string              `json:"warnings,omitempty"`
}

// Forward parses a publish notification and POSTs the resulting payload to the
// record's webhook and its counterpart. Success reports whether every delivery
// went through; failed deliveries are not retried.
func (f *Forwarder) Forward(ctx context.Context, userKey string, raw []byte) (ForwardResult, error) {
	res := ForwardResult{UserKey: userKey}

	entry, err := feed.Parse(raw)
	if err != nil {
		kind := "invalid"
		if errors.Is(err, feed.ErrNoEntry) {
			kind = "empty"
		}
		metrics.Notifications.WithLabelValues(kind).Inc()
		return res, err
	}
	metrics.Notifications.WithLabelValues("publish").Inc()
	res.VideoID = entry.VideoID
	res.ChannelID = entry.ChannelID

	sub, err := f.store.FindByKey(ctx, userKey)
	if errors.Is(err, store.ErrNotFound) {
		return res, ErrNotFound
	}
	if err != nil {
		return res, fmt.Errorf("failed to look up subscription: %w", err)
	}

	if !sub.ChannelIDs.Contains(entry.ChannelID) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("channel %s is not among the subscribed channels", entry.ChannelID))
		log.Warn().Str("user_key", userKey).Str("channel_id", entry.ChannelID).Msg("notification for unsubscribed channel")
	}

	res.Payload = models.NewWebhookPayload(entry, f.now())
	urls := []string{sub.WebhookURL}
	if other, ok := f.mirror.Counterpart(sub.WebhookURL); ok {
		urls = append(urls, other)
	}
	res.Deliveries = f.sender.DispatchAll(ctx, urls, res.Payload)

	res.Success = true
	for _, d := range res.Deliveries {
		if !d.Success {
			res.Success = false
		}
	}

	if f.history != nil {
		if err := f.history.Record(ctx, userKey, res.Payload); err != nil {
			log.Error().Err(err).Str("user_key", userKey).Msg("failed to record delivery")
		}
	}

	log.Info().
		Str("user_key", userKey).
		Str("video_id", entry.VideoID).
		Str("channel_id", entry.ChannelID).
		Int("deliveries", len(res.Deliveries)).
		Bool("success", res.Success).
		Msg("notification forwarded")
	return res, nil
}
