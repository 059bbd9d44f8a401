package models

import "time"

// EventVideoPublished tags every payload sent to a webhook.
const EventVideoPublished = "youtube.video.published"

// Verification is the query a hub sends to confirm a (un)subscribe request.
type Verification struct {
	Mode         string
	Topic        string
	Challenge    string
	LeaseSeconds string
}

// VideoEntry is the flattened first entry of a hub publish notification.
type VideoEntry struct {
	VideoID   string
	ChannelID string
	Title     string
	Link      string
	Author    string
	Published time.Time
	Updated   time.Time
}

// WebhookPayload is the JSON document POSTed to subscriber webhooks.
type WebhookPayload struct {
	Event     string         `json:"event"`
	Video     VideoPayload   `json:"video"`
	Channel   ChannelPayload `json:"channel"`
	Timestamp string         `json:"timestamp"`
}

type VideoPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	UpdatedAt   string `json:"updated_at"`
}

type ChannelPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewWebhookPayload builds the outbound payload for entry, stamped with dispatchedAt.
func NewWebhookPayload(entry VideoEntry, dispatchedAt time.Time) WebhookPayload {
	return WebhookPayload{
		Event: EventVideoPublished,
		Video: VideoPayload{
			ID:          entry.VideoID,
			Title:       entry.Title,
			URL:         entry.Link,
			PublishedAt: formatTime(entry.Published),
			UpdatedAt:   formatTime(entry.Updated),
		},
		Channel: ChannelPayload{
			ID:   entry.ChannelID,
			Name: entry.Author,
		},
		Timestamp: dispatchedAt.UTC().Format(time.RFC3339),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
