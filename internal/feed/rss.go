package feed

import (
	"fmt"
	"net/http"
	"time"

	"github.com/eduncan911/podcast"

	"yt-relay/internal/models"
)

// BaseURL returns configured when set, otherwise the scheme and host the request came in on.
func BaseURL(r *http.Request, configured string) string {
	if configured != "" {
		return configured
	}

	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "https"
		if r.Header.Get("X-Forwarded-Proto") != "" {
			scheme = r.Header.Get("X-Forwarded-Proto")
		}
	}

	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// GenerateRSS renders the payloads recently forwarded for sub as an RSS 2.0 feed.
func GenerateRSS(sub models.Subscription, deliveries []models.WebhookPayload, baseURL string) (string, error) {
	lastBuild := sub.Timestamp
	p := podcast.New(
		"YouTube uploads relayed to "+sub.WebhookURL,
		fmt.Sprintf("%s/feeds/%s", baseURL, sub.UserKey),
		fmt.Sprintf("Videos forwarded for %d subscribed channel(s).", len(sub.ChannelIDs)),
		&sub.CreatedAt, &lastBuild,
	)

	for _, d := range deliveries {
		title := d.Video.Title
		if title == "" {
			title = d.Video.ID
		}
		item := podcast.Item{
			Title:       title,
			Description: fmt.Sprintf("New video from %s", channelLabel(d.Channel)),
			Link:        d.Video.URL,
			GUID:        videoGUIDPrefix + d.Video.ID,
		}
		if published, err := time.Parse(time.RFC3339, d.Video.PublishedAt); err == nil {
			item.AddPubDate(&published)
		}
		if _, err := p.AddItem(item); err != nil {
			return "", fmt.Errorf("failed to add item %s: %w", d.Video.ID, err)
		}
	}

	return p.String(), nil
}

func channelLabel(c models.ChannelPayload) string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
