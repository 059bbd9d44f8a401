package feed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Songmu/go-httpdate"
	"github.com/mmcdole/gofeed"

	"yt-relay/internal/models"
)

var (
	// ErrInvalidFeed indicates the payload is not an Atom feed with a usable video entry.
	ErrInvalidFeed = errors.New("invalid feed")
	// ErrNoEntry indicates a well-formed feed without entries, e.g. a deleted-video tombstone.
	ErrNoEntry = errors.New("feed has no entries")
)

const videoGUIDPrefix = "yt:video:"

// Parse flattens the first entry of a hub publish notification.
func Parse(raw []byte) (models.VideoEntry, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return models.VideoEntry{}, fmt.Errorf("%w: empty body", ErrInvalidFeed)
	}

	fp := gofeed.NewParser()
	parsed, err := fp.Parse(bytes.NewReader(raw))
	if err != nil {
		return models.VideoEntry{}, fmt.Errorf("%w: %v", ErrInvalidFeed, err)
	}
	if len(parsed.Items) == 0 {
		return models.VideoEntry{}, ErrNoEntry
	}

	item := parsed.Items[0]
	entry := models.VideoEntry{
		VideoID:   ytExtension(item, "videoId"),
		ChannelID: ytExtension(item, "channelId"),
		Title:     strings.TrimSpace(item.Title),
		Link:      item.Link,
		Published: parseTime(item.PublishedParsed, item.Published),
		Updated:   parseTime(item.UpdatedParsed, item.Updated),
	}
	if entry.VideoID == "" {
		entry.VideoID = strings.TrimPrefix(item.GUID, videoGUIDPrefix)
	}
	if item.Author != nil {
		entry.Author = item.Author.Name
	} else if parsed.Author != nil {
		entry.Author = parsed.Author.Name
	}
	if entry.Link == "" && entry.VideoID != "" {
		entry.Link = "https://www.youtube.com/watch?v=" + entry.VideoID
	}

	if entry.VideoID == "" || entry.ChannelID == "" {
		return models.VideoEntry{}, fmt.Errorf("%w: entry is missing yt:videoId or yt:channelId", ErrInvalidFeed)
	}
	return entry, nil
}

func ytExtension(item *gofeed.Item, name string) string {
	values := item.Extensions["yt"][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

// parseTime prefers gofeed's parse and falls back to go-httpdate for odd formats.
func parseTime(parsed *time.Time, raw string) time.Time {
	if parsed != nil && !parsed.IsZero() {
		return parsed.UTC()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	t, err := httpdate.Str2Time(raw, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
