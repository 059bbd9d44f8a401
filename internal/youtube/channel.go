package youtube

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	channelIDPrefix = "UC"
	channelIDLength = 24

	feedURL = "https://www.youtube.com/xml/feeds/videos.xml"
)

// IsValidChannelID reports whether s looks like a YouTube channel ID: "UC" followed by 22 more characters.
func IsValidChannelID(s string) bool {
	return strings.HasPrefix(s, channelIDPrefix) && utf8.RuneCountInString(s) == channelIDLength
}

// InvalidChannelIDs returns the ids failing IsValidChannelID, in input order.
func InvalidChannelIDs(ids []string) []string {
	var invalid []string
	for _, id := range ids {
		if !IsValidChannelID(id) {
			invalid = append(invalid, id)
		}
	}
	return invalid
}

// TopicURL is the WebSub topic for a channel's upload feed.
func TopicURL(channelID string) string {
	return feedURL + "?channel_id=" + url.QueryEscape(channelID)
}

// ChannelIDFromTopic extracts the channel_id query parameter of a topic URL.
func ChannelIDFromTopic(topic string) string {
	u, err := url.Parse(strings.TrimSpace(topic))
	if err != nil {
		return ""
	}
	return u.Query().Get("channel_id")
}
