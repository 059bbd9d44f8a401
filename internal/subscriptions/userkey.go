package subscriptions

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// UserKey derives the stable identifier embedded in the hub callback path.
// The same webhook URL always yields the same key.
func UserKey(webhookURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(webhookURL)).String()
}

// CallbackURL is where the hub verifies and delivers notifications for userKey.
func CallbackURL(base, userKey string) string {
	return strings.TrimRight(base, "/") + "/websub/" + userKey
}

// ValidWebhookURL accepts absolute http(s) URLs with a host. Callers trim
// surrounding whitespace first; a padded URL is rejected.
func ValidWebhookURL(raw string) bool {
	if raw != strings.TrimSpace(raw) {
		return false
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
