package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"yt-relay/internal/metrics"
	"yt-relay/internal/youtube"
)

// Hub-reported subscription states.
const (
	StateVerified           = "verified"
	StateNotVerified        = "not verified"
	StateVerificationFailed = "verification failed"
	StateExpired            = "expired"
	StateNotFound           = "not found"
	StateUnknown            = "unknown"
	StateError              = "error"
)

// Status is what the hub's subscription-details page says about one channel.
type Status struct {
	ChannelID         string `json:"channelId"`
	State             string `json:"state"`
	Expiration        string `json:"expiration,omitempty"`
	LastVerification  string `json:"lastVerification,omitempty"`
	LastSubscribe     string `json:"lastSubscribe,omitempty"`
	VerificationError string `json:"verificationError,omitempty"`
	IsSubscribed      bool   `json:"isSubscribed"`
	Error             string `json:"error,omitempty"`
}

const maxStatusPageSize = 1 << 20

// FetchStatus scrapes the hub's details page for channelID/callbackURL.
func (c *Client) FetchStatus(ctx context.Context, channelID, callbackURL string) Status {
	status := Status{ChannelID: channelID, State: StateError}
	defer func() {
		metrics.HubRequests.WithLabelValues("status", metrics.Result(status.State != StateError)).Inc()
	}()

	if err := c.wait(ctx); err != nil {
		status.Error = err.Error()
		return status
	}

	query := url.Values{}
	query.Set("hub.callback", callbackURL)
	query.Set("hub.topic", youtube.TopicURL(channelID))
	query.Set("hub.secret", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL+"?"+query.Encode(), nil)
	if err != nil {
		status.Error = fmt.Sprintf("failed to create request: %v", err)
		return status
	}

	resp, err := c.client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to fetch status: %v", err)
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		status.State = StateNotFound
		return status
	}
	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		return status
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxStatusPageSize))
	if err != nil {
		status.Error = fmt.Sprintf("failed to parse HTML: %v", err)
		return status
	}

	fields := scrapeFields(doc)
	status.State = normalizeState(fields["state"], len(fields) > 0)
	status.Expiration = fields["expiration time"]
	status.LastVerification = fields["last successful verification"]
	status.LastSubscribe = fields["last subscribe request"]
	status.VerificationError = fields["last verification error"]
	status.IsSubscribed = status.State == StateVerified
	return status
}

// scrapeFields collects label/value pairs from <dt>/<dd> lists and <th>/<td> rows.
// Labels are lowercased with any trailing colon removed.
func scrapeFields(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	add := func(label, value string) {
		label = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(label), ":"))
		if label == "" {
			return
		}
		if _, seen := fields[label]; !seen {
			fields[label] = strings.TrimSpace(value)
		}
	}

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		add(dt.Text(), dt.NextFiltered("dd").Text())
	})
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("th, td")
		if cells.Length() >= 2 {
			add(cells.Eq(0).Text(), cells.Eq(1).Text())
		}
	})
	return fields
}

func normalizeState(raw string, pageHasFields bool) string {
	state := strings.ToLower(strings.TrimSpace(raw))
	switch state {
	case StateVerified:
		return StateVerified
	case StateNotVerified, "unverified":
		return StateNotVerified
	case StateVerificationFailed, "failed":
		return StateVerificationFailed
	case StateExpired:
		return StateExpired
	case "":
		if !pageHasFields {
			return StateNotFound
		}
		return StateUnknown
	}
	return StateUnknown
}
