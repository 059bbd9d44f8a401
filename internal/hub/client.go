// Package hub talks to the YouTube WebSub hub.
package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"yt-relay/internal/metrics"
	"yt-relay/internal/youtube"
)

const (
	DefaultHubURL       = "https://pubsubhubbub.appspot.com/subscribe"
	DefaultStatusURL    = "https://pubsubhubbub.appspot.com/subscription-details"
	DefaultLeaseSeconds = 864000

	modeSubscribe   = "subscribe"
	modeUnsubscribe = "unsubscribe"
)

// Result is the outcome of one subscribe or unsubscribe call.
type Result struct {
	ChannelID  string `json:"channelId"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Options configures a Client. Zero values fall back to the public Google hub.
type Options struct {
	HubURL       string
	StatusURL    string
	LeaseSeconds int
	Timeout      time.Duration
	Client       *http.Client
	// Limiter paces outbound hub calls; nil means unlimited.
	Limiter *rate.Limiter
}

// Client never returns errors: every failure is folded into the Result or Status.
type Client struct {
	hubURL    string
	statusURL string
	lease     int
	client    *http.Client
	limiter   *rate.Limiter
}

func NewClient(opts Options) *Client {
	c := &Client{
		hubURL:    strings.TrimSpace(opts.HubURL),
		statusURL: strings.TrimSpace(opts.StatusURL),
		lease:     opts.LeaseSeconds,
		client:    opts.Client,
		limiter:   opts.Limiter,
	}
	if c.hubURL == "" {
		c.hubURL = DefaultHubURL
	}
	if c.statusURL == "" {
		c.statusURL = DefaultStatusURL
	}
	if c.lease <= 0 {
		c.lease = DefaultLeaseSeconds
	}
	if c.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.client = &http.Client{Timeout: timeout}
	}
	return c
}

// Subscribe asks the hub to (re)subscribe callbackURL to the channel's feed. A
// repeated subscribe extends the lease. leaseSeconds <= 0 uses the configured lease.
func (c *Client) Subscribe(ctx context.Context, channelID, callbackURL string, leaseSeconds int) Result {
	if leaseSeconds <= 0 {
		leaseSeconds = c.lease
	}
	form := url.Values{}
	form.Set("hub.lease_seconds", strconv.Itoa(leaseSeconds))
	return c.post(ctx, modeSubscribe, channelID, callbackURL, form)
}

func (c *Client) Unsubscribe(ctx context.Context, channelID, callbackURL string) Result {
	return c.post(ctx, modeUnsubscribe, channelID, callbackURL, url.Values{})
}

func (c *Client) post(ctx context.Context, mode, channelID, callbackURL string, form url.Values) Result {
	result := Result{ChannelID: channelID}
	defer func() {
		metrics.HubRequests.WithLabelValues(mode, metrics.Result(result.Success)).Inc()
	}()

	if err := c.wait(ctx); err != nil {
		result.Error = err.Error()
		return result
	}

	form.Set("hub.callback", callbackURL)
	form.Set("hub.mode", mode)
	form.Set("hub.topic", youtube.TopicURL(channelID))
	form.Set("hub.verify", "sync")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hubURL, strings.NewReader(form.Encode()))
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		return result
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("post %s request: %v", mode, err)
		log.Warn().Str("channel_id", channelID).Str("mode", mode).Err(err).Msg("hub request failed")
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		result.Error = fmt.Sprintf("%s request failed with status %d: %s", mode, resp.StatusCode, strings.TrimSpace(string(body)))
		log.Warn().Str("channel_id", channelID).Str("mode", mode).Int("status", resp.StatusCode).Msg("hub rejected request")
		return result
	}
	result.Success = true
	return result
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
