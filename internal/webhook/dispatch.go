package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"yt-relay/internal/metrics"
	"yt-relay/internal/models"
)

const userAgent = "yt-relay/1.0"

// Delivery is the outcome of one POST to one webhook URL.
type Delivery struct {
	URL        string `json:"url"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Dispatcher POSTs webhook payloads. Failures are reported, never retried.
type Dispatcher struct {
	client *http.Client
}

// NewDispatcher returns a Dispatcher whose requests give up after timeout.
func NewDispatcher(client *http.Client, timeout time.Duration) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Dispatcher{client: client}
}

func (d *Dispatcher) Dispatch(ctx context.Context, url string, payload models.WebhookPayload) Delivery {
	delivery := d.send(ctx, url, payload)
	metrics.WebhookDispatches.WithLabelValues(metrics.Result(delivery.Success)).Inc()
	if !delivery.Success {
		log.Warn().Str("webhook_url", url).Int("status", delivery.StatusCode).Str("error", delivery.Error).Msg("webhook delivery failed")
	}
	return delivery
}

// DispatchAll sends payload to every url concurrently. Results keep the order of urls.
func (d *Dispatcher) DispatchAll(ctx context.Context, urls []string, payload models.WebhookPayload) []Delivery {
	deliveries := make([]Delivery, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			deliveries[i] = d.Dispatch(ctx, url, payload)
		}(i, url)
	}
	wg.Wait()
	return deliveries
}

func (d *Dispatcher) send(ctx context.Context, url string, payload models.WebhookPayload) Delivery {
	delivery := Delivery{URL: url}

	body, err := json.Marshal(payload)
	if err != nil {
		delivery.Error = fmt.Sprintf("failed to encode payload: %v", err)
		return delivery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		delivery.Error = fmt.Sprintf("failed to create request: %v", err)
		return delivery
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		delivery.Error = err.Error()
		return delivery
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	delivery.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		delivery.Error = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		return delivery
	}
	delivery.Success = true
	return delivery
}
