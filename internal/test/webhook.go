package test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"yt-relay/internal/models"
)

// WebhookReceiver records payloads POSTed to any path. Paths listed in Fail
// answer with the mapped status code.
type WebhookReceiver struct {
	*httptest.Server

	mu       sync.Mutex
	received map[string][]models.WebhookPayload
	Fail     map[string]int
}

func NewWebhookReceiver(t *testing.T) *WebhookReceiver {
	w := &WebhookReceiver{received: map[string][]models.WebhookPayload{}, Fail: map[string]int{}}
	w.Server = httptest.NewServer(http.HandlerFunc(w.handle))
	t.Cleanup(w.Close)
	return w
}

func (w *WebhookReceiver) handle(rw http.ResponseWriter, r *http.Request) {
	var p models.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(rw, "bad payload", http.StatusBadRequest)
		return
	}
	w.mu.Lock()
	w.received[r.URL.Path] = append(w.received[r.URL.Path], p)
	code, fail := w.Fail[r.URL.Path]
	w.mu.Unlock()
	if fail {
		rw.WriteHeader(code)
		return
	}
	rw.WriteHeader(http.StatusOK)
}

// Received returns the payloads POSTed to path.
func (w *WebhookReceiver) Received(path string) []models.WebhookPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.WebhookPayload(nil), w.received[path]...)
}
