package test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// HubRequest is one form POST received by HubServer.
type HubRequest struct {
	Mode         string
	Topic        string
	Callback     string
	Verify       string
	LeaseSeconds string
}

// HubServer is a fake WebSub hub. POST / accepts (un)subscribe forms, GET /details
// serves a subscription-details page built from States.
type HubServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []HubRequest
	// FailTopics maps a topic URL to the status code returned for it.
	FailTopics map[string]int
	// States maps a topic URL to the State shown on the details page.
	States map[string]string
}

func NewHubServer(t *testing.T) *HubServer {
	h := &HubServer{FailTopics: map[string]int{}, States: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/subscribe", h.handleSubscribe)
	mux.HandleFunc("/details", h.handleDetails)
	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Close)
	return h
}

func (h *HubServer) SubscribeURL() string { return h.URL + "/subscribe" }
func (h *HubServer) DetailsURL() string   { return h.URL + "/details" }

// Requests returns a copy of everything received so far.
func (h *HubServer) Requests() []HubRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HubRequest(nil), h.requests...)
}

// Topics returns the topics received for mode, in arrival order.
func (h *HubServer) Topics(mode string) []string {
	var topics []string
	for _, r := range h.Requests() {
		if r.Mode == mode {
			topics = append(topics, r.Topic)
		}
	}
	return topics
}

func (h *HubServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	req := HubRequest{
		Mode:         r.PostForm.Get("hub.mode"),
		Topic:        r.PostForm.Get("hub.topic"),
		Callback:     r.PostForm.Get("hub.callback"),
		Verify:       r.PostForm.Get("hub.verify"),
		LeaseSeconds: r.PostForm.Get("hub.lease_seconds"),
	}
	h.mu.Lock()
	h.requests = append(h.requests, req)
	code, fail := h.FailTopics[req.Topic]
	h.mu.Unlock()

	if fail {
		http.Error(w, "hub refused", code)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HubServer) handleDetails(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("hub.topic")
	h.mu.Lock()
	state, ok := h.States[topic]
	h.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, DetailsPage(state, r.URL.Query().Get("hub.callback"), topic))
}

// DetailsPage renders a page shaped like the Google hub's subscription details.
func DetailsPage(state, callback, topic string) string {
	var b strings.Builder
	b.WriteString("<html><body><h2>Subscription details</h2><dl>")
	row := func(label, value string) {
		fmt.Fprintf(&b, "<dt>%s</dt><dd>%s</dd>", label, value)
	}
	row("Callback URL", url.QueryEscape(callback))
	row("Topic URL", topic)
	row("State", state)
	row("Last successful verification", "Mon, 01 Jan 2024 00:00:00 +0000")
	row("Expiration time", "Thu, 11 Jan 2024 00:00:00 +0000")
	row("Last subscribe request", "Mon, 01 Jan 2024 00:00:00 +0000")
	row("Last verification error", "n/a")
	b.WriteString("</dl></body></html>")
	return b.String()
}
