package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"yt-relay/internal/feed"
	"yt-relay/internal/history"
	"yt-relay/internal/notify"
	"yt-relay/internal/store"
	"yt-relay/internal/subscriptions"
)

const maxBodySize = 1 << 20

type Handlers struct {
	reconciler *subscriptions.Reconciler
	forwarder  *notify.Forwarder
	store      store.Store
	history    history.Log
	baseURL    string
}

func New(reconciler *subscriptions.Reconciler, forwarder *notify.Forwarder, s store.Store, h history.Log, baseURL string) *Handlers {
	return &Handlers{
		reconciler: reconciler,
		forwarder:  forwarder,
		store:      s,
		history:    h,
		baseURL:    baseURL,
	}
}

// Register mounts the relay API and the hub callback endpoints on r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/subscribe", h.PostSubscribe).Methods(http.MethodPost)
	r.HandleFunc("/unsubscribe", h.PostUnsubscribe).Methods(http.MethodPost)
	r.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	r.HandleFunc("/subscriptions", h.GetSubscriptions).Methods(http.MethodGet)
	r.HandleFunc("/websub/{userKey}", h.GetVerification).Methods(http.MethodGet)
	r.HandleFunc("/websub/{userKey}", h.PostNotification).Methods(http.MethodPost)
	r.HandleFunc("/feeds/{userKey}", h.GetRSSFeed).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

type errorBody struct {
	Success           bool     `json:"success"`
	Error             string   `json:"error"`
	WebhookURL        string   `json:"webhookUrl,omitempty"`
	InvalidChannelIDs []string `json:"invalidChannelIds,omitempty"`
	RequestedChannels []string `json:"requestedChannels,omitempty"`
	CurrentChannels   []string `json:"currentChannels,omitempty"`
}

var errBadJSON = errors.New("request body is not valid JSON")

// statusFor maps domain errors to HTTP status codes. Anything unrecognised is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadJSON),
		errors.Is(err, subscriptions.ErrInvalidChannelID),
		errors.Is(err, subscriptions.ErrInvalidWebhookURL),
		errors.Is(err, subscriptions.ErrNoChannels),
		errors.Is(err, notify.ErrMissingField),
		errors.Is(err, feed.ErrInvalidFeed):
		return http.StatusBadRequest
	case errors.Is(err, subscriptions.ErrNotFound),
		errors.Is(err, notify.ErrNotFound),
		errors.Is(err, notify.ErrUnknownTopic):
		return http.StatusNotFound
	case errors.Is(err, subscriptions.ErrNoIntersection):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Error = "internal server error"
		writeJSON(w, status, body)
		return
	}

	var reqErr *subscriptions.RequestError
	if errors.As(err, &reqErr) {
		body.WebhookURL = reqErr.WebhookURL
		body.InvalidChannelIDs = reqErr.Invalid
		body.RequestedChannels = reqErr.Requested
		body.CurrentChannels = reqErr.Current
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, w http.ResponseWriter, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}
