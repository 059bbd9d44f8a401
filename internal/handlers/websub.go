package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"yt-relay/internal/feed"
	"yt-relay/internal/models"
)

// GetVerification answers the hub's intent-verification request by echoing hub.challenge.
func (h *Handlers) GetVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, err := h.forwarder.Verify(r.Context(), mux.Vars(r)["userKey"], models.Verification{
		Mode:         q.Get("hub.mode"),
		Topic:        q.Get("hub.topic"),
		Challenge:    q.Get("hub.challenge"),
		LeaseSeconds: q.Get("hub.lease_seconds"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// PostNotification forwards a publish notification. Delivery failures still
// answer 200 so the hub does not redeliver.
func (h *Handlers) PostNotification(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "notification body too large"})
		return
	}

	res, err := h.forwarder.Forward(r.Context(), mux.Vars(r)["userKey"], raw)
	if errors.Is(err, feed.ErrNoEntry) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
