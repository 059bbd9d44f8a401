package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"yt-relay/internal/feed"
	"yt-relay/internal/store"
	"yt-relay/internal/subscriptions"
)

// GetRSSFeed lists the videos recently forwarded for a user key.
func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	userKey := mux.Vars(r)["userKey"]

	sub, err := h.store.FindByKey(r.Context(), userKey)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, subscriptions.ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	deliveries, err := h.history.Recent(r.Context(), userKey)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rss, err := feed.GenerateRSS(sub, deliveries, feed.BaseURL(r, h.baseURL))
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("user_key", userKey).Msg("failed to generate RSS")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write([]byte(rss))
}
