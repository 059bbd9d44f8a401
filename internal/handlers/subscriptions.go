package handlers

import (
	"net/http"

	"yt-relay/internal/models"
	"yt-relay/internal/subscriptions"
)

type subscribeRequest struct {
	ChannelIDs []string `json:"channelIds"`
	WebhookURL string   `json:"webhookUrl"`
}

func (h *Handlers) PostSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.reconciler.Subscribe(r.Context(), req.ChannelIDs, req.WebhookURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) PostUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptions.UnsubscribeRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.reconciler.Unsubscribe(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.Status(r.Context(), r.URL.Query().Get("webhookUrl"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) GetSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.reconciler.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}
