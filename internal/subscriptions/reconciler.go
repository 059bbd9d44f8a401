// Package subscriptions reconciles requested channel sets against stored
// subscription records and the WebSub hub.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"yt-relay/internal/hub"
	"yt-relay/internal/models"
	"yt-relay/internal/store"
	"yt-relay/internal/webhook"
	"yt-relay/internal/youtube"
)

const (
	MsgSubscribed        = "Subscribed successfully"
	MsgUpdatedAndRenewed = "Subscription updated with new channels and existing channels resubscribed"
	MsgUpdated           = "Subscription updated successfully"
	MsgResubscribed      = "All channels have been resubscribed"
)

// HubClient is the subset of *hub.Client the reconciler uses.
type HubClient interface {
	Subscribe(ctx context.Context, channelID, callbackURL string, leaseSeconds int) hub.Result
	Unsubscribe(ctx context.Context, channelID, callbackURL string) hub.Result
	FetchStatus(ctx context.Context, channelID, callbackURL string) hub.Status
}

type Options struct {
	Store store.Store
	Hub   HubClient
	// CallbackBase is the public base URL the hub calls back to.
	CallbackBase string
	// LeaseSeconds of 0 lets the hub client apply its default.
	LeaseSeconds int
	Mirror       webhook.Mirror
	Now          func() time.Time
}

type Reconciler struct {
	store        store.Store
	hub          HubClient
	callbackBase string
	lease        int
	mirror       webhook.Mirror
	now          func() time.Time
}

func New(opts Options) *Reconciler {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		store:        opts.Store,
		hub:          opts.Hub,
		callbackBase: opts.CallbackBase,
		lease:        opts.LeaseSeconds,
		mirror:       opts.Mirror,
		now:          now,
	}
}

func (r *Reconciler) CallbackURL(userKey string) string {
	return CallbackURL(r.callbackBase, userKey)
}

type SubscribeResult struct {
	Success         bool             `json:"success"`
	Message         string           `json:"message,omitempty"`
	UserKey         string           `json:"userKey,omitempty"`
	WebhookURL      string           `json:"webhookUrl"`
	CallbackURL     string           `json:"callbackUrl,omitempty"`
	ChannelIDs      []string         `json:"channelIds,omitempty"`
	NewlySubscribed []string         `json:"newlySubscribedChannels"`
	Renewed         []string         `json:"renewedChannels"`
	HubResults      []hub.Result     `json:"hubResults"`
	Warnings        []string         `json:"warnings,omitempty"`
	Dual            *SubscribeResult `json:"dual,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Subscribe merges channelIDs into the record for webhookURL, creating it if
// needed, and (re)subscribes every requested channel at the hub. A test-variant
// webhook is mirrored onto its production URL as an independent record.
func (r *Reconciler) Subscribe(ctx context.Context, channelIDs []string, webhookURL string) (SubscribeResult, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if len(channelIDs) == 0 {
		return SubscribeResult{WebhookURL: webhookURL}, ErrNoChannels
	}
	if invalid := youtube.InvalidChannelIDs(channelIDs); len(invalid) > 0 {
		return SubscribeResult{WebhookURL: webhookURL}, &RequestError{Err: ErrInvalidChannelID, Invalid: invalid}
	}
	if !ValidWebhookURL(webhookURL) {
		return SubscribeResult{WebhookURL: webhookURL}, &RequestError{Err: ErrInvalidWebhookURL, WebhookURL: webhookURL}
	}

	requested := models.NewChannelSet(channelIDs)
	res, err := r.subscribe(ctx, requested, webhookURL)
	if err != nil {
		return res, err
	}

	if prod, ok := r.mirror.Production(webhookURL); ok {
		dual, err := r.subscribe(ctx, requested, prod)
		if err != nil {
			log.Warn().Err(err).Str("webhook_url", prod).Msg("mirrored subscribe failed")
			dual = SubscribeResult{WebhookURL: prod, Error: err.Error()}
		}
		res.Dual = &dual
	}
	return res, nil
}

func (r *Reconciler) subscribe(ctx context.Context, requested models.ChannelSet, webhookURL string) (SubscribeResult, error) {
	res := SubscribeResult{WebhookURL: webhookURL, NewlySubscribed: []string{}, Renewed: []string{}}

	existing, err := r.store.FindByWebhook(ctx, webhookURL)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return res, storeError("look up subscription", err)
	}

	now := r.now()
	var sub models.Subscription
	if !found {
		sub = models.Subscription{
			UserKey:    UserKey(webhookURL),
			WebhookURL: webhookURL,
			ChannelIDs: requested,
			CreatedAt:  now,
			Timestamp:  now,
		}
		err := r.store.Add(ctx, sub)
		switch {
		case errors.Is(err, store.ErrExists):
			// A concurrent subscribe created the record after our lookup.
			existing, err = r.store.FindByWebhook(ctx, webhookURL)
			if err != nil {
				return res, storeError("look up subscription", err)
			}
			found = true
		case err != nil:
			return res, storeError("create subscription", err)
		default:
			res.NewlySubscribed = append(res.NewlySubscribed, requested...)
		}
	}
	if found {
		for _, id := range requested {
			if existing.ChannelIDs.Contains(id) {
				res.Renewed = append(res.Renewed, id)
			} else {
				res.NewlySubscribed = append(res.NewlySubscribed, id)
			}
		}
		sub = existing
		sub.ChannelIDs = existing.ChannelIDs.Union(res.NewlySubscribed)
		sub.Timestamp = now
		if err := r.store.UpdateByKey(ctx, sub.UserKey, sub); err != nil {
			return res, storeError("update subscription", err)
		}
	}

	res.Success = true
	res.UserKey = sub.UserKey
	res.ChannelIDs = sub.ChannelIDs
	callback := r.CallbackURL(sub.UserKey)
	res.CallbackURL = callback
	res.Message = subscribeMessage(found, len(res.NewlySubscribed) > 0, len(res.Renewed) > 0)

	res.HubResults = hub.Each(ctx, requested, func(ctx context.Context, id string) hub.Result {
		return r.hub.Subscribe(ctx, id, callback, r.lease)
	})
	res.Warnings = hubWarnings("subscribe", res.HubResults)

	log.Info().
		Str("user_key", sub.UserKey).
		Str("webhook_url", webhookURL).
		Int("new", len(res.NewlySubscribed)).
		Int("renewed", len(res.Renewed)).
		Int("hub_failures", len(res.Warnings)).
		Msg(res.Message)
	return res, nil
}

func subscribeMessage(existed, hasNew, hasRenewed bool) string {
	switch {
	case !existed:
		return MsgSubscribed
	case hasNew && hasRenewed:
		return MsgUpdatedAndRenewed
	case hasNew:
		return MsgUpdated
	default:
		return MsgResubscribed
	}
}

func hubWarnings(op string, results []hub.Result) []string {
	var warnings []string
	for _, f := range hub.Failed(results) {
		reason := f.Error
		if reason == "" {
			reason = fmt.Sprintf("hub responded %d", f.StatusCode)
		}
		warnings = append(warnings, fmt.Sprintf("%s failed for %s: %s", op, f.ChannelID, reason))
	}
	return warnings
}

type UnsubscribeRequest struct {
	WebhookURL  string   `json:"webhookUrl"`
	ChannelIDs  []string `json:"channelIds"`
	AllChannels bool     `json:"allChannels"`
}

type UnsubscribeResult struct {
	Success           bool               `json:"success"`
	Message           string             `json:"message,omitempty"`
	UserKey           string             `json:"userKey,omitempty"`
	WebhookURL        string             `json:"webhookUrl"`
	RemovedChannels   []string           `json:"removedChannels"`
	RemainingChannels []string           `json:"remainingChannels"`
	Deleted           bool               `json:"deleted"`
	HubResults        []hub.Result       `json:"hubResults"`
	Warnings          []string           `json:"warnings,omitempty"`
	Dual              *UnsubscribeResult `json:"dual,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// Unsubscribe removes channels from the record for req.WebhookURL and deletes
// the record once no channels remain. Requested IDs that are not on the record
// are ignored. The counterpart webhook, in either direction, gets the same treatment.
func (r *Reconciler) Unsubscribe(ctx context.Context, req UnsubscribeRequest) (UnsubscribeResult, error) {
	req.WebhookURL = strings.TrimSpace(req.WebhookURL)
	if !ValidWebhookURL(req.WebhookURL) {
		return UnsubscribeResult{WebhookURL: req.WebhookURL}, &RequestError{Err: ErrInvalidWebhookURL, WebhookURL: req.WebhookURL}
	}
	if !req.AllChannels {
		if len(req.ChannelIDs) == 0 {
			return UnsubscribeResult{WebhookURL: req.WebhookURL}, ErrNoChannels
		}
		if invalid := youtube.InvalidChannelIDs(req.ChannelIDs); len(invalid) > 0 {
			return UnsubscribeResult{WebhookURL: req.WebhookURL}, &RequestError{Err: ErrInvalidChannelID, Invalid: invalid}
		}
	}

	res, err := r.unsubscribe(ctx, req, req.WebhookURL)
	if err != nil {
		return res, err
	}

	if other, ok := r.mirror.Counterpart(req.WebhookURL); ok {
		dual, err := r.unsubscribe(ctx, req, other)
		if err != nil {
			log.Warn().Err(err).Str("webhook_url", other).Msg("mirrored unsubscribe failed")
			dual = UnsubscribeResult{WebhookURL: other, Error: err.Error()}
		}
		res.Dual = &dual
	}
	return res, nil
}

func (r *Reconciler) unsubscribe(ctx context.Context, req UnsubscribeRequest, webhookURL string) (UnsubscribeResult, error) {
	res := UnsubscribeResult{WebhookURL: webhookURL, RemovedChannels: []string{}, RemainingChannels: []string{}}

	sub, err := r.store.FindByWebhook(ctx, webhookURL)
	if errors.Is(err, store.ErrNotFound) {
		return res, &RequestError{Err: ErrNotFound, WebhookURL: webhookURL}
	}
	if err != nil {
		return res, storeError("look up subscription", err)
	}
	res.UserKey = sub.UserKey

	var removed models.ChannelSet
	if req.AllChannels {
		removed = sub.ChannelIDs
	} else {
		for _, id := range models.NewChannelSet(req.ChannelIDs) {
			if sub.ChannelIDs.Contains(id) {
				removed = append(removed, id)
			}
		}
		if len(removed) == 0 {
			return res, &RequestError{
				Err:        ErrNoIntersection,
				WebhookURL: webhookURL,
				Requested:  req.ChannelIDs,
				Current:    sub.ChannelIDs,
			}
		}
	}

	callback := r.CallbackURL(sub.UserKey)
	res.HubResults = hub.Each(ctx, removed, func(ctx context.Context, id string) hub.Result {
		return r.hub.Unsubscribe(ctx, id, callback)
	})
	res.Warnings = hubWarnings("unsubscribe", res.HubResults)
	res.RemovedChannels = append(res.RemovedChannels, removed...)

	remaining := sub.ChannelIDs.Without(removed)
	if len(remaining) == 0 {
		if err := r.store.Delete(ctx, sub.UserKey); err != nil {
			return res, storeError("delete subscription", err)
		}
		res.Deleted = true
		res.Message = "Unsubscribed from all channels, subscription removed"
	} else {
		sub.ChannelIDs = remaining
		sub.Timestamp = r.now()
		if err := r.store.UpdateByKey(ctx, sub.UserKey, sub); err != nil {
			return res, storeError("update subscription", err)
		}
		res.RemainingChannels = append(res.RemainingChannels, remaining...)
		res.Message = fmt.Sprintf("Unsubscribed from %d channel(s)", len(removed))
	}
	res.Success = true

	log.Info().
		Str("user_key", sub.UserKey).
		Str("webhook_url", webhookURL).
		Int("removed", len(removed)).
		Bool("deleted", res.Deleted).
		Msg(res.Message)
	return res, nil
}

type StatusResult struct {
	Success     bool          `json:"success"`
	UserKey     string        `json:"userKey,omitempty"`
	WebhookURL  string        `json:"webhookUrl"`
	CallbackURL string        `json:"callbackUrl,omitempty"`
	ChannelIDs  []string      `json:"channelIds,omitempty"`
	CreatedAt   *time.Time    `json:"createdAt,omitempty"`
	Timestamp   *time.Time    `json:"timestamp,omitempty"`
	Channels    []hub.Status  `json:"channels"`
	Dual        *StatusResult `json:"dual,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Status reports the stored record for webhookURL along with what the hub says
// about each of its channels.
func (r *Reconciler) Status(ctx context.Context, webhookURL string) (StatusResult, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if !ValidWebhookURL(webhookURL) {
		return StatusResult{WebhookURL: webhookURL}, &RequestError{Err: ErrInvalidWebhookURL, WebhookURL: webhookURL}
	}

	res, err := r.status(ctx, webhookURL)
	if err != nil {
		return res, err
	}

	if other, ok := r.mirror.Counterpart(webhookURL); ok {
		dual, err := r.status(ctx, other)
		if errors.Is(err, ErrNotFound) {
			dual = StatusResult{WebhookURL: other, Error: "not found"}
		} else if err != nil {
			dual = StatusResult{WebhookURL: other, Error: err.Error()}
		}
		res.Dual = &dual
	}
	return res, nil
}

func (r *Reconciler) status(ctx context.Context, webhookURL string) (StatusResult, error) {
	res := StatusResult{WebhookURL: webhookURL, Channels: []hub.Status{}}

	sub, err := r.store.FindByWebhook(ctx, webhookURL)
	if errors.Is(err, store.ErrNotFound) {
		return res, &RequestError{Err: ErrNotFound, WebhookURL: webhookURL}
	}
	if err != nil {
		return res, storeError("look up subscription", err)
	}

	res.Success = true
	res.UserKey = sub.UserKey
	res.ChannelIDs = sub.ChannelIDs
	res.CreatedAt = &sub.CreatedAt
	res.Timestamp = &sub.Timestamp
	callback := r.CallbackURL(sub.UserKey)
	res.CallbackURL = callback
	res.Channels = hub.Each(ctx, sub.ChannelIDs, func(ctx context.Context, id string) hub.Status {
		return r.hub.FetchStatus(ctx, id, callback)
	})
	return res, nil
}

type RenewResult struct {
	Success    bool         `json:"success"`
	UserKey    string       `json:"userKey"`
	WebhookURL string       `json:"webhookUrl"`
	HubResults []hub.Result `json:"hubResults"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Renew resubscribes every channel of the record stored under userKey to extend
// its hub lease. Counterparts are renewed through their own records.
func (r *Reconciler) Renew(ctx context.Context, userKey string) (RenewResult, error) {
	res := RenewResult{UserKey: userKey}

	sub, err := r.store.FindByKey(ctx, userKey)
	if errors.Is(err, store.ErrNotFound) {
		return res, &RequestError{Err: ErrNotFound}
	}
	if err != nil {
		return res, storeError("look up subscription", err)
	}
	res.WebhookURL = sub.WebhookURL

	callback := r.CallbackURL(userKey)
	res.HubResults = hub.Each(ctx, sub.ChannelIDs, func(ctx context.Context, id string) hub.Result {
		return r.hub.Subscribe(ctx, id, callback, r.lease)
	})
	res.Warnings = hubWarnings("renew", res.HubResults)

	// Re-read so channels changed while the hub calls ran are kept.
	latest, err := r.store.FindByKey(ctx, userKey)
	if errors.Is(err, store.ErrNotFound) {
		return res, &RequestError{Err: ErrNotFound}
	}
	if err != nil {
		return res, storeError("look up subscription", err)
	}
	latest.Timestamp = r.now()
	if err := r.store.UpdateByKey(ctx, userKey, latest); err != nil {
		return res, storeError("update subscription", err)
	}
	res.Success = true

	log.Info().
		Str("user_key", userKey).
		Int("channels", len(sub.ChannelIDs)).
		Int("hub_failures", len(res.Warnings)).
		Msg("subscription renewed")
	return res, nil
}

// List returns every stored record in creation order.
func (r *Reconciler) List(ctx context.Context) ([]models.Subscription, error) {
	subs, err := r.store.List(ctx)
	if err != nil {
		return nil, storeError("list subscriptions", err)
	}
	return subs, nil
}
