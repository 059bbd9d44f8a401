package subscriptions

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidChannelID  = errors.New("invalid channel ID format")
	ErrInvalidWebhookURL = errors.New("invalid webhook URL")
	// ErrNoChannels is returned when a request names no channels and does not ask for all of them.
	ErrNoChannels = errors.New("no channels specified")
	ErrNotFound   = errors.New("subscription not found")
	// ErrNoIntersection means none of the channels to unsubscribe are on the record.
	ErrNoIntersection = errors.New("none of the requested channels are subscribed")
	// ErrStore wraps every persistence failure. It is fatal to the operation.
	ErrStore = errors.New("subscription store failure")
)

// RequestError is a rejected request together with the values needed to diagnose it.
type RequestError struct {
	Err        error
	WebhookURL string
	// Invalid holds the offending channel IDs for ErrInvalidChannelID.
	Invalid []string
	// Requested and Current are set for ErrNoIntersection.
	Requested []string
	Current   []string
}

func (e *RequestError) Error() string {
	switch {
	case len(e.Invalid) > 0:
		return fmt.Sprintf("%s: %s", e.Err, strings.Join(e.Invalid, ", "))
	case errors.Is(e.Err, ErrNoIntersection):
		return fmt.Sprintf("%s: requested [%s], subscribed [%s]", e.Err,
			strings.Join(e.Requested, ", "), strings.Join(e.Current, ", "))
	case e.WebhookURL != "":
		return fmt.Sprintf("%s: %s", e.Err, e.WebhookURL)
	}
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrStore, op, err)
}
