package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"yt-relay/internal/models"
	"yt-relay/internal/subscriptions"
	"yt-relay/pkg/tasks"
)

const renewMaxRetry = 5

// Renewer is implemented by *subscriptions.Reconciler.
type Renewer interface {
	List(ctx context.Context) ([]models.Subscription, error)
	Renew(ctx context.Context, userKey string) (subscriptions.RenewResult, error)
}

type TaskHandler struct {
	asynqClient tasks.TaskEnqueuer
	renewer     Renewer
}

func NewTaskHandler(client tasks.TaskEnqueuer, renewer Renewer) *TaskHandler {
	return &TaskHandler{asynqClient: client, renewer: renewer}
}

// HandleRenewAllTask fans out one renewal task per stored subscription.
func (h *TaskHandler) HandleRenewAllTask(ctx context.Context, t *asynq.Task) error {
	log.Info().Msg("renewing all subscriptions")

	subs, err := h.renewer.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	enqueued := 0
	for _, sub := range subs {
		task, err := tasks.NewRenewSubscriptionTask(sub.UserKey)
		if err != nil {
			log.Error().Err(err).Str("user_key", sub.UserKey).Msg("failed to create renew task")
			continue
		}

		if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(renewMaxRetry)); err != nil {
			log.Error().Err(err).Str("user_key", sub.UserKey).Msg("failed to enqueue renew task")
			continue
		}
		enqueued++
	}

	log.Info().Int("subscriptions", len(subs)).Int("enqueued", enqueued).Msg("finished enqueuing renewals")
	return nil
}

// HandleRenewSubscriptionTask resubscribes every channel of one record. The task
// is retried only when the hub rejected every channel.
func (h *TaskHandler) HandleRenewSubscriptionTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.RenewSubscriptionTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}

	res, err := h.renewer.Renew(ctx, p.UserKey)
	if errors.Is(err, subscriptions.ErrNotFound) {
		log.Info().Str("user_key", p.UserKey).Msg("subscription removed before renewal")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to renew subscription %s: %w", p.UserKey, err)
	}

	if len(res.HubResults) > 0 && len(res.Warnings) == len(res.HubResults) {
		return fmt.Errorf("hub rejected every channel of %s: %v", p.UserKey, res.Warnings)
	}
	for _, w := range res.Warnings {
		log.Warn().Str("user_key", p.UserKey).Msg(w)
	}
	return nil
}
