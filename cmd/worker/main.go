package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"yt-relay/internal/config"
	"yt-relay/internal/hub"
	"yt-relay/internal/store"
	"yt-relay/internal/subscriptions"
	"yt-relay/internal/webhook"
	"yt-relay/internal/worker"
	"yt-relay/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequireBaseURL(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	backend, err := store.Open(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer backend.Close()

	var limiter *rate.Limiter
	if cfg.HubRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HubRequestsPerSecond), 1)
	}
	reconciler := subscriptions.New(subscriptions.Options{
		Store: backend,
		Hub: hub.NewClient(hub.Options{
			HubURL:       cfg.HubURL,
			StatusURL:    cfg.HubStatusURL,
			LeaseSeconds: cfg.HubLeaseSeconds,
			Timeout:      cfg.HTTPTimeout,
			Limiter:      limiter,
		}),
		CallbackBase: cfg.BaseURL,
		LeaseSeconds: cfg.HubLeaseSeconds,
		Mirror:       webhook.Mirror{Enabled: cfg.MirrorWebhooks},
	})

	client := asynq.NewClient(cfg.AsynqRedis())
	defer client.Close()

	srv := asynq.NewServer(
		cfg.AsynqRedis(),
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"default": 1,
			},
			// Exponential backoff: 1min, 2min, 4min... capped at 1h.
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Minute
				maxDelay := time.Hour
				for i := 0; i < n; i++ {
					delay *= 2
					if delay > maxDelay {
						delay = maxDelay
						break
					}
				}
				log.Warn().Err(err).Str("task", task.Type()).Int("attempt", n+1).Dur("retry_in", delay).Msg("task failed")
				return delay
			},
		},
	)

	mux := asynq.NewServeMux()
	taskHandler := worker.NewTaskHandler(client, reconciler)

	mux.HandleFunc(tasks.TypeRenewAll, taskHandler.HandleRenewAllTask)
	mux.HandleFunc(tasks.TypeRenewSubscription, taskHandler.HandleRenewSubscriptionTask)

	log.Info().Str("commit", CommitSHA).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("could not run server")
	}
}
