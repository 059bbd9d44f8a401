package main

import (
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"yt-relay/internal/config"
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

	scheduler := asynq.NewScheduler(
		cfg.AsynqRedis(),
		&asynq.SchedulerOpts{},
	)

	task, err := tasks.NewRenewAllTask()
	if err != nil {
		log.Fatal().Err(err).Msg("could not create task")
	}

	entryID, err := scheduler.Register(cfg.RenewSchedule, task)
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RenewSchedule).Msg("could not register task")
	}

	log.Info().Str("entry", entryID).Str("schedule", cfg.RenewSchedule).Str("commit", CommitSHA).Msg("scheduler starting")
	if err := scheduler.Run(); err != nil {
		log.Fatal().Err(err).Msg("could not run scheduler")
	}
}
