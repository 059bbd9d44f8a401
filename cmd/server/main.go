package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"yt-relay/internal/config"
	"yt-relay/internal/handlers"
	"yt-relay/internal/history"
	"yt-relay/internal/hub"
	"yt-relay/internal/metrics"
	"yt-relay/internal/middleware"
	"yt-relay/internal/notify"
	"yt-relay/internal/store"
	"yt-relay/internal/subscriptions"
	"yt-relay/internal/webhook"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

// App wires the relay's components for one server process.
type App struct {
	cfg        config.Config
	store      store.Store
	history    history.Log
	reconciler *subscriptions.Reconciler
	forwarder  *notify.Forwarder
}

func NewApp(cfg config.Config, s store.Store, h history.Log, hubClient subscriptions.HubClient) *App {
	mirror := webhook.Mirror{Enabled: cfg.MirrorWebhooks}
	return &App{
		cfg:     cfg,
		store:   s,
		history: h,
		reconciler: subscriptions.New(subscriptions.Options{
			Store:        s,
			Hub:          hubClient,
			CallbackBase: cfg.BaseURL,
			LeaseSeconds: cfg.HubLeaseSeconds,
			Mirror:       mirror,
		}),
		forwarder: notify.New(notify.Options{
			Store:        s,
			Sender:       webhook.NewDispatcher(nil, cfg.HTTPTimeout),
			History:      h,
			Mirror:       mirror,
			VerifyTopics: cfg.VerifyTopics,
		}),
	}
}

func (a *App) routes() http.Handler {
	r := mux.NewRouter()
	handlers.New(a.reconciler, a.forwarder, a.store, a.history, a.cfg.BaseURL).Register(r)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.Use(middleware.RequestID, middleware.AccessLog, middleware.Recover)
	return r
}

func newHubClient(cfg config.Config) *hub.Client {
	var limiter *rate.Limiter
	if cfg.HubRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HubRequestsPerSecond), 1)
	}
	return hub.NewClient(hub.Options{
		HubURL:       cfg.HubURL,
		StatusURL:    cfg.HubStatusURL,
		LeaseSeconds: cfg.HubLeaseSeconds,
		Timeout:      cfg.HTTPTimeout,
		Limiter:      limiter,
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequireBaseURL(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer backend.Close()

	var deliveries history.Log = history.NewMemoryLog(cfg.HistorySize)
	if backend.Redis != nil {
		deliveries = history.NewRedisLog(backend.Redis, cfg.HistorySize)
	}

	app := NewApp(cfg, backend, deliveries, newHubClient(cfg))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("commit", CommitSHA).Msg("starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}
