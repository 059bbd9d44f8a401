// Package config loads relay settings from the environment, an optional .env
// file and an optional relay.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	Port                 string
	BaseURL              string
	HubURL               string
	HubStatusURL         string
	HubLeaseSeconds      int
	HubRequestsPerSecond float64
	HTTPTimeout          time.Duration
	StoreBackend         string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	DatabaseURL          string
	MirrorWebhooks       bool
	VerifyTopics         bool
	HistorySize          int
	RenewSchedule        string
	LogLevel             string
	LogFormat            string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("base_url", "")
	v.SetDefault("hub_url", "https://pubsubhubbub.appspot.com/subscribe")
	v.SetDefault("hub_status_url", "https://pubsubhubbub.appspot.com/subscription-details")
	v.SetDefault("hub_lease_seconds", 864000)
	v.SetDefault("hub_requests_per_second", 5)
	v.SetDefault("http_timeout", "10s")
	v.SetDefault("store_backend", BackendRedis)
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("database_url", "")
	v.SetDefault("mirror_webhooks", true)
	v.SetDefault("verify_topics", false)
	v.SetDefault("history_size", 50)
	v.SetDefault("renew_schedule", "@every 24h")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads .env (if present), then relay.yaml from . or /etc/yt-relay (if
// present), with environment variables taking precedence over both.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetConfigName("relay")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/yt-relay")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Config{
		Port:                 v.GetString("port"),
		BaseURL:              strings.TrimRight(v.GetString("base_url"), "/"),
		HubURL:               v.GetString("hub_url"),
		HubStatusURL:         v.GetString("hub_status_url"),
		HubLeaseSeconds:      v.GetInt("hub_lease_seconds"),
		HubRequestsPerSecond: v.GetFloat64("hub_requests_per_second"),
		HTTPTimeout:          v.GetDuration("http_timeout"),
		StoreBackend:         strings.ToLower(v.GetString("store_backend")),
		RedisAddr:            v.GetString("redis_addr"),
		RedisPassword:        v.GetString("redis_password"),
		RedisDB:              v.GetInt("redis_db"),
		DatabaseURL:          v.GetString("database_url"),
		MirrorWebhooks:       v.GetBool("mirror_webhooks"),
		VerifyTopics:         v.GetBool("verify_topics"),
		HistorySize:          v.GetInt("history_size"),
		RenewSchedule:        v.GetString("renew_schedule"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendRedis, BackendMemory:
	case BackendPostgres, BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

// RequireBaseURL is checked by the processes that build hub callback URLs.
func (c Config) RequireBaseURL() error {
	if c.BaseURL == "" {
		return errors.New("BASE_URL is required")
	}
	return nil
}

func (c Config) RedisOptions() *redis.Options {
	return &redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

func (c Config) AsynqRedis() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// SetupLogging configures the global zerolog logger. Unknown levels fall back to info.
func SetupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
