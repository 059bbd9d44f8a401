package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog/log"

	"yt-relay/internal/models"
)

const subscriptionColumns = "user_key, webhook_url, channel_ids, created_at, updated_at"

// SQLStore keeps one row per subscription. Works with the postgres and sqlite3 drivers.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ConnectSQL opens and pings a database, then makes sure the schema exists.
func ConnectSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := NewSQLStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("driver", driver).Msg("database connection established")
	return s, nil
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	user_key    TEXT PRIMARY KEY,
	webhook_url TEXT NOT NULL UNIQUE,
	channel_ids TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create subscriptions table: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) List(ctx context.Context) ([]models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY created_at, user_key`
	subs := []models.Subscription{}
	if err := s.db.SelectContext(ctx, &subs, query); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SQLStore) Save(ctx context.Context, subs []models.Subscription) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return fmt.Errorf("failed to clear subscriptions: %w", err)
	}
	for _, sub := range subs {
		if err = insert(ctx, tx, sub); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Add(ctx context.Context, sub models.Subscription) error {
	return insert(ctx, s.db, sub)
}

func insert(ctx context.Context, ex sqlx.ExecerContext, sub models.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := ex.ExecContext(ctx, query, sub.UserKey, sub.WebhookURL, sub.ChannelIDs, sub.CreatedAt, sub.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert subscription %s: %w", sub.UserKey, err)
	}
	return nil
}

func (s *SQLStore) UpdateByKey(ctx context.Context, userKey string, sub models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET webhook_url = $1, channel_ids = $2, updated_at = $3
		WHERE user_key = $4
	`
	res, err := s.db.ExecContext(ctx, query, sub.WebhookURL, sub.ChannelIDs, sub.Timestamp, userKey)
	if err != nil {
		return fmt.Errorf("failed to update subscription %s: %w", userKey, err)
	}
	return requireRow(res)
}

func (s *SQLStore) Delete(ctx context.Context, userKey string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_key = $1`, userKey)
	if err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", userKey, err)
	}
	return requireRow(res)
}

func (s *SQLStore) FindByWebhook(ctx context.Context, webhookURL string) (models.Subscription, error) {
	return s.get(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE webhook_url = $1`, webhookURL)
}

func (s *SQLStore) FindByKey(ctx context.Context, userKey string) (models.Subscription, error) {
	return s.get(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_key = $1`, userKey)
}

func (s *SQLStore) get(ctx context.Context, query string, arg string) (models.Subscription, error) {
	sub := models.Subscription{}
	err := s.db.GetContext(ctx, &sub, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, ErrNotFound
	}
	if err != nil {
		return models.Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
