package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/skillswap-api/pkg/config"
)

// startupWait bounds how long NewPostgres retries the initial ping.
const startupWait = 30 * time.Second

// DSN renders the lib/pq connection string for cfg. Values are quoted so passwords
// containing spaces or quotes survive.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quote(cfg.Host),
		cfg.Port,
		quote(cfg.User),
		quote(cfg.Password),
		quote(cfg.Name),
		quote(cfg.SSLMode),
	)
}

func quote(v string) string {
	if v == "" {
		return "''"
	}
	for _, r := range v {
		if r == ' ' || r == '\'' || r == '\\' {
			escaped := make([]rune, 0, len(v)+2)
			for _, ch := range v {
				if ch == '\'' || ch == '\\' {
					escaped = append(escaped, '\\')
				}
				escaped = append(escaped, ch)
			}
			return "'" + string(escaped) + "'"
		}
	}
	return v
}

// Redacted renders the target database without credentials, for logs.
func Redacted(cfg config.DatabaseConfig) string {
	u := url.URL{Scheme: "postgres", User: url.User(cfg.User), Host: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Path: cfg.Name}
	return u.String()
}

// NewPostgres opens the pool and waits, with exponential backoff, for the database to answer.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = startupWait

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres %s unreachable: %w", Redacted(cfg), err)
	}

	return db, nil
}
