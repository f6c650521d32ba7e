// Package postgres implements the ledger ports on PostgreSQL through
// database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/infra/resilience"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Options configures the connection pool.
type Options struct {
	DSN            string
	MaxOpenConns   int
	ConnectRetries int
	ConnectBackoff time.Duration
}

// Open opens a pool and waits for the database to answer a ping,
// retrying with backoff while it starts up.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, errors.New("postgres: empty DSN")
	}

	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	attempt := 0
	err = resilience.RetryWithBackoff(ctx, resilience.Config{
		MaxRetries:     opts.ConnectRetries,
		InitialBackoff: opts.ConnectBackoff,
	}, func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("database not ready", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
