package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// Open connects to Postgres and waits for it to answer, retrying with
// exponential backoff up to maxRetries times.
func Open(ctx context.Context, url string, maxRetries uint64, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := waitForDB(ctx, db, newBackOff(maxRetries), logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newBackOff(maxRetries uint64) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(bo, maxRetries)
}

func waitForDB(ctx context.Context, db pinger, bo backoff.BackOff, logger zerolog.Logger) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("database not ready")
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return errors.Wrapf(err, "database unreachable after %d attempts", attempt)
	}
	return nil
}
