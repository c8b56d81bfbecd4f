package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
)

// TransactionWithRetry runs fn in a transaction, retrying with doubling
// backoff while SQLite reports the database busy or locked. Zero values
// select the defaults.
func (db *DB) TransactionWithRetry(ctx context.Context, maxAttempts int, baseBackoff time.Duration, fn func(*sql.Tx) error) error {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}
	if baseBackoff <= 0 {
		baseBackoff = defaultRetryBackoff
	}
	return retryBusy(ctx, db.logger, maxAttempts, baseBackoff, func() error {
		return db.Transaction(ctx, fn)
	})
}

func retryBusy(ctx context.Context, logger zerolog.Logger, maxAttempts int, backoff time.Duration, fn func() error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil || !isBusyError(err) || attempt >= maxAttempts {
			return err
		}
		logger.Debug().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("database busy, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

// sqliteCoder is implemented by *sqlite.Error.
type sqliteCoder interface {
	Code() int
}

// isBusyError reports whether err carries SQLITE_BUSY or SQLITE_LOCKED,
// including their extended codes.
func isBusyError(err error) bool {
	var coded sqliteCoder
	if !errors.As(err, &coded) {
		return false
	}
	switch coded.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	default:
		return false
	}
}
