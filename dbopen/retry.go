package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	maxAttempts = 3
	backoffStep = 100 * time.Millisecond
)

// IsBusy reports whether err indicates an SQLite BUSY condition.
// It checks for SQLITE_BUSY, "database is locked", and "database table is locked".
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withRetry runs fn up to maxAttempts times, backing off 100/200/300 ms when
// fn fails with a BUSY error. Any other error returns immediately.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := range maxAttempts {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsBusy(err) || i == maxAttempts-1 {
			return err
		}
		if serr := sleepCtx(ctx, time.Duration(i+1)*backoffStep); serr != nil {
			return fmt.Errorf("dbopen: %s: context cancelled during retry: %w", op, serr)
		}
	}
	return err
}

// RunTx executes fn inside a transaction, retrying the whole transaction on
// SQLITE_BUSY. fn must be safe to call more than once.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withRetry(ctx, "RunTx", func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec executes a single statement with automatic retry on SQLITE_BUSY.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withRetry(ctx, "Exec", func() error {
		var eerr error
		res, eerr = db.ExecContext(ctx, query, args...)
		return eerr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
