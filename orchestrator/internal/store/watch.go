package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// WatchOptions tunes Watch.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 500ms.
	Interval time.Duration
	// Debounce is the quiet period after a change before fn runs. Further
	// changes inside the window restart it. 0 fires immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watch polls PRAGMA data_version and calls fn after the database was
// written by another connection. It blocks until ctx is cancelled.
//
// data_version is per connection, so the poll holds one dedicated
// connection for its whole life. Watch refuses in-memory stores, whose
// single connection it would starve.
//
// If fn returns an error the version is not advanced and fn runs again on
// the next poll.
func (s *Store) Watch(ctx context.Context, opts WatchOptions, fn func(context.Context) error) error {
	if s.memory {
		return fmt.Errorf("store: watch: in-memory database")
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("store: watch: conn: %w", err)
	}
	defer conn.Close()

	seen, err := dataVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("store: watch: initial version: %w", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	fire := func(v int64) {
		if err := fn(ctx); err != nil {
			log.Error("store: watch: reload failed", "error", err, "version", v)
			return
		}
		seen = v
		log.Debug("store: watch: reloaded", "version", v)
	}

	log.Info("store: watch started", "interval", opts.Interval, "debounce", opts.Debounce)
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			log.Info("store: watch stopped")
			return nil

		case <-ticker.C:
			cur, err := dataVersion(ctx, conn)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Warn("store: watch: version check failed", "error", err)
				continue
			}
			if cur == seen || cur == pending {
				continue
			}
			pending = cur
			if opts.Debounce <= 0 {
				fire(pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(opts.Debounce)
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				fire(pending)
				pending = -1
			}
		}
	}
}

func dataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var v int64
	err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}
