// Package database opens the MariaDB pool and the Redis client used across
// Geek Console. Connections are established once at startup and handed to
// the application root; this package owns open, pool tuning, readiness
// retries, and nothing else.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Registers the "mysql" driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/geekconsole/geekconsole/internal/config"
)

// Readiness retry parameters. A compose cold-start can have the app
// container up seconds before MariaDB accepts connections.
const (
	pingAttempts   = 10
	pingTimeout    = 5 * time.Second
	maxPingBackoff = 30 * time.Second
)

// NewMariaDB opens a connection pool and waits for the server to become
// reachable, retrying with exponential backoff. The returned pool is ready
// for queries.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	backoff := time.Second
	var pingErr error

	for attempt := 1; attempt <= pingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		pingErr = db.PingContext(pingCtx)
		cancel()

		if pingErr == nil {
			return db, nil
		}
		if attempt == pingAttempts || ctx.Err() != nil {
			break
		}

		slog.Warn("mariadb not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", pingErr),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		}
		backoff = min(backoff*2, maxPingBackoff)
	}

	db.Close()
	return nil, fmt.Errorf("pinging mariadb after %d attempts: %w", pingAttempts, pingErr)
}
