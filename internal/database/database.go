// Package database opens the message log connection and keeps its schema
// current with embedded golang-migrate migrations. Postgres is the production
// backend; SQLite serves local runs and tests.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

//go:embed migrations
var migrations embed.FS

// Options controls connection retries; Postgres may still be starting when
// the relay boots in a compose stack.
type Options struct {
	Attempts int
	Backoff  time.Duration
}

func DefaultOptions() Options {
	return Options{Attempts: 10, Backoff: 2 * time.Second}
}

// Open connects and pings, retrying per opts.
func Open(ctx context.Context, driver, dsn string, opts Options) (*sql.DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			log.Printf("[db] connected driver=%s (attempt %d)", driver, attempt)
			return db, nil
		}

		log.Printf("[db] ping attempt %d/%d failed: %v", attempt, opts.Attempts, err)
		if attempt < opts.Attempts {
			select {
			case <-ctx.Done():
				db.Close()
				return nil, ctx.Err()
			case <-time.After(opts.Backoff):
			}
		}
	}

	db.Close()
	return nil, fmt.Errorf("database: connect after %d attempts: %w", opts.Attempts, err)
}

// Migrate applies all pending up migrations on a dedicated connection. An
// up-to-date schema is not an error.
func Migrate(ctx context.Context, driver, dsn string) error {
	return withMigrator(ctx, driver, dsn, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("database: migrate up: %w", err)
		}

		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("database: migrate version: %w", err)
		}
		log.Printf("[db] schema at version %d (dirty=%v)", version, dirty)
		return nil
	})
}

// Rollback reverts steps migrations.
func Rollback(ctx context.Context, driver, dsn string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("database: rollback steps must be positive, got %d", steps)
	}
	return withMigrator(ctx, driver, dsn, func(m *migrate.Migrate) error {
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("database: migrate down: %w", err)
		}
		return nil
	})
}

func withMigrator(ctx context.Context, driver, dsn string, fn func(*migrate.Migrate) error) error {
	db, err := Open(ctx, driver, dsn, Options{Attempts: 1})
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("database: migration source: %w", err)
	}

	var target migratedb.Driver
	switch driver {
	case DriverPostgres:
		target, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		target, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		db.Close()
		return fmt.Errorf("database: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		db.Close()
		return fmt.Errorf("database: migrator: %w", err)
	}
	// closes db as well
	defer m.Close()

	return fn(m)
}
