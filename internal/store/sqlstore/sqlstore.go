// Package sqlstore implements store.Store over database/sql for PostgreSQL
// (pgx) and SQLite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/store"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config describes how to reach the database.
type Config struct {
	// Driver is DriverPostgres or DriverSQLite.
	Driver string
	// DSN is a postgres URL or a SQLite file path.
	DSN string

	ConnectAttempts int
	ConnectDelay    time.Duration
	// TxAttempts bounds how often a unit of work is retried after a write
	// race (unique violation, serialization failure, busy database).
	TxAttempts int
}

// Store is a SQL-backed store.Store.
type Store struct {
	db         *sql.DB
	cfg        Config
	dialect    filter.Dialect
	logger     *slog.Logger
	txAttempts uint
}

// Open connects to the database, waiting for it to become reachable.
// Migrations are not applied; call Migrate.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectAttempts < 1 {
		cfg.ConnectAttempts = 1
	}
	if cfg.TxAttempts < 1 {
		cfg.TxAttempts = 5
	}

	db, dialect, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	logger = logger.With("component", "sqlstore", "driver", cfg.Driver)
	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(uint(cfg.ConnectAttempts)),
		retry.Delay(cfg.ConnectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("database not ready, retrying",
				"attempt", n+1,
				"max_attempts", cfg.ConnectAttempts,
				"delay", cfg.ConnectDelay,
				"error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", cfg.ConnectAttempts, err)
	}
	logger.Info("database connection established")

	return &Store{
		db:         db,
		cfg:        cfg,
		dialect:    dialect,
		logger:     logger,
		txAttempts: uint(cfg.TxAttempts),
	}, nil
}

func openDB(cfg Config) (*sql.DB, filter.Dialect, error) {
	switch cfg.Driver {
	case DriverPostgres:
		connConfig, err := pgx.ParseConfig(NormalizeURL(cfg.DSN))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse database URL: %w", err)
		}
		return stdlib.OpenDB(*connConfig), filter.Postgres, nil
	case DriverSQLite:
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", sqliteDSN(cfg.DSN))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// One writer at a time; SQLite would otherwise answer SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		return db, filter.SQLite, nil
	default:
		return nil, nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(filter.SQLiteFoldFunc, 1, fold)
}

// fold lower-cases text the way the in-memory store does, so searches
// match the same rows on both backends.
func fold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// NormalizeURL rewrites postgresql:// to postgres:// and defaults sslmode
// to disable.
func NormalizeURL(databaseURL string) string {
	if databaseURL == "" {
		return databaseURL
	}
	if rest, ok := strings.CutPrefix(databaseURL, "postgresql:"); ok {
		databaseURL = "postgres:" + rest
	}
	if !strings.Contains(databaseURL, "sslmode=") {
		separator := "?"
		if strings.Contains(databaseURL, "?") {
			separator = "&"
		}
		databaseURL = databaseURL + separator + "sslmode=disable"
	}
	return databaseURL
}

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() filter.Dialect { return s.dialect }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// Atomic runs fn in a database transaction and retries the whole unit when
// it loses a write race.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return retry.Do(
		func() error { return s.run(ctx, nil, fn) },
		retry.Context(ctx),
		retry.RetryIf(isRetryable),
		retry.Attempts(s.txAttempts),
		retry.Delay(10*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("unit of work lost a write race, retrying", "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
}

func (s *Store) Read(ctx context.Context, fn func(tx store.Tx) error) error {
	var opts *sql.TxOptions
	if s.dialect == filter.Postgres {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	return s.run(ctx, opts, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&sqlTx{tx: tx, d: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isRetryable reports whether err is a write race the unit of work can
// recover from by starting over.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503", // foreign_key_violation: a referenced entity was cleaned up
			"23505", // unique_violation
			"40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
		return false
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
