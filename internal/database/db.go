// Package database provides the SQLite connection pool, per-task
// connections, a typed-placeholder query binder with row cursors, and a
// small key-value store built on top of it.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/pollbot/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

const (
	defaultMaxOpenConns = 16
	defaultBusyTimeout  = 5 * time.Second
)

// DB is the process-wide connection pool. Request tasks never share a
// connection: each one takes its own Conn from the pool.
type DB struct {
	db     *sqlx.DB
	clock  clockwork.Clock
	logger *slog.Logger
}

type options struct {
	schema       string
	clock        clockwork.Clock
	logger       *slog.Logger
	maxOpenConns int
	busyTimeout  time.Duration
}

// Option configures Open.
type Option func(*options)

// WithSchema adds application DDL executed after the embedded migrations.
func WithSchema(ddl string) Option {
	return func(o *options) { o.schema = ddl }
}

// WithClock sets the clock used for key expiry.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used by the pool and its connections.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxOpenConns bounds the number of simultaneously open connections.
func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

// WithBusyTimeout sets how long a connection waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// Open connects to the SQLite database at path, applies migrations and
// the optional application schema.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	o := options{
		clock:        clockwork.NewRealClock(),
		maxOpenConns: defaultMaxOpenConns,
		busyTimeout:  defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", buildDSN(path, o.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := ApplyMigrations(db.DB, ExtractDBNameFromPath(path)); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	if o.schema != "" {
		if _, err := db.ExecContext(ctx, o.schema); err != nil {
			closeQuietly(db)
			return nil, fmt.Errorf("failed to apply application schema: %w", err)
		}
	}

	o.logger.Info("Database connected and migrations applied successfully", "path", path)
	return &DB{
		db:     db,
		clock:  o.clock,
		logger: o.logger.With("component", "database"),
	}, nil
}

// Conn takes a dedicated connection from the pool. The caller must Close it.
func (d *DB) Conn(ctx context.Context) (*Conn, error) {
	c, err := d.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Conn{conn: c, clock: d.clock, logger: d.logger}, nil
}

// Ping checks the database connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the pool.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		d.logger.Error("Error closing database connection", "error", err)
		return err
	}
	d.logger.Info("Database connection closed successfully.")
	return nil
}

func closeQuietly(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		slog.Error("Error closing database after setup failure", "error", err)
	}
}

// buildDSN appends modernc pragmas to a file path. Every pooled connection
// runs them, so each task connection gets WAL and the busy timeout.
func buildDSN(path string, busyTimeout time.Duration) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=journal_mode(wal)",
		path, sep, busyTimeout.Milliseconds())
}

// ApplyMigrations runs database migrations using embedded files.
func ApplyMigrations(db *sql.DB, dbName string) error {
	if db == nil {
		return errors.New("database connection is nil, cannot apply migrations")
	}
	if dbName == "" {
		return errors.New("database name/path for migration driver is empty")
	}

	slog.Debug("Applying database migrations...", "database_name", dbName)

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create embed source driver instance: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{DatabaseName: dbName})
	if err != nil {
		return fmt.Errorf("failed to create sqlite database driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Debug("No database migrations to apply.")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	slog.Debug("Database migrations applied successfully.")
	return nil
}

// ExtractDBNameFromPath extracts the database file path from a possibly URL-formatted path.
func ExtractDBNameFromPath(path string) string {
	path = strings.TrimPrefix(path, "file:")

	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}

	if decoded, err := url.PathUnescape(path); err == nil {
		return decoded
	}
	return path
}
