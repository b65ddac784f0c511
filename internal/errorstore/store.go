// Package errorstore is the collector's durable archive of reported errors,
// grouped by fingerprint and kept in SQLite.
package errorstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"faultline-go/internal/monitoring"
	"faultline-go/internal/monitoring/tracing"
	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const busyTimeoutMS = 5000

// ErrNotFound is returned when no entry has the requested id.
var ErrNotFound = errors.New("errorstore: entry not found")

// Options configures Open.
type Options struct {
	// Path of the database file, or ":memory:".
	Path string
	// RetentionDays is how long entries are kept after their last
	// occurrence. Zero keeps them forever.
	RetentionDays int
	// SlowThreshold logs operations slower than this.
	SlowThreshold time.Duration
	Now           func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	db   *sql.DB
	opts Options
	slow *monitoring.SlowQueryLogger
}

// Open creates or opens the archive and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("errorstore: path is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = 200 * time.Millisecond
	}
	if opts.Path != ":memory:" && !strings.HasPrefix(opts.Path, "file:") {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(opts.Path))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMS),
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if err := retryBusy(func() error {
			_, err := db.ExecContext(ctx, pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if err := retryBusy(func() error { return migrate(ctx, db) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}

	s := &Store{
		db:   db,
		opts: opts,
		slow: monitoring.NewSlowQueryLogger(opts.SlowThreshold, 100),
	}
	if _, err := s.refreshUnresolved(ctx); err != nil {
		log.WithError(err).Warn("errorstore: unresolved gauge not initialised")
	}
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	// goose names the dialect sqlite3 whatever driver is registered.
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	return "file:" + path + "?mode=rwc"
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SlowQueries exposes the slow operation log.
func (s *Store) SlowQueries() *monitoring.SlowQueryLogger {
	return s.slow
}

// RetentionDays reports the configured retention.
func (s *Store) RetentionDays() int {
	return s.opts.RetentionDays
}

// do runs fn with tracing, metrics, slow-operation logging and busy retry.
func (s *Store) do(ctx context.Context, operation, details string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "errorstore", "errorstore."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("archive.operation", operation))

	err := s.slow.Track(ctx, operation, details, func() error {
		return retryBusy(func() error { return fn(ctx) })
	})

	result := monitoring.ResultLabel(err)
	if errors.Is(err, ErrNotFound) {
		result = "not_found"
	}
	monitoring.ArchiveOperations.WithLabelValues(operation, result).Inc()
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
