// Package sqlite implements the comic store on an embedded SQLite file using
// modernc.org/sqlite and sqlx.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

const (
	// DriverName is the database/sql driver registered by modernc.org/sqlite.
	DriverName = "sqlite"
	// DefaultFileName is created inside the asset root when no path is configured.
	DefaultFileName = "metadata.db"

	savepoint = "comic_upsert"
)

// Config controls how the database file is opened.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store keeps one session transaction open across upserts and commits it in
// batches. All statements are serialized by mu.
type Store struct {
	db      *sqlx.DB
	logger  *zap.Logger
	mu      sync.Mutex
	tx      *sqlx.Tx
	pending int
}

// Open opens (or creates) the database and applies the schema.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("db.path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Open(DriverName, dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Debug("sqlite store ready", zap.String("path", cfg.Path))
	return &Store{db: db, logger: logger}, nil
}

func dsn(cfg Config) string {
	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + cfg.Path + "?" + q.Encode()
}

// ext returns the open session transaction, or the pool when none is open.
// Callers must hold mu.
func (s *Store) ext() sqlx.ExtContext {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) beginLocked(ctx context.Context) (*sqlx.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	// The session outlives any single request context.
	tx, err := s.db.BeginTxx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// RecordExists reports whether a row exists for date, including rows written
// earlier in this session and not yet committed.
func (s *Store) RecordExists(ctx context.Context, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exists bool
	if err := sqlx.GetContext(ctx, s.ext(), &exists, recordExistsSQL, date); err != nil {
		return false, fmt.Errorf("record exists %s: %w", date, err)
	}
	return exists, nil
}

// Upsert writes the record and links its tags inside a savepoint, so a
// failure leaves no partial tag set behind.
func (s *Store) Upsert(ctx context.Context, record comics.Record, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginLocked(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("upsert %s: savepoint: %w", record.Date, err)
	}
	if err := writeRecord(ctx, tx, record, tags); err != nil {
		if _, rbErr := tx.ExecContext(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		_, _ = tx.ExecContext(context.WithoutCancel(ctx), "RELEASE SAVEPOINT "+savepoint)
		return fmt.Errorf("upsert %s: %w", record.Date, err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("upsert %s: release savepoint: %w", record.Date, err)
	}
	s.pending++
	return nil
}

func writeRecord(ctx context.Context, tx *sqlx.Tx, record comics.Record, tags []string) error {
	if _, err := tx.ExecContext(ctx, upsertComicSQL, record.Date, record.ImagePath, record.Transcript); err != nil {
		return fmt.Errorf("write comic: %w", err)
	}
	for _, raw := range tags {
		name := comics.NormalizeTag(raw)
		if name == "" {
			continue
		}
		id, err := upsertTag(ctx, tx, name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, linkTagSQL, record.Date, id); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}

func upsertTag(ctx context.Context, q sqlx.QueryerContext, name string) (int64, error) {
	var id int64
	if err := sqlx.GetContext(ctx, q, &id, upsertTagSQL, name); err != nil {
		return 0, fmt.Errorf("upsert tag %q: %w", name, err)
	}
	return id, nil
}

// Commit flushes the session transaction. It is a no-op when nothing is open.
func (s *Store) Commit(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked()
}

func (s *Store) commitLocked() error {
	if s.tx == nil {
		return nil
	}
	tx, pending := s.tx, s.pending
	s.tx, s.pending = nil, 0
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %d pending upserts: %w", pending, err)
	}
	s.logger.Debug("committed batch", zap.Int("upserts", pending))
	return nil
}

// Pending returns the number of upserts since the last commit.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Close commits outstanding work and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	commitErr := s.commitLocked()
	if err := s.db.Close(); err != nil {
		return errors.Join(commitErr, fmt.Errorf("close sqlite: %w", err))
	}
	return commitErr
}

var _ comics.Store = (*Store)(nil)

// isNoRows maps sql.ErrNoRows to comics.ErrNotFound.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
