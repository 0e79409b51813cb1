// Package postgres implements the comic store on Postgres via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type pool interface {
	querier
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store keeps one session transaction open across upserts and commits it in
// batches.
type Store struct {
	pool    pool
	logger  *zap.Logger
	mu      sync.Mutex
	tx      pgx.Tx
	pending int
}

// New connects to Postgres and applies the schema.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, logger: logger}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.pool
}

func (s *Store) beginLocked(ctx context.Context) (pgx.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.pool.Begin(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// RecordExists reports whether a row exists for date, including uncommitted
// rows from this session.
func (s *Store) RecordExists(ctx context.Context, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exists bool
	if err := s.q().QueryRow(ctx, recordExistsSQL, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("record exists %s: %w", date, err)
	}
	return exists, nil
}

// Upsert writes the record and its tag links inside a savepoint.
func (s *Store) Upsert(ctx context.Context, record comics.Record, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.beginLocked(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("upsert %s: savepoint: %w", record.Date, err)
	}
	if err := writeRecord(ctx, tx, record, tags); err != nil {
		if _, rbErr := tx.Exec(context.WithoutCancel(ctx), "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		return fmt.Errorf("upsert %s: %w", record.Date, err)
	}
	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("upsert %s: release savepoint: %w", record.Date, err)
	}
	s.pending++
	return nil
}

func writeRecord(ctx context.Context, q querier, record comics.Record, tags []string) error {
	if _, err := q.Exec(ctx, upsertComicSQL, record.Date, record.ImagePath, record.Transcript); err != nil {
		return fmt.Errorf("write comic: %w", err)
	}
	for _, raw := range tags {
		name := comics.NormalizeTag(raw)
		if name == "" {
			continue
		}
		id, err := upsertTag(ctx, q, name)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, linkTagSQL, record.Date, id); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}

func upsertTag(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	if err := q.QueryRow(ctx, upsertTagSQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert tag %q: %w", name, err)
	}
	return id, nil
}

// Commit flushes the session transaction.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx)
}

func (s *Store) commitLocked(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx, pending := s.tx, s.pending
	s.tx, s.pending = nil, 0
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("commit %d pending upserts: %w", pending, err)
	}
	s.logger.Debug("committed batch", zap.Int("upserts", pending))
	return nil
}

// Close commits outstanding work and closes the pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.commitLocked(context.Background())
	s.pool.Close()
	return err
}

var _ comics.Store = (*Store)(nil)
