package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/andresuchdata/manifest-ingest/internal/config"
)

const (
	// maxConcurrentTx caps the transactions in flight on one pool.
	maxConcurrentTx = 10
	connectTimeout  = 10 * time.Second
)

//go:embed migrations/001_manifest_tracking.sql
var trackingSchema string

// DB is the run tracking pool.
type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

// NewDB opens the pool described by cfg and checks it is reachable.
func NewDB(cfg config.DatabaseConfig) (*DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to postgres %s:%s/%s: %w", cfg.Host, cfg.Port, cfg.DBName, err)
	}
	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Int("max_open_conns", cfg.MaxOpenConns).Msg("tracking database connected")

	return Wrap(db), nil
}

// Wrap adds transaction limiting to an existing pool.
func Wrap(db *sqlx.DB) *DB {
	return &DB{
		DB:  db,
		sem: semaphore.NewWeighted(maxConcurrentTx),
	}
}

// WithTx runs fn in a transaction, committing when it returns nil and
// rolling back on an error or a panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire transaction slot: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("rollback failed")
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Migrate creates the run tracking tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, trackingSchema); err != nil {
			return fmt.Errorf("apply tracking schema: %w", err)
		}
		log.Info().Msg("tracking schema applied")
		return nil
	})
}
