// Package pgstore provides a durable.Backend on a PostgreSQL table.
//
// Every collection lives in one table keyed by (collection, key) with a
// JSONB value. Read-write transactions run at serializable isolation and
// are retried on serialization failures. A writable store holds a session
// advisory lock derived from the table name for as long as it is open, so
// at most one writer bootstraps a given catalog at a time.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vsayer/materialize/internal/durable"
	"github.com/vsayer/materialize/internal/logging"
	"github.com/vsayer/materialize/internal/retry"
	"github.com/vsayer/materialize/pkg/catalog"
)

// DefaultTable holds the catalog when Config.Table is empty.
const DefaultTable = "catalog_collections"

// ErrLocked is returned when another writable session holds the catalog.
var ErrLocked = errors.New("catalog is locked by another session")

// Config configures Open.
type Config struct {
	ConnString     string
	Table          string
	ConnectTimeout time.Duration

	// ReadOnly skips table creation and the session lock.
	ReadOnly bool

	// Auth authenticates against managed PostgreSQL with cloud IAM.
	Auth Auth

	// Backoff spaces connection and serialization retries. Defaults to the
	// catalog retry constants.
	Backoff catalog.BackoffStrategy

	Logger catalog.Logger
}

// Store is a durable.Backend on PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	lock    *pgxpool.Conn
	release func() // frees auth resources after the pool closes
	table   string
	ident   string
	retry   *retry.Executor
	logger  catalog.Logger
}

var _ durable.Backend = (*Store)(nil)

// Open connects, retrying transient failures, and prepares the table.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("%w: connection string is required", catalog.ErrInvalidConfig)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNullLogger()
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = retry.NewBackoff(catalog.DefaultRetryMaxAttempts)
	}
	logger := cfg.Logger
	executor := retry.NewExecutor(retry.PostgresClassifier{}, backoff).
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Warn("catalog store attempt %d failed, retrying in %s: %v", attempt+1, delay, err)
		})

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse connection string: %v", catalog.ErrInvalidConfig, err)
	}
	configurePool(poolConfig, cfg)
	release, err := applyAuth(ctx, poolConfig, cfg.Auth, logger)
	if err != nil {
		return nil, err
	}
	if m := cfg.Auth.Method; m != "" && m != AuthPassword {
		logger.Verbose("Authenticating catalog connections with %s", m)
	}
	conn := poolConfig.ConnConfig

	var pool *pgxpool.Pool
	err = executor.Execute(ctx, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		release()
		return nil, wrapConnectionError(err, conn.Host, conn.Port, conn.Database)
	}

	s := &Store{
		pool:    pool,
		release: release,
		table:   cfg.Table,
		ident:   pgx.Identifier{cfg.Table}.Sanitize(),
		retry:   executor,
		logger:  logger,
	}
	if cfg.ReadOnly {
		return s, nil
	}
	if err := s.prepare(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepare(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection TEXT NOT NULL,
	key TEXT NOT NULL,
	value JSONB NOT NULL,
	PRIMARY KEY (collection, key)
)`, s.ident)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", catalog.ErrConnectionFailed, err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", s.table).Scan(&locked); err != nil {
		conn.Release()
		return fmt.Errorf("failed to lock %s: %w", s.table, err)
	}
	if !locked {
		conn.Release()
		return fmt.Errorf("%s: %w", s.table, ErrLocked)
	}
	s.lock = conn
	s.logger.Verbose("Locked catalog table %s", s.table)
	return nil
}

func (s *Store) View(ctx context.Context, fn func(durable.Reader) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return s.retry.Execute(ctx, func(ctx context.Context) error {
		return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
			return fn(&writer{store: s, tx: tx})
		})
	})
}

func (s *Store) Update(ctx context.Context, fn func(durable.Writer) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	return s.retry.Execute(ctx, func(ctx context.Context) error {
		return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
			w := &writer{store: s, tx: tx}
			if err := fn(w); err != nil {
				return err
			}
			return w.flush(ctx)
		})
	})
}

// Close releases the session lock and the pool.
func (s *Store) Close() error {
	if s.lock != nil {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultConnectTimeout)
		defer cancel()
		if _, err := s.lock.Exec(ctx, "SELECT pg_advisory_unlock(hashtext($1))", s.table); err != nil {
			s.logger.Warn("failed to unlock %s: %v", s.table, err)
		}
		s.lock.Release()
		s.lock = nil
	}
	s.pool.Close()
	s.release()
	return nil
}

// writer queues writes in a batch that is sent before the next read and at
// the end of the transaction.
type writer struct {
	store *Store
	tx    pgx.Tx
	batch pgx.Batch
}

func (w *writer) flush(ctx context.Context) error {
	if w.batch.Len() == 0 {
		return nil
	}
	err := w.tx.SendBatch(ctx, &w.batch).Close()
	w.batch = pgx.Batch{}
	return err
}

func (w *writer) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	if err := w.flush(ctx); err != nil {
		return nil, false, err
	}
	q := fmt.Sprintf("SELECT value FROM %s WHERE collection = $1 AND key = $2", w.store.ident)
	var raw []byte
	err := w.tx.QueryRow(ctx, q, collection, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (w *writer) Scan(ctx context.Context, collection string) ([]durable.Pair, error) {
	if err := w.flush(ctx); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT key, value FROM %s WHERE collection = $1 ORDER BY key COLLATE "C"`, w.store.ident)
	rows, err := w.tx.Query(ctx, q, collection)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (durable.Pair, error) {
		var p durable.Pair
		err := row.Scan(&p.Key, &p.Value)
		return p, err
	})
}

func (w *writer) Put(_ context.Context, collection, key string, value []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s (collection, key, value) VALUES ($1, $2, $3::jsonb)
ON CONFLICT (collection, key) DO UPDATE SET value = EXCLUDED.value`, w.store.ident)
	w.batch.Queue(q, collection, key, string(value))
	return nil
}

func (w *writer) Delete(_ context.Context, collection, key string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE collection = $1 AND key = $2", w.store.ident)
	w.batch.Queue(q, collection, key)
	return nil
}
