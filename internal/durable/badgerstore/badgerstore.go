// Package badgerstore provides an embedded durable.Backend on BadgerDB.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/vsayer/materialize/internal/durable"
	"github.com/vsayer/materialize/internal/retry"
	"github.com/vsayer/materialize/pkg/catalog"
)

// Config configures the database.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory; the data is gone on Close.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// ConflictRetries bounds how often a conflicting update is re-run.
	ConflictRetries int

	// Logger receives badger's own log output. Nil silences it.
	Logger catalog.Logger
}

// DefaultConfig returns the configuration for an on-disk catalog at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		SyncWrites:      true,
		ConflictRetries: catalog.DefaultRetryMaxAttempts,
	}
}

// InMemoryConfig returns the configuration used by tests.
func InMemoryConfig() Config {
	return Config{
		InMemory:        true,
		ConflictRetries: catalog.DefaultRetryMaxAttempts,
	}
}

type badgerLogger struct {
	logger catalog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Error(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warn(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Verbose(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Verbose(format, args...) }

// Store is a durable.Backend on one badger database.
type Store struct {
	db    *badger.DB
	retry *retry.Executor
}

var _ durable.Backend = (*Store)(nil)

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: badger path is required", catalog.ErrInvalidConfig)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create catalog directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger database: %v", catalog.ErrConnectionFailed, err)
	}
	return &Store{
		db:    db,
		retry: retry.NewExecutor(retry.BadgerClassifier{}, retry.NewBackoff(cfg.ConflictRetries)),
	}, nil
}

func (s *Store) View(ctx context.Context, fn func(durable.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error { return fn(reader{txn}) })
}

// Update runs fn in a read-write transaction, re-running it when the commit
// conflicts with a concurrent one.
func (s *Store) Update(ctx context.Context, fn func(durable.Writer) error) error {
	return s.retry.Execute(ctx, func(ctx context.Context) error {
		return s.db.Update(func(txn *badger.Txn) error { return fn(writer{reader{txn}}) })
	})
}

func (s *Store) Close() error { return s.db.Close() }

func encodeKey(collection, key string) []byte { return []byte(collection + "/" + key) }

type reader struct {
	txn *badger.Txn
}

func (r reader) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := r.txn.Get(encodeKey(collection, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r reader) Scan(ctx context.Context, collection string) ([]durable.Pair, error) {
	prefix := encodeKey(collection, "")
	it := r.txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
	defer it.Close()

	var out []durable.Pair
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, durable.Pair{Key: string(item.Key()[len(prefix):]), Value: v})
	}
	return out, nil
}

type writer struct {
	reader
}

func (w writer) Put(_ context.Context, collection, key string, value []byte) error {
	return w.txn.Set(encodeKey(collection, key), value)
}

func (w writer) Delete(_ context.Context, collection, key string) error {
	return w.txn.Delete(encodeKey(collection, key))
}
