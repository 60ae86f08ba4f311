// Package badger provides the BadgerDB backed storage partition.
//
// All stores of a process share one BadgerDB instance; each partition is
// a key prefix inside it, so a commit touching the snapshot and the patch
// log of one store is a single Badger transaction.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/storage/interfaces"
)

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string `yaml:"path"`

	// InMemory keeps everything in RAM. Useful for tests and ephemeral stores.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites fsyncs every commit.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often value log garbage collection runs. 0 disables it.
	GCInterval time.Duration `yaml:"gc_interval"`

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64 `yaml:"gc_discard_ratio"`

	// Logger receives BadgerDB's internal log lines. Nil silences them.
	Logger log.Log `yaml:"-"`
}

// DefaultConfig returns durable production settings.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts log.Log to BadgerDB's Logger interface.
type badgerLogger struct {
	logger log.Log
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB wraps a BadgerDB instance with its GC lifecycle.
type DB struct {
	db     *badger.DB
	stopGC chan struct{}
	doneGC chan struct{}
	logger log.Log
}

// Open opens BadgerDB with cfg and starts value log GC when configured.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With(log.String("component", "badger"))})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	wrapped := &DB{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		wrapped.stopGC = make(chan struct{})
		wrapped.doneGC = make(chan struct{})
		go wrapped.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return wrapped, nil
}

// OpenInMemory opens an in-memory database.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

func (d *DB) runGC(interval time.Duration, ratio float64) {
	defer close(d.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when nothing needed collecting.
			if err := d.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && d.logger != nil {
				d.logger.Warn("badger value log GC failed", log.Error(err))
			}
		}
	}
}

// Partition returns the partition called name. Partitions are key
// prefixes, so any number of them can share one DB.
func (d *DB) Partition(name string) interfaces.Partition {
	return &partition{db: d, name: name, prefix: []byte(name + "/")}
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
		<-d.doneGC
		d.stopGC = nil
	}
	return d.db.Close()
}

var _ interfaces.Partition = (*partition)(nil)

type partition struct {
	db     *DB
	name   string
	prefix []byte
}

func (p *partition) Name() string {
	return p.name
}

func (p *partition) View(ctx context.Context, fn func(interfaces.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.db.View(func(txn *badger.Txn) error {
		return fn(&partitionTxn{txn: txn, prefix: p.prefix})
	})
}

func (p *partition) Update(ctx context.Context, fn func(interfaces.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.db.Update(func(txn *badger.Txn) error {
		return fn(&partitionTxn{txn: txn, prefix: p.prefix})
	})
}

// Close is a no-op; the DB owns the underlying handle.
func (p *partition) Close() error {
	return nil
}

type partitionTxn struct {
	txn    *badger.Txn
	prefix []byte
}

func (t *partitionTxn) key(k string) []byte {
	out := make([]byte, 0, len(t.prefix)+len(k))
	return append(append(out, t.prefix...), k...)
}

func (t *partitionTxn) Get(key string) ([]byte, error) {
	item, err := t.txn.Get(t.key(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *partitionTxn) Put(key string, value []byte) error {
	return t.txn.Set(t.key(key), value)
}

func (t *partitionTxn) Delete(key string) error {
	return t.txn.Delete(t.key(key))
}
