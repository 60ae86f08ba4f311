// Package store implements the local reactive document store. Every
// mutation is diffed against the committed document, persisted as one
// patch-log entry plus a snapshot merge, and only then published to
// subscribers.
package store

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/zeusync/doublezero/internal/core/document"
	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/patch"
	"github.com/zeusync/doublezero/internal/core/patchlog"
	"github.com/zeusync/doublezero/internal/core/storage/interfaces"
	zsync "github.com/zeusync/doublezero/internal/core/sync"
)

// UpdateFunc computes the next document from a private copy of the
// committed one.
type UpdateFunc func(old document.Document) (document.Document, error)

// State is the commit state of a store.
type State int32

const (
	StateIdle State = iota
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCommitting:
		return "committing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Subscription is the handle returned by Store.Subscribe.
type Subscription = zsync.Subscription

// Store is one named, persisted, observable document.
type Store struct {
	name   string
	kind   Kind
	log    *patchlog.Log
	value  zsync.Value[document.Document]
	logger log.Log

	// slot admits one commit at a time.
	slot   chan struct{}
	state  atomic.Int32
	closed atomic.Bool
	closer io.Closer
}

// Open loads the store called name from partition. When nothing is
// persisted yet the store starts at initial, and a non-empty initial
// value is committed so the log replays to it.
func Open(ctx context.Context, partition interfaces.Partition, name string, initial any, logger log.Log) (*Store, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Store{
		name:   name,
		kind:   KindPersistent,
		log:    patchlog.New(partition, name),
		logger: logger.With(log.String("component", "store"), log.String("store", name)),
		slot:   make(chan struct{}, 1),
	}

	snapshot, found, err := s.log.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", name, err)
	}
	if found {
		s.value = zsync.NewVar(snapshot)
		s.logger.Debug("store loaded from snapshot")
		return s, nil
	}

	start, err := normalizeInitial(initial)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", name, err)
	}
	s.value = zsync.NewVar(document.Empty())
	if err = s.commit(ctx, start); err != nil {
		return nil, err
	}
	s.logger.Debug("store created", log.Bool("seeded", !document.IsEmpty(start)))
	return s, nil
}

func normalizeInitial(initial any) (document.Document, error) {
	if initial == nil {
		return document.Empty(), nil
	}
	return document.Normalize(initial)
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Kind() Kind {
	return s.kind
}

// Log returns the persisted history of the store.
func (s *Store) Log() *patchlog.Log {
	return s.log
}

func (s *Store) State() State {
	return State(s.state.Load())
}

// Read returns a copy of the committed document.
func (s *Store) Read() document.Document {
	return document.Clone(s.value.Get())
}

// Version counts committed mutations since the store was opened.
func (s *Store) Version() uint64 {
	return s.value.Version()
}

// Subscribe calls onChange with a copy of every newly committed document.
func (s *Store) Subscribe(onChange func(document.Document)) *Subscription {
	return s.value.Subscribe(func(doc document.Document) {
		onChange(document.Clone(doc))
	})
}

// Mutate runs fn against the committed document and commits the result.
// Calls are serialized; a caller waiting for its turn gives up when ctx
// is done. Errors from fn are returned unchanged and leave the store
// untouched.
func (s *Store) Mutate(ctx context.Context, fn UpdateFunc) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	next, err := fn(document.Clone(s.value.Get()))
	if err != nil {
		return err
	}
	return s.commit(ctx, next)
}

// Set replaces the whole document.
func (s *Store) Set(ctx context.Context, doc any) error {
	return s.Mutate(ctx, func(document.Document) (document.Document, error) {
		return doc, nil
	})
}

// ApplyPatch applies a patch received from elsewhere through the normal
// commit path. An operation on a missing location yields
// *patch.InvalidPathError.
func (s *Store) ApplyPatch(ctx context.Context, p patch.Patch) error {
	if p.IsEmpty() {
		return nil
	}
	return s.Mutate(ctx, func(old document.Document) (document.Document, error) {
		return patch.Apply(old, p)
	})
}

// Close releases the storage the store owns. Stores opened over a shared
// partition leave it open.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *Store) acquire(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.closed.Load() {
		<-s.slot
		return ErrClosed
	}
	s.state.Store(int32(StateCommitting))
	return nil
}

func (s *Store) release() {
	s.state.Store(int32(StateIdle))
	<-s.slot
}

// commit must run while holding the slot.
func (s *Store) commit(ctx context.Context, next document.Document) error {
	normalized, err := document.Normalize(next)
	if err != nil {
		return err
	}

	p := patch.Diff(s.value.Get(), normalized)
	if p.IsEmpty() {
		return nil
	}

	if err = s.log.Commit(ctx, p); err != nil {
		s.logger.Warn("commit failed", log.Error(err), log.Int("operations", len(p)))
		return &PersistenceError{Store: s.name, Err: err}
	}

	s.value.Set(normalized)
	s.logger.Debug("committed", log.Int("operations", len(p)), log.Uint64("version", s.value.Version()))
	return nil
}
