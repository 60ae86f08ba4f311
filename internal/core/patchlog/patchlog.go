// Package patchlog persists a store's history: the append-only sequence of
// committed patches next to the snapshot they fold into.
package patchlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zeusync/doublezero/internal/core/document"
	"github.com/zeusync/doublezero/internal/core/patch"
	"github.com/zeusync/doublezero/internal/core/storage/interfaces"
)

// ErrReplayMismatch is returned by Verify when folding the log over the
// empty document does not reproduce the snapshot.
var ErrReplayMismatch = errors.New("patch log replay does not match snapshot")

const (
	snapshotSuffix = "_d"
	logSuffix      = "_p"
)

// Log is the persisted history of one named store.
type Log struct {
	name      string
	partition interfaces.Partition
}

func New(partition interfaces.Partition, name string) *Log {
	return &Log{name: name, partition: partition}
}

func (l *Log) Name() string {
	return l.name
}

// SnapshotKey is the key holding the current committed document.
func (l *Log) SnapshotKey() string {
	return l.name + snapshotSuffix
}

// LogKey is the key holding the serialized patch sequence.
func (l *Log) LogKey() string {
	return l.name + logSuffix
}

// Append adds p to the end of the log inside txn. Empty patches are not
// recorded.
func (l *Log) Append(txn interfaces.Txn, p patch.Patch) error {
	if p.IsEmpty() {
		return nil
	}
	entries, err := l.readEntries(txn)
	if err != nil {
		return err
	}
	encoded, err := patch.Encode(p)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	raw, err := json.Marshal(append(entries, encoded))
	if err != nil {
		return fmt.Errorf("encode patch log: %w", err)
	}
	return txn.Put(l.LogKey(), raw)
}

// MergeSnapshot applies p to the persisted snapshot inside txn. An absent
// snapshot is the empty document.
func (l *Log) MergeSnapshot(txn interfaces.Txn, p patch.Patch) error {
	if p.IsEmpty() {
		return nil
	}
	current, err := txn.Get(l.SnapshotKey())
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		current = []byte("{}")
	case err != nil:
		return fmt.Errorf("read snapshot: %w", err)
	}
	merged, err := patch.ApplyJSON(current, p)
	if err != nil {
		return fmt.Errorf("merge snapshot: %w", err)
	}
	return txn.Put(l.SnapshotKey(), merged)
}

// Commit appends p and merges it into the snapshot in one transaction.
func (l *Log) Commit(ctx context.Context, p patch.Patch) error {
	if p.IsEmpty() {
		return nil
	}
	return l.partition.Update(ctx, func(txn interfaces.Txn) error {
		if err := l.Append(txn, p); err != nil {
			return err
		}
		return l.MergeSnapshot(txn, p)
	})
}

// ReadAll returns every recorded patch in commit order.
func (l *Log) ReadAll(ctx context.Context) ([]patch.Patch, error) {
	var out []patch.Patch
	err := l.partition.View(ctx, func(txn interfaces.Txn) error {
		entries, err := l.readEntries(txn)
		if err != nil {
			return err
		}
		out = make([]patch.Patch, 0, len(entries))
		for i, entry := range entries {
			p, err := patch.Decode(entry)
			if err != nil {
				return fmt.Errorf("patch log entry %d: %w", i, err)
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// Snapshot returns the persisted document and whether one exists.
func (l *Log) Snapshot(ctx context.Context) (document.Document, bool, error) {
	var (
		doc   document.Document
		found bool
	)
	err := l.partition.View(ctx, func(txn interfaces.Txn) error {
		raw, err := txn.Get(l.SnapshotKey())
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		doc, err = document.Unmarshal(raw)
		if err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		found = true
		return nil
	})
	return doc, found, err
}

// Replay folds the log over the empty document.
func (l *Log) Replay(ctx context.Context) (document.Document, error) {
	patches, err := l.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	doc := document.Empty()
	for i, p := range patches {
		doc, err = patch.Apply(doc, p)
		if err != nil {
			return nil, fmt.Errorf("replay patch %d: %w", i, err)
		}
	}
	return doc, nil
}

// Verify checks that replaying the log reproduces the snapshot.
func (l *Log) Verify(ctx context.Context) error {
	replayed, err := l.Replay(ctx)
	if err != nil {
		return err
	}
	snapshot, found, err := l.Snapshot(ctx)
	if err != nil {
		return err
	}
	if !found {
		snapshot = document.Empty()
	}
	if !document.Equal(replayed, snapshot) {
		return ErrReplayMismatch
	}
	return nil
}

// Compact replaces the log with the single patch that builds the current
// snapshot from the empty document.
func (l *Log) Compact(ctx context.Context) error {
	return l.partition.Update(ctx, func(txn interfaces.Txn) error {
		snapshot := document.Empty()
		raw, err := txn.Get(l.SnapshotKey())
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
		case err != nil:
			return err
		default:
			if snapshot, err = document.Unmarshal(raw); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
		}

		entries := []json.RawMessage{}
		if p := patch.Diff(document.Empty(), snapshot); !p.IsEmpty() {
			encoded, err := patch.Encode(p)
			if err != nil {
				return err
			}
			entries = append(entries, encoded)
		}
		compacted, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		return txn.Put(l.LogKey(), compacted)
	})
}

// Delete removes the snapshot and the log.
func (l *Log) Delete(ctx context.Context) error {
	return l.partition.Update(ctx, func(txn interfaces.Txn) error {
		if err := txn.Delete(l.SnapshotKey()); err != nil {
			return err
		}
		return txn.Delete(l.LogKey())
	})
}

func (l *Log) readEntries(txn interfaces.Txn) ([]json.RawMessage, error) {
	raw, err := txn.Get(l.LogKey())
	if errors.Is(err, interfaces.ErrNotFound) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read patch log: %w", err)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode patch log: %w", err)
	}
	return entries, nil
}
