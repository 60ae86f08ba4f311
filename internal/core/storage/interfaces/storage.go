package interfaces

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Txn.Get for absent keys.
var ErrNotFound = errors.New("key not found")

// Partition is a named key space inside a persistent key-value store.
// Every Update runs as one atomic read-modify-write transaction: either
// all of its writes become visible or none do.
type Partition interface {
	// Name returns the partition name.
	Name() string
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Txn) error) error
	// Update runs fn in a read-write transaction and commits it when fn
	// returns nil. Any error discards every write made by fn.
	Update(ctx context.Context, fn func(Txn) error) error
	// Close releases the underlying store.
	Close() error
}

// Txn is the view of a partition inside one transaction. Keys are
// relative to the partition.
type Txn interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}
