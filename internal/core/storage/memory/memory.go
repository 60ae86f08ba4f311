// Package memory provides a process-local storage partition. Writes are
// buffered per transaction and published together on commit.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/zeusync/doublezero/internal/core/storage/interfaces"
)

var _ interfaces.Partition = (*Partition)(nil)

var errReadOnly = errors.New("write in read-only transaction")

// Partition is an in-memory interfaces.Partition.
type Partition struct {
	name string

	mu   sync.RWMutex
	data map[string][]byte
}

func New(name string) *Partition {
	return &Partition{
		name: name,
		data: make(map[string][]byte),
	}
}

func (p *Partition) Name() string {
	return p.name
}

func (p *Partition) View(ctx context.Context, fn func(interfaces.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fn(&txn{base: p.data, readOnly: true})
}

// Update holds the write lock for the whole transaction, so transactions
// on one partition never interleave.
func (p *Partition) Update(ctx context.Context, fn func(interfaces.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	t := &txn{base: p.data, writes: make(map[string][]byte), deletes: make(map[string]struct{})}
	if err := fn(t); err != nil {
		return err
	}
	for k := range t.deletes {
		delete(p.data, k)
	}
	for k, v := range t.writes {
		p.data[k] = v
	}
	return nil
}

func (p *Partition) Close() error {
	return nil
}

type txn struct {
	base     map[string][]byte
	writes   map[string][]byte
	deletes  map[string]struct{}
	readOnly bool
}

func (t *txn) Get(key string) ([]byte, error) {
	if !t.readOnly {
		if v, ok := t.writes[key]; ok {
			return clone(v), nil
		}
		if _, ok := t.deletes[key]; ok {
			return nil, interfaces.ErrNotFound
		}
	}
	v, ok := t.base[key]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return clone(v), nil
}

func (t *txn) Put(key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	delete(t.deletes, key)
	t.writes[key] = clone(value)
	return nil
}

func (t *txn) Delete(key string) error {
	if t.readOnly {
		return errReadOnly
	}
	delete(t.writes, key)
	t.deletes[key] = struct{}{}
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
