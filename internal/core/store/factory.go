package store

import (
	"context"
	"fmt"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/storage/badger"
	"github.com/zeusync/doublezero/internal/core/storage/interfaces"
	"github.com/zeusync/doublezero/internal/core/storage/memory"
)

// Kind selects the storage behind a store.
type Kind uint8

const (
	// KindPersistent stores are backed by BadgerDB on disk.
	KindPersistent Kind = iota
	// KindEphemeral stores live in process memory only.
	KindEphemeral
)

func (k Kind) String() string {
	switch k {
	case KindPersistent:
		return "persistent"
	case KindEphemeral:
		return "ephemeral"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// DefaultPartition is the partition stores share unless configured
// otherwise.
const DefaultPartition = "doublezero"

// Options configures a store created with New.
type Options struct {
	Name    string
	Initial any

	// Partition is the key space the store lives in.
	Partition string
	// Badger configures the database behind a KindPersistent store.
	Badger badger.Config

	Logger log.Log
}

// DefaultOptions returns options for a store called name.
func DefaultOptions(name string) Options {
	return Options{
		Name:      name,
		Partition: DefaultPartition,
		Badger:    badger.DefaultConfig(),
	}
}

// New opens a store that owns its storage. Closing the store closes it.
func New(ctx context.Context, kind Kind, opts Options) (*Store, error) {
	if opts.Partition == "" {
		opts.Partition = DefaultPartition
	}

	var (
		partition interfaces.Partition
		closer    interface{ Close() error }
	)
	switch kind {
	case KindPersistent:
		if opts.Badger.Logger == nil {
			opts.Badger.Logger = opts.Logger
		}
		db, err := badger.Open(opts.Badger)
		if err != nil {
			return nil, err
		}
		partition, closer = db.Partition(opts.Partition), db
	case KindEphemeral:
		p := memory.New(opts.Partition)
		partition, closer = p, p
	default:
		return nil, ErrUnknownKind
	}

	s, err := Open(ctx, partition, opts.Name, opts.Initial, opts.Logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	s.kind = kind
	s.closer = closer
	return s, nil
}

// Spec names one store for OpenAll.
type Spec struct {
	Name    string
	Initial any
}

// OpenAll opens every store in specs over one shared partition. On error
// nothing is returned; stores already opened need no cleanup since they
// do not own the partition.
func OpenAll(ctx context.Context, partition interfaces.Partition, specs []Spec, logger log.Log) (map[string]*Store, error) {
	stores := make(map[string]*Store, len(specs))
	for _, spec := range specs {
		if _, ok := stores[spec.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, spec.Name)
		}
		s, err := Open(ctx, partition, spec.Name, spec.Initial, logger)
		if err != nil {
			return nil, err
		}
		stores[spec.Name] = s
	}
	return stores, nil
}
