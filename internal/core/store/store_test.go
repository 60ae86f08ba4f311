package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/doublezero/internal/core/document"
	"github.com/zeusync/doublezero/internal/core/patch"
	"github.com/zeusync/doublezero/internal/core/patchlog"
	"github.com/zeusync/doublezero/internal/core/storage/badger"
	"github.com/zeusync/doublezero/internal/core/storage/interfaces"
	"github.com/zeusync/doublezero/internal/core/storage/memory"
)

func newStore(t *testing.T, initial any) (*Store, *memory.Partition) {
	t.Helper()
	p := memory.New(DefaultPartition)
	s, err := Open(context.Background(), p, "counter", initial, nil)
	require.NoError(t, err)
	return s, p
}

func setCount(n float64) UpdateFunc {
	return func(document.Document) (document.Document, error) {
		return map[string]any{"count": n}, nil
	}
}

func increment(old document.Document) (document.Document, error) {
	m := old.(map[string]any)
	n, _ := m["count"].(float64)
	m["count"] = n + 1
	return m, nil
}

// failingPartition rejects every write transaction.
type failingPartition struct {
	interfaces.Partition
	err error
}

func (f *failingPartition) Update(context.Context, func(interfaces.Txn) error) error {
	return f.err
}

func TestMutate(t *testing.T) {
	ctx := context.Background()

	t.Run("first mutation of an empty store", func(t *testing.T) {
		s, _ := newStore(t, nil)
		require.NoError(t, s.Mutate(ctx, setCount(1)))

		patches, err := s.Log().ReadAll(ctx)
		require.NoError(t, err)
		require.Equal(t, []patch.Patch{{{Op: patch.OpAdd, Path: "/count", Value: 1.0}}}, patches)

		snapshot, found, err := s.Log().Snapshot(ctx)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, map[string]any{"count": 1.0}, snapshot)
		require.Equal(t, map[string]any{"count": 1.0}, s.Read())
	})

	t.Run("unchanged document is not committed", func(t *testing.T) {
		s, _ := newStore(t, nil)
		require.NoError(t, s.Mutate(ctx, setCount(1)))

		notified := 0
		s.Subscribe(func(document.Document) { notified++ })

		require.NoError(t, s.Mutate(ctx, setCount(1)))

		patches, err := s.Log().ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, patches, 1)
		require.Zero(t, notified)
		require.Equal(t, uint64(1), s.Version())
	})

	t.Run("structs and integers are normalized", func(t *testing.T) {
		s, _ := newStore(t, nil)
		type cursor struct {
			X int `json:"x"`
			Y int `json:"y"`
		}
		require.NoError(t, s.Mutate(ctx, func(document.Document) (document.Document, error) {
			return map[string]any{"A": cursor{X: 1, Y: 2}}, nil
		}))
		require.Equal(t, map[string]any{"A": map[string]any{"x": 1.0, "y": 2.0}}, s.Read())
	})

	t.Run("update function error leaves the store untouched", func(t *testing.T) {
		s, _ := newStore(t, map[string]any{"count": 1.0})
		boom := errors.New("boom")
		err := s.Mutate(ctx, func(old document.Document) (document.Document, error) {
			old.(map[string]any)["count"] = 99.0
			return nil, boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, map[string]any{"count": 1.0}, s.Read())
	})

	t.Run("update function receives a private copy", func(t *testing.T) {
		s, _ := newStore(t, map[string]any{"count": 1.0})
		read := s.Read()
		require.NoError(t, s.Mutate(ctx, increment))
		require.Equal(t, map[string]any{"count": 1.0}, read)
		require.Equal(t, map[string]any{"count": 2.0}, s.Read())
	})

	t.Run("replay reproduces every committed state", func(t *testing.T) {
		s, _ := newStore(t, nil)
		for _, fn := range []UpdateFunc{
			setCount(1),
			increment,
			func(old document.Document) (document.Document, error) {
				m := old.(map[string]any)
				m["tags"] = []any{"a", "b"}
				return m, nil
			},
			func(old document.Document) (document.Document, error) {
				m := old.(map[string]any)
				delete(m, "count")
				return m, nil
			},
		} {
			require.NoError(t, s.Mutate(ctx, fn))
			replayed, err := s.Log().Replay(ctx)
			require.NoError(t, err)
			require.Equal(t, s.Read(), replayed)
		}
	})
}

func TestConcurrentMutate(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, map[string]any{"count": 0.0})

	const writers = 40
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Mutate(ctx, increment))
		}()
	}
	wg.Wait()

	require.Equal(t, map[string]any{"count": float64(writers)}, s.Read())
	require.Equal(t, StateIdle, s.State())

	patches, err := s.Log().ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, patches, writers+1)
	require.NoError(t, s.Log().Verify(ctx))
}

func TestMutateWaitHonorsContext(t *testing.T) {
	s, _ := newStore(t, nil)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = s.Mutate(context.Background(), func(old document.Document) (document.Document, error) {
			close(entered)
			<-unblock
			return old, nil
		})
	}()
	<-entered
	require.Equal(t, StateCommitting, s.State())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Mutate(ctx, setCount(1))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(unblock)
	require.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, time.Millisecond)
}

func TestPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(DefaultPartition)
	s, err := Open(ctx, mem, "counter", map[string]any{"count": 1.0}, nil)
	require.NoError(t, err)

	boom := errors.New("disk full")
	s.log = patchlog.New(&failingPartition{Partition: mem, err: boom}, s.Name())

	notified := 0
	s.Subscribe(func(document.Document) { notified++ })

	err = s.Mutate(ctx, setCount(2))
	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "counter", persistErr.Store)

	require.Equal(t, map[string]any{"count": 1.0}, s.Read())
	require.Zero(t, notified)
	require.Equal(t, StateIdle, s.State())

	patches, err := s.Log().ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, patches, 1)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, nil)

	var seen []document.Document
	sub := s.Subscribe(func(doc document.Document) {
		// Only committed documents are published.
		snapshot, _, err := s.Log().Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, snapshot, doc)
		seen = append(seen, doc)
	})

	require.NoError(t, s.Mutate(ctx, setCount(1)))
	require.NoError(t, s.Mutate(ctx, setCount(2)))
	sub.Cancel()
	require.NoError(t, s.Mutate(ctx, setCount(3)))

	require.Equal(t, []document.Document{
		map[string]any{"count": 1.0},
		map[string]any{"count": 2.0},
	}, seen)
}

func TestApplyPatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, map[string]any{"A": map[string]any{"x": 1.0}})

	require.NoError(t, s.ApplyPatch(ctx, patch.Patch{
		{Op: patch.OpReplace, Path: "/A/x", Value: 2.0},
		{Op: patch.OpAdd, Path: "/B", Value: map[string]any{"x": 0.0}},
	}))
	require.Equal(t, map[string]any{
		"A": map[string]any{"x": 2.0},
		"B": map[string]any{"x": 0.0},
	}, s.Read())

	err := s.ApplyPatch(ctx, patch.Patch{{Op: patch.OpRemove, Path: "/missing"}})
	var pathErr *patch.InvalidPathError
	require.ErrorAs(t, err, &pathErr)
	require.Equal(t, document.Pointer("/missing"), pathErr.Path)
	require.NoError(t, s.Log().Verify(ctx))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("initial value is seeded into the log", func(t *testing.T) {
		s, _ := newStore(t, map[string]any{"count": 5})
		require.Equal(t, map[string]any{"count": 5.0}, s.Read())

		replayed, err := s.Log().Replay(ctx)
		require.NoError(t, err)
		require.Equal(t, s.Read(), replayed)
	})

	t.Run("persisted snapshot wins over the initial value", func(t *testing.T) {
		s, p := newStore(t, nil)
		require.NoError(t, s.Mutate(ctx, setCount(7)))

		reopened, err := Open(ctx, p, "counter", map[string]any{"count": 0}, nil)
		require.NoError(t, err)
		require.Equal(t, map[string]any{"count": 7.0}, reopened.Read())
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := Open(ctx, memory.New("x"), "", nil, nil)
		require.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("closed store rejects mutations", func(t *testing.T) {
		s, _ := newStore(t, nil)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
		require.ErrorIs(t, s.Mutate(ctx, setCount(1)), ErrClosed)
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("ephemeral", func(t *testing.T) {
		s, err := New(ctx, KindEphemeral, DefaultOptions("cursors"))
		require.NoError(t, err)
		defer s.Close()
		require.Equal(t, KindEphemeral, s.Kind())
		require.True(t, document.IsEmpty(s.Read()))
	})

	t.Run("persistent survives reopen", func(t *testing.T) {
		opts := DefaultOptions("counter")
		opts.Badger = badger.DefaultConfig()
		opts.Badger.Path = t.TempDir()
		opts.Badger.GCInterval = 0

		s, err := New(ctx, KindPersistent, opts)
		require.NoError(t, err)
		require.Equal(t, KindPersistent, s.Kind())
		require.NoError(t, s.Mutate(ctx, setCount(3)))
		require.NoError(t, s.Close())

		s, err = New(ctx, KindPersistent, opts)
		require.NoError(t, err)
		defer s.Close()
		require.Equal(t, map[string]any{"count": 3.0}, s.Read())
		require.NoError(t, s.Log().Verify(ctx))
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := New(ctx, Kind(42), DefaultOptions("x"))
		require.ErrorIs(t, err, ErrUnknownKind)
	})
}

func TestOpenAll(t *testing.T) {
	ctx := context.Background()
	p := memory.New(DefaultPartition)

	stores, err := OpenAll(ctx, p, []Spec{
		{Name: "counter", Initial: map[string]any{"count": 0}},
		{Name: "cursors"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, stores, 2)

	require.NoError(t, stores["counter"].Mutate(ctx, increment))
	require.True(t, document.IsEmpty(stores["cursors"].Read()))

	_, err = OpenAll(ctx, p, []Spec{{Name: "a"}, {Name: "a"}}, nil)
	require.ErrorIs(t, err, ErrDuplicateName)
}
