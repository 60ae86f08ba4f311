package sync

import (
	sc "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVar(t *testing.T) {
	t.Run("get and set", func(t *testing.T) {
		v := NewVar(1)
		require.Equal(t, 1, v.Get())
		require.Equal(t, uint64(0), v.Version())

		v.Set(2)
		require.Equal(t, 2, v.Get())
		require.Equal(t, uint64(1), v.Version())
	})

	t.Run("subscribers run in order", func(t *testing.T) {
		v := NewVar("a")
		var seen []string
		v.Subscribe(func(s string) { seen = append(seen, "first:"+s) })
		v.Subscribe(func(s string) { seen = append(seen, "second:"+s) })

		v.Set("b")
		require.Equal(t, []string{"first:b", "second:b"}, seen)
	})

	t.Run("cancel stops notifications", func(t *testing.T) {
		v := NewVar(0)
		calls := 0
		sub := v.Subscribe(func(int) { calls++ })
		other := v.Subscribe(func(int) {})
		assert.NotEqual(t, sub.ID(), other.ID())

		v.Set(1)
		sub.Cancel()
		sub.Cancel()
		v.Set(2)

		require.Equal(t, 1, calls)
		require.Equal(t, 1, v.Subscribers())
	})

	t.Run("subscriber may cancel itself", func(t *testing.T) {
		v := NewVar(0)
		calls := 0
		var sub *Subscription
		sub = v.Subscribe(func(int) {
			calls++
			sub.Cancel()
		})
		v.Set(1)
		v.Set(2)
		require.Equal(t, 1, calls)
	})

	t.Run("concurrent sets", func(t *testing.T) {
		v := NewVar(0)
		var (
			mu    sc.Mutex
			calls int
		)
		v.Subscribe(func(int) {
			mu.Lock()
			calls++
			mu.Unlock()
		})

		var wg sc.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v.Set(i)
			}(i)
		}
		wg.Wait()

		require.Equal(t, 50, calls)
		require.Equal(t, uint64(50), v.Version())
	})
}

func BenchmarkVarSet(b *testing.B) {
	v := NewVar(0)
	v.Subscribe(func(int) {})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		v.Set(i)
	}
}
