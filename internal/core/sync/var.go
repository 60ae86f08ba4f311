// Package sync provides the observable value a store exposes to the
// application.
package sync

import (
	sc "sync"

	"github.com/google/uuid"
)

// Value is the observable capability a store needs: read the current
// value, replace it, and be told when it changes.
type Value[T any] interface {
	Get() T
	Set(value T)
	Version() uint64
	Subscribe(onChange func(T)) *Subscription
}

var _ Value[int] = (*Var[int])(nil)

// Var holds a value and notifies subscribers synchronously, in
// subscription order, each time it is set.
type Var[T any] struct {
	notifyMu sc.Mutex

	mu          sc.RWMutex
	value       T
	version     uint64
	subscribers []*subscriber[T]
}

type subscriber[T any] struct {
	id       uuid.UUID
	onChange func(T)
}

func NewVar[T any](initialValue T) *Var[T] {
	return &Var[T]{value: initialValue}
}

func (v *Var[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Version counts how many times the value has been set.
func (v *Var[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Set replaces the value and runs every subscriber before returning.
// Subscribers must not call Set on the same Var.
func (v *Var[T]) Set(value T) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	v.value = value
	v.version++
	subscribers := make([]*subscriber[T], len(v.subscribers))
	copy(subscribers, v.subscribers)
	v.mu.Unlock()

	for _, s := range subscribers {
		s.onChange(value)
	}
}

// Subscribe registers onChange for every later Set.
func (v *Var[T]) Subscribe(onChange func(T)) *Subscription {
	s := &subscriber[T]{id: uuid.New(), onChange: onChange}

	v.mu.Lock()
	v.subscribers = append(v.subscribers, s)
	v.mu.Unlock()

	return &Subscription{id: s.id, cancel: func() { v.unsubscribe(s.id) }}
}

// Subscribers returns the number of active subscriptions.
func (v *Var[T]) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subscribers)
}

func (v *Var[T]) unsubscribe(id uuid.UUID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, s := range v.subscribers {
		if s.id == id {
			v.subscribers = append(v.subscribers[:i:i], v.subscribers[i+1:]...)
			return
		}
	}
}

// Subscription is the handle returned by Var.Subscribe.
type Subscription struct {
	id     uuid.UUID
	once   sc.Once
	cancel func()
}

func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Cancel stops notifications. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}
