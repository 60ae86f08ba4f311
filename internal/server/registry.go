package server

import (
	"sync"
	"time"

	"github.com/zeusync/doublezero/internal/core/protocol"
)

// Session is one open pull stream. Frames are queued by the authority and
// written by the goroutine serving the stream.
type Session struct {
	ID          protocol.ConnectionID
	ConnectedAt time.Time

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	reason    error
}

func newSession(queueSize int) *Session {
	return &Session{
		ID:          protocol.GenerateConnectionID(),
		ConnectedAt: time.Now(),
		queue:       make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
}

// Frames delivers queued frames in commit order.
func (s *Session) Frames() <-chan []byte {
	return s.queue
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session was closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.reason
	default:
		return nil
	}
}

// enqueue never blocks. It reports false when the session is closed or
// its queue is full.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close(reason error) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

// Registry tracks open sessions. It is created by the process entry point
// and shared by reference; nothing reaches it through package state.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[protocol.ConnectionID]*Session
	queueSize int
	running   bool
}

func NewRegistry(queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultServerConfig().SessionQueueSize
	}
	return &Registry{queueSize: queueSize}
}

// Init makes the registry accept sessions.
func (r *Registry) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[protocol.ConnectionID]*Session)
	r.running = true
}

// Shutdown closes every session and rejects new ones.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.close(ErrServerClosed)
		delete(r.sessions, id)
	}
	r.running = false
}

// Open registers a new session.
func (r *Registry) Open() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil, ErrRegistryClosed
	}
	s := newSession(r.queueSize)
	r.sessions[s.ID] = s
	return s, nil
}

// Close unregisters s and closes it. Frames still queued are discarded.
func (r *Registry) Close(s *Session, reason error) {
	r.mu.Lock()
	delete(r.sessions, s.ID)
	r.mu.Unlock()
	s.close(reason)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
