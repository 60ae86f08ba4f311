package server

import (
	"fmt"
	"sync"

	"github.com/zeusync/doublezero/internal/core/document"
	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/patch"
	"github.com/zeusync/doublezero/internal/core/protocol"
)

// Authority owns the canonical state: the latest value pushed by every
// client. Each accepted push is diffed against the whole state and the
// resulting patch is queued, byte for byte, on every open session.
type Authority struct {
	// mu serializes commits and their broadcast, so every session receives
	// patches in commit order.
	mu      sync.Mutex
	state   map[string]any
	version uint64

	registry *Registry
	metrics  *Metrics
	logger   log.Log
}

func NewAuthority(registry *Registry, metrics *Metrics, logger log.Log) *Authority {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Authority{
		state:    make(map[string]any),
		registry: registry,
		metrics:  metrics,
		logger:   logger.With(log.String("component", "authority")),
	}
}

// Push makes the last record of batch the canonical value of clientID and
// broadcasts the change. Earlier records of the batch are superseded.
func (a *Authority) Push(clientID protocol.ClientID, batch protocol.Batch) (patch.Patch, error) {
	last, ok := batch.Last()
	if !ok {
		return nil, ErrEmptyBatch
	}
	value, err := document.Normalize(last)
	if err != nil {
		return nil, fmt.Errorf("push from %s: %w", clientID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	next := document.Clone(a.state).(map[string]any)
	next[string(clientID)] = value

	p := patch.Diff(a.state, next)
	if p.IsEmpty() {
		return nil, nil
	}
	frame, err := patch.Encode(p)
	if err != nil {
		return nil, err
	}

	a.state = next
	a.version++
	a.metrics.Clients.Set(float64(len(next)))
	a.metrics.BroadcastsTotal.Inc()
	a.metrics.OperationsTotal.Add(float64(len(p)))

	a.broadcast(frame)

	a.logger.Debug("state committed",
		log.String("client_id", string(clientID)),
		log.Int("operations", len(p)),
		log.Uint64("version", a.version),
		log.Int("batch_size", len(batch)))
	return p, nil
}

// broadcast must run with mu held.
func (a *Authority) broadcast(frame []byte) {
	for _, s := range a.registry.snapshot() {
		if s.enqueue(frame) {
			continue
		}
		if s.Err() == nil {
			a.metrics.SlowConsumersTotal.Inc()
			a.logger.Warn("closing slow session", log.String("session_id", string(s.ID)))
		}
		a.registry.Close(s, ErrSlowConsumer)
	}
}

// Subscribe opens a session that receives every patch committed from now
// on. Nothing committed earlier is replayed.
func (a *Authority) Subscribe() (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Open()
}

// Unsubscribe closes s; queued patches are discarded.
func (a *Authority) Unsubscribe(s *Session) {
	a.registry.Close(s, ErrSessionClosed)
}

// State returns a copy of the canonical state and its version.
func (a *Authority) State() (map[string]any, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return document.Clone(a.state).(map[string]any), a.version
}
