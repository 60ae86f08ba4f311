package server

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/zeusync/doublezero/internal/core/protocol"
)

// pushLimiter applies a token bucket per client.
type pushLimiter struct {
	mu       sync.Mutex
	limiters map[protocol.ClientID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newPushLimiter returns nil when perSecond is not positive; a nil
// limiter allows everything.
func newPushLimiter(perSecond float64, burst int) *pushLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &pushLimiter{
		limiters: make(map[protocol.ClientID]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *pushLimiter) Allow(id protocol.ClientID) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[id] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
