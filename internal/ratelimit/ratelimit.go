// Package ratelimit throttles inbound traffic from a single source address
// before the Manager does any real work on it, the way the wireguard-go
// reference throttles inbound handshake traffic before it reaches the noise
// protocol.
package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// eventsPerSecond bounds how many PairRequests or beacon-triggered
	// pings a single address may generate once its burst is spent.
	eventsPerSecond = 5
	burst           = 10

	// garbageCollectInterval controls how often idle per-address limiters
	// are swept from the table.
	garbageCollectInterval = 30 * time.Second
	idleTimeout            = 2 * time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-source-address token bucket limiter with a background
// goroutine that evicts addresses that have gone quiet, so the table does
// not grow without bound over the life of the daemon.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	stop    chan struct{}
	stopped sync.Once
}

// New starts a Limiter and its garbage-collection goroutine.
func New() *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	go l.collectGarbage()
	return l
}

// Close stops the garbage-collection goroutine. Idempotent.
func (l *Limiter) Close() {
	l.stopped.Do(func() { close(l.stop) })
}

// Allow reports whether an event from ip should be let through.
func (l *Limiter) Allow(ip net.IP) bool {
	key := ip.String()

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), burst)}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

func (l *Limiter) collectGarbage() {
	ticker := time.NewTicker(garbageCollectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, e := range l.entries {
				if now.Sub(e.lastSeen) > idleTimeout {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
