// Package ratelimit provides per-client request rate limiting for the HTTP API.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// windowDuration is the span requests are counted over; the limit is
	// always expressed per minute
	windowDuration = 60 * time.Second
	// cleanupInterval is how often quiet clients are swept out
	cleanupInterval = 10 * time.Minute
	// idleTimeout is the quiet period after which a client entry is dropped
	idleTimeout = 10 * time.Minute
)

// Limiter enforces a per-client request budget over a sliding one-minute
// window. Clients are keyed by remote address.
type Limiter struct {
	limitPerMinute int
	entries        map[string]*clientEntry
	mutex          sync.RWMutex
	stopCleanup    chan struct{}
}

// clientEntry holds the in-window request timestamps of one client plus the
// bookkeeping the idle sweep needs.
type clientEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// New creates a Limiter allowing limitPerMinute requests per client and
// starts its idle sweep.
func New(limitPerMinute int) *Limiter {
	l := &Limiter{
		limitPerMinute: limitPerMinute,
		entries:        make(map[string]*clientEntry),
		stopCleanup:    make(chan struct{}),
	}

	go l.cleanup()

	return l
}

// Stop ends the idle sweep goroutine
func (l *Limiter) Stop() {
	close(l.stopCleanup)
}

// Allow reports whether a request from the client fits its current window,
// counting it when it does.
func (l *Limiter) Allow(client string) bool {
	now := time.Now()

	l.mutex.Lock()
	defer l.mutex.Unlock()

	entry, exists := l.entries[client]
	if !exists {
		entry = &clientEntry{
			timestamps: make([]time.Time, 0, l.limitPerMinute+1),
		}
		l.entries[client] = entry
	}

	entry.lastSeen = now

	// Remove timestamps outside the window
	windowStart := now.Add(-windowDuration)
	validTimestamps := entry.timestamps[:0] // Reuse slice capacity
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			validTimestamps = append(validTimestamps, ts)
		}
	}
	entry.timestamps = validTimestamps

	if len(entry.timestamps) >= l.limitPerMinute {
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

// cleanup periodically drops clients that have gone quiet so the entry map
// stays bounded
func (l *Limiter) cleanup() {
	// Run once immediately so a restart with stale state starts clean
	l.performCleanup()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.performCleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// performCleanup removes entries idle past the timeout
func (l *Limiter) performCleanup() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// GetStats reports the limiter's current occupancy and configuration
func (l *Limiter) GetStats() Stats {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return Stats{
		ActiveClients:  len(l.entries),
		LimitPerMinute: l.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()),
	}
}

// Stats is a point-in-time snapshot of the limiter
type Stats struct {
	ActiveClients  int `json:"active_clients"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}
