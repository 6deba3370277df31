// Package lockout tracks failed attempts per key and locks a key out for a
// while once it fails too often.
package lockout

import (
	"sync"
	"time"
)

// Clock is the time source of a Guard.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Config holds lockout configuration
type Config struct {
	// MaxAttempts is the number of failures that triggers a lock (default: 5)
	MaxAttempts int
	// LockDuration is how long a key stays locked (default: 15m)
	LockDuration time.Duration
	// Window is how long failures are remembered without a new one (default: LockDuration)
	Window time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		LockDuration: 15 * time.Minute,
		Window:       15 * time.Minute,
	}
}

type state struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// Guard is safe for concurrent use.
type Guard struct {
	mu     sync.Mutex
	config Config
	clock  Clock
	keys   map[string]*state
}

// New creates a guard. A nil clock means SystemClock.
func New(config Config, clock Clock) *Guard {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.LockDuration <= 0 {
		config.LockDuration = def.LockDuration
	}
	if config.Window <= 0 {
		config.Window = config.LockDuration
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Guard{
		config: config,
		clock:  clock,
		keys:   make(map[string]*state),
	}
}

// Check reports whether key is locked and, if so, for how much longer.
func (g *Guard) Check(key string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	st := g.current(key, now)
	if st == nil || !now.Before(st.lockedUntil) {
		return false, 0
	}
	return true, st.lockedUntil.Sub(now)
}

// Fail records a failed attempt and returns the attempts left before a lock.
// Zero means the key is now locked. Failures while locked do not extend the lock.
func (g *Guard) Fail(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	st := g.current(key, now)
	if st == nil {
		st = &state{}
		g.keys[key] = st
	}
	if now.Before(st.lockedUntil) {
		return 0
	}

	st.failures++
	st.lastFailure = now
	if st.failures >= g.config.MaxAttempts {
		st.lockedUntil = now.Add(g.config.LockDuration)
		st.failures = 0
		return 0
	}
	return g.config.MaxAttempts - st.failures
}

// Reset clears key, typically after a successful attempt.
func (g *Guard) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
}

// MaxAttempts returns the configured attempt limit.
func (g *Guard) MaxAttempts() int { return g.config.MaxAttempts }

// LockDuration returns the configured lock duration.
func (g *Guard) LockDuration() time.Duration { return g.config.LockDuration }

// Prune drops expired entries and returns how many were removed.
func (g *Guard) Prune() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	removed := 0
	for key := range g.keys {
		if g.current(key, now) == nil {
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}

// current returns the live state of key, dropping it when both the lock and
// the failure window have expired. g.mu must be held.
func (g *Guard) current(key string, now time.Time) *state {
	st, ok := g.keys[key]
	if !ok {
		return nil
	}
	if now.Before(st.lockedUntil) {
		return st
	}
	if st.failures > 0 && now.Sub(st.lastFailure) < g.config.Window {
		return st
	}
	delete(g.keys, key)
	return nil
}
