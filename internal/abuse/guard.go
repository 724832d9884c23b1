// Package abuse implements a sliding-window failure throttle with lockout.
// The same guard gates authentication-style retries and repeated booking
// attempts per email or IP.
package abuse

import (
	"context"
	"sync"
	"time"

	"github.com/averyhale/booking-concierge/pkg/logging"
)

// Policy configures the sliding window and lockout behavior.
type Policy struct {
	// Window is the sliding window over which failures are counted.
	Window time.Duration
	// MaxFailures is the number of failures tolerated within the window.
	MaxFailures int
	// Lockout is how long an identifier stays blocked once MaxFailures
	// is reached.
	Lockout time.Duration
}

// DefaultPolicy allows 5 failures in a 15-minute window before a
// 30-minute lockout.
func DefaultPolicy() Policy {
	return Policy{
		Window:      15 * time.Minute,
		MaxFailures: 5,
		Lockout:     30 * time.Minute,
	}
}

// Guard throttles an identifier (email, IP) by recorded failures.
type Guard interface {
	// IsLimited reports whether the identifier is currently locked out.
	// Expired windows and lockouts are reset lazily by this check.
	IsLimited(ctx context.Context, identifier string) (bool, error)
	// RecordFailure counts one failure against the identifier.
	RecordFailure(ctx context.Context, identifier string) error
	// Clear removes all recorded failures and any lockout.
	Clear(ctx context.Context, identifier string) error
	// RemainingLockout returns how long the identifier stays blocked,
	// zero when it is not locked out.
	RemainingLockout(ctx context.Context, identifier string) (time.Duration, error)
}

type entry struct {
	failures    []time.Time
	lockedUntil time.Time
}

// MemoryGuard is an in-process Guard backed by a mutex-guarded map.
// Safe for concurrent use; stale entries are evicted periodically.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]*entry
	policy  Policy
	logger  *logging.Logger
	now     func() time.Time
}

// NewMemoryGuard creates an in-process guard with the given policy.
func NewMemoryGuard(policy Policy, logger *logging.Logger) *MemoryGuard {
	if logger == nil {
		logger = logging.Default()
	}
	g := &MemoryGuard{
		entries: make(map[string]*entry),
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
	go g.cleanup()
	return g
}

// IsLimited reports whether the identifier is locked out.
func (g *MemoryGuard) IsLimited(_ context.Context, identifier string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[identifier]
	if !ok {
		return false, nil
	}
	now := g.now()
	if !e.lockedUntil.IsZero() {
		if now.Before(e.lockedUntil) {
			return true, nil
		}
		// Lockout expired: lazy reset on first check.
		delete(g.entries, identifier)
		return false, nil
	}
	e.failures = pruneWindow(e.failures, now.Add(-g.policy.Window))
	if len(e.failures) == 0 {
		delete(g.entries, identifier)
		return false, nil
	}
	return len(e.failures) >= g.policy.MaxFailures, nil
}

// RecordFailure counts one failure and starts a lockout once the window
// fills up.
func (g *MemoryGuard) RecordFailure(_ context.Context, identifier string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	e, ok := g.entries[identifier]
	if !ok {
		e = &entry{}
		g.entries[identifier] = e
	}
	e.failures = append(pruneWindow(e.failures, now.Add(-g.policy.Window)), now)
	if len(e.failures) >= g.policy.MaxFailures && e.lockedUntil.IsZero() {
		e.lockedUntil = now.Add(g.policy.Lockout)
		g.logger.Warn("identifier locked out",
			"identifier", identifier,
			"failures", len(e.failures),
			"locked_until", e.lockedUntil,
		)
	}
	return nil
}

// Clear unblocks the identifier immediately.
func (g *MemoryGuard) Clear(_ context.Context, identifier string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, identifier)
	return nil
}

// RemainingLockout returns the time left on an active lockout.
func (g *MemoryGuard) RemainingLockout(_ context.Context, identifier string) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[identifier]
	if !ok || e.lockedUntil.IsZero() {
		return 0, nil
	}
	remaining := e.lockedUntil.Sub(g.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// cleanup evicts idle entries to prevent unbounded growth.
func (g *MemoryGuard) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		g.mu.Lock()
		now := g.now()
		cutoff := now.Add(-g.policy.Window)
		for id, e := range g.entries {
			if !e.lockedUntil.IsZero() && now.Before(e.lockedUntil) {
				continue
			}
			if len(pruneWindow(e.failures, cutoff)) == 0 {
				delete(g.entries, id)
			}
		}
		g.mu.Unlock()
	}
}

// pruneWindow drops failure timestamps older than the cutoff.
func pruneWindow(failures []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(failures) && !failures[idx].After(cutoff) {
		idx++
	}
	return failures[idx:]
}
