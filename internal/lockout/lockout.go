// Package lockout tracks consecutive login failures per identity and
// blocks further attempts once a configured threshold is crossed.
package lockout

import (
	"sync"
	"time"
)

// record holds the failure state for one identity.
type record struct {
	count       int
	lastFailure time.Time
	blockUntil  time.Time
}

// Tracker is a keyed failure counter with a cooldown. All state changes
// happen under one mutex, so concurrent failed attempts against the same
// identity are never lost between a check and a record.
type Tracker struct {
	mu          sync.Mutex
	records     map[string]*record
	maxAttempts int
	cooldown    time.Duration
}

// New constructs a Tracker. maxAttempts is the number of consecutive
// failures that triggers a block; cooldown is how long the block lasts.
// Both come from configuration, not code.
func New(maxAttempts int, cooldown time.Duration) *Tracker {
	return &Tracker{
		records:     make(map[string]*record),
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
	}
}

// CheckAllowed reports whether a login attempt for the identity may proceed.
// When blocked, retryAfter is the remaining cooldown.
func (t *Tracker) CheckAllowed(email string, now time.Time) (allowed bool, retryAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[email]
	if !ok || rec.blockUntil.IsZero() {
		return true, 0
	}
	if now.Before(rec.blockUntil) {
		return false, rec.blockUntil.Sub(now)
	}

	// Cooldown elapsed; drop the stale block but keep nothing else.
	delete(t.records, email)
	return true, 0
}

// RecordFailure increments the failure count and applies the block when the
// threshold is reached. The count resets once the block is set; the block
// itself gates further attempts.
func (t *Tracker) RecordFailure(email string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[email]
	if !ok {
		rec = &record{}
		t.records[email] = rec
	}
	rec.count++
	rec.lastFailure = now
	if rec.count >= t.maxAttempts {
		rec.blockUntil = now.Add(t.cooldown)
		rec.count = 0
	}
}

// RecordSuccess clears all failure state for the identity.
func (t *Tracker) RecordSuccess(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, email)
}

// Cleanup drops records that no longer influence any decision: expired
// blocks, and sub-threshold counters whose last failure is older than the
// cooldown. Without it a spray of single failures across many identities
// would grow the map without bound. Returns the number of records removed.
func (t *Tracker) Cleanup(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for email, rec := range t.records {
		expired := !rec.blockUntil.IsZero() && now.After(rec.blockUntil)
		stale := rec.blockUntil.IsZero() && now.Sub(rec.lastFailure) > t.cooldown
		if expired || stale {
			delete(t.records, email)
			removed++
		}
	}
	return removed
}
