package executor

import (
	"sync"
	"time"
)

// Dedup prevents duplicate alerts from being executed more than once
// within a configurable time-to-live window. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // fingerprint -> first seen
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup instance that considers an alert a duplicate if
// its fingerprint has been seen within ttl. A zero ttl disables the guard.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate returns true if key has been seen within the TTL window. If
// it has not been seen (or has expired), it is recorded and false is
// returned.
func (d *Dedup) IsDuplicate(key string) bool {
	if d.ttl <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if lastSeen, ok := d.seen[key]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[key] = now
	return false
}

// Forget drops key so a failed submission can be retried immediately.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Cleanup removes entries that have expired beyond the TTL. This should be
// called periodically to prevent unbounded memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}

// Len returns the number of tracked fingerprints.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
