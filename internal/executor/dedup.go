package executor

import (
	"sync"
	"time"
)

// Dedup prevents one opportunity from being executed more than once within
// a time-to-live window, so a replayed detection never produces two trades
// for the same underlying fill. Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // opportunity ID -> first seen
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats an ID seen within ttl as a
// duplicate.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate reports whether id was seen within the TTL window, recording
// it when it was not.
func (d *Dedup) IsDuplicate(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if first, ok := d.seen[id]; ok && now.Sub(first) < d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}

// Cleanup drops entries older than the TTL; called opportunistically so
// the map never grows without bound.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, first := range d.seen {
		if now.Sub(first) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
