package messaging

import (
	"context"
	"sync"
	"time"
)

// DefaultDedupTTL is how long a message ID is remembered.
const DefaultDedupTTL = time.Hour

// Deduper drops webhook retries. Claim returns true the first time a
// message ID is seen within the TTL.
type Deduper interface {
	Claim(ctx context.Context, messageID string) (bool, error)
}

// MemoryDeduper is the single-process Deduper used when Redis is not
// configured.
type MemoryDeduper struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	seen    map[string]time.Time
	inserts int
}

var _ Deduper = (*MemoryDeduper)(nil)

// pruneEvery is the number of claims between sweeps of expired IDs.
const pruneEvery = 1000

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

func (d *MemoryDeduper) Claim(_ context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[messageID]; ok && now.Sub(at) < d.ttl {
		return false, nil
	}
	d.seen[messageID] = now
	d.inserts++

	if d.inserts >= pruneEvery {
		d.inserts = 0
		cutoff := now.Add(-d.ttl)
		for id, at := range d.seen {
			if at.Before(cutoff) {
				delete(d.seen, id)
			}
		}
	}
	return true, nil
}

// Len reports how many IDs are currently remembered.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
