package bank

import (
	"sync"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// DefaultStatusCacheSize is how many processed signatures are remembered.
const DefaultStatusCacheSize = 65_536

// statusCache remembers the signatures of committed transactions, oldest
// evicted first. Transactions being executed are held as pending so a
// concurrent resubmission is refused too.
type statusCache struct {
	mu       sync.Mutex
	capacity int
	done     map[types.Signature]struct{}
	pending  map[types.Signature]struct{}
	order    []types.Signature
	next     int
}

func newStatusCache(capacity int) *statusCache {
	if capacity <= 0 {
		capacity = DefaultStatusCacheSize
	}
	return &statusCache{
		capacity: capacity,
		done:     make(map[types.Signature]struct{}, capacity),
		pending:  make(map[types.Signature]struct{}),
	}
}

// reserve marks sig pending. It fails if sig is pending or processed.
func (c *statusCache) reserve(sig types.Signature) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.done[sig]; ok {
		return false
	}
	if _, ok := c.pending[sig]; ok {
		return false
	}
	c.pending[sig] = struct{}{}
	return true
}

// cancel drops a pending reservation.
func (c *statusCache) cancel(sig types.Signature) {
	c.mu.Lock()
	delete(c.pending, sig)
	c.mu.Unlock()
}

// commit moves sig from pending to processed.
func (c *statusCache) commit(sig types.Signature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, sig)
	if len(c.order) < c.capacity {
		c.order = append(c.order, sig)
	} else {
		delete(c.done, c.order[c.next])
		c.order[c.next] = sig
		c.next = (c.next + 1) % c.capacity
	}
	c.done[sig] = struct{}{}
}

func (c *statusCache) contains(sig types.Signature) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.done[sig]
	return ok
}
