package mempool

import "sync"

// CyclePool tracks how many of a block's MaxCyclesPerBlock budget have
// been reserved by transactions selected for the next mem-block,
// letting OutputMemBlock stop packing before a block would exceed its
// cycle limit rather than discovering that only after a full replay.
type CyclePool struct {
	mu        sync.Mutex
	budget    uint64
	reserved  uint64
}

// NewCyclePool builds a pool with the given per-block cycle budget.
func NewCyclePool(budget uint64) *CyclePool {
	return &CyclePool{budget: budget}
}

// Remaining reports how many cycles are still unreserved.
func (c *CyclePool) Remaining() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved >= c.budget {
		return 0
	}
	return c.budget - c.reserved
}

// TryReserve reserves cycles if doing so would not exceed the budget,
// reporting whether the reservation succeeded.
func (c *CyclePool) TryReserve(cycles uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved+cycles > c.budget {
		return false
	}
	c.reserved += cycles
	return true
}

// Release gives back previously reserved cycles, used when a
// tentatively packed transaction is dropped from the batch.
func (c *CyclePool) Release(cycles uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cycles > c.reserved {
		c.reserved = 0
		return
	}
	c.reserved -= cycles
}

// Reset clears all reservations, starting a fresh block's budget.
func (c *CyclePool) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved = 0
}
