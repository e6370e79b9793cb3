package cache

import "sync/atomic"

// accountant tracks the aggregate live byte count across all shards using a
// single atomic counter. A compare-and-swap "reservation" lets writers on
// different shards enforce the global hard cap (spec invariant 4) without
// a cross-shard lock: the reservation either admits the net byte delta or
// rejects it atomically, so the aggregate never observably exceeds
// max_bytes when hard_memory_limit is set.
type accountant struct {
	total atomic.Int64
}

// Total returns the current aggregate live byte count.
func (a *accountant) Total() int64 { return a.total.Load() }

// reserve attempts to apply delta to the running total. When hardLimit is
// true the reservation is rejected (returns false, no mutation) if the
// resulting total would exceed maxBytes.
func (a *accountant) reserve(delta int64, hardLimit bool, maxBytes int64) bool {
	for {
		cur := a.total.Load()
		next := cur + delta
		if hardLimit && next > maxBytes {
			return false
		}
		if a.total.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// release unconditionally applies a (typically negative) delta, used when
// evicting entries outside of a reservation (e.g. TTL sweep).
func (a *accountant) release(delta int64) {
	a.total.Add(delta)
}

// reset zeroes the counter; used by Reset().
func (a *accountant) reset() {
	a.total.Store(0)
}
