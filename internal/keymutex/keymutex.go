// Package keymutex implements a per-key mutex registry used to coalesce
// concurrent misses on the same effective key (the cache's single-flight
// coordinator). Unlike a channel-based "do once, broadcast the result"
// group, this registry hands each caller a real mutex: the first caller to
// arrive for a key becomes the leader and runs with the lock held; every
// other concurrent caller blocks until the leader releases it, then
// proceeds itself (typically finding the cache already populated).
package keymutex

import "sync"

// entryMu is a per-key mutex with a reference count. It is destroyed (its
// map entry removed) as soon as the count returns to zero, so the
// registry does not grow indefinitely.
type entryMu struct {
	mu   sync.Mutex
	refs int
}

// Registry is the single-flight coordinator's per-key mutex map, guarded by
// its own dedicated mutex. Individual per-key mutexes are acquired outside
// the registry mutex, matching the lock-ordering rule in spec §5.
type Registry struct {
	mu sync.Mutex
	m  map[string]*entryMu
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{m: make(map[string]*entryMu)}
}

// Lock blocks until the caller holds the exclusive mutex for key, and
// returns a handle to pass to Unlock.
func (r *Registry) Lock(key string) *entryMu {
	r.mu.Lock()
	e, ok := r.m[key]
	if !ok {
		e = &entryMu{}
		r.m[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()
	return e
}

// Unlock releases the mutex acquired by Lock and, if no other caller is
// waiting on it, removes it from the registry.
func (r *Registry) Unlock(key string, h *entryMu) {
	h.mu.Unlock()

	r.mu.Lock()
	h.refs--
	if h.refs == 0 {
		delete(r.m, key)
	}
	r.mu.Unlock()
}

// Len reports the number of keys currently tracked; used by tests to
// assert the registry does not leak entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
