package cache

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// readEffective is the shared Read implementation, operating on an
// already-resolved effective key so Fetch can reuse it without
// recomputing the namespace/key composition.
func (c *cacheImpl) readEffective(ek, ns string) (any, bool, error) {
	s := c.shardFor(ek)
	now := time.Now().UnixNano()

	s.mu.Lock()
	e, expired := s.getLocked(ek, now)
	if e == nil {
		s.mu.Unlock()
		c.metrics.bumpMiss(ns)
		return nil, false, nil
	}
	if expired {
		s.deleteLocked(e)
		c.acct.release(-e.size)
		s.mu.Unlock()
		c.metrics.bumpMiss(ns)
		return nil, false, nil
	}
	e.touches++
	s.moveToFront(e)
	payload := e.payload
	s.mu.Unlock()

	v, err := c.codec.Decode(payload)
	if err != nil {
		s.mu.Lock()
		if cur, ok := s.m[ek]; ok && cur == e {
			s.deleteLocked(e)
			c.acct.release(-e.size)
		}
		s.mu.Unlock()
		return nil, false, fmt.Errorf("mudis: corrupted payload for key %q: %w", ek, err)
	}
	c.metrics.bumpHit(ns)
	return v, true, nil
}

// Read returns the decoded value for key in namespace, promoting it to
// most-recently-used and bumping its touch count. A miss (absent or
// expired) reports ok=false with a nil error; a non-nil error means the
// stored payload failed to decode and the entry was evicted as corrupt.
func (c *cacheImpl) Read(ctx context.Context, key, namespace string) (any, bool, error) {
	ns := resolveNamespace(ctx, namespace)
	ek := effectiveKey(ns, key)
	return c.readEffective(ek, ns)
}

// writeEffective is the shared store/replace path used by Write, Replace,
// and Fetch's post-loader store. When requireExisting is true the write is
// a no-op unless the key is already present (Replace's semantics).
func (c *cacheImpl) writeEffective(ek, ns, rawKey string, payload []byte, expiresAt, now int64, requireExisting bool) {
	s := c.shardFor(ek)
	threshold := c.cfg.perShardThreshold()

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.m[ek]
	if requireExisting && !exists {
		return
	}

	if c.cfg.MaxValueBytes > 0 && int64(len(payload)) > c.cfg.MaxValueBytes {
		return
	}

	var oldSize int64
	if exists {
		oldSize = old.size
	}
	newSize := int64(len(ek)) + int64(len(payload))
	delta := newSize - oldSize

	if !c.acct.reserve(delta, c.cfg.HardMemoryLimit, c.cfg.MaxBytes) {
		c.metrics.bumpRejected(ns)
		return
	}

	evict := func(v *entry) {
		c.acct.release(-v.size)
		c.metrics.bumpEviction(v.ns, EvictLRU)
	}

	if exists {
		s.unlink(old)
		s.bytes -= oldSize
		old.payload = payload
		old.expiresAt = expiresAt
		old.createdAt = now
		old.size = newSize
		s.fillToFit(threshold, newSize, old, evict)
		s.pushFront(old)
		s.bytes += newSize
		return
	}

	e := newEntry(ek, ns, rawKey, payload, expiresAt, now)
	s.fillToFit(threshold, newSize, nil, evict)
	s.m[ek] = e
	s.pushFront(e)
	s.bytes += newSize
}

func (c *cacheImpl) writeEffectiveEncoded(ek, ns, rawKey string, value any, ttl *time.Duration, requireExisting bool) error {
	payload, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("mudis: encode: %w", err)
	}
	chosen := effectiveTTL(ttl, c.cfg)
	now := time.Now().UnixNano()
	var expiresAt int64
	if chosen != nil {
		expiresAt = now + int64(*chosen)
	}
	c.writeEffective(ek, ns, rawKey, payload, expiresAt, now, requireExisting)
	return nil
}

// Write stores value under key in namespace, creating or replacing the
// entry and promoting it to most-recently-used. An encoding failure is
// fatal and returned as an error; the prior entry, if any, is untouched.
func (c *cacheImpl) Write(ctx context.Context, key string, value any, ttl *time.Duration, namespace string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	ns := resolveNamespace(ctx, namespace)
	ek := effectiveKey(ns, key)
	return c.writeEffectiveEncoded(ek, ns, key, value, ttl, false)
}

// Replace behaves exactly like Write but is a no-op when key is not
// already present.
func (c *cacheImpl) Replace(ctx context.Context, key string, value any, ttl *time.Duration, namespace string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	ns := resolveNamespace(ctx, namespace)
	ek := effectiveKey(ns, key)
	return c.writeEffectiveEncoded(ek, ns, key, value, ttl, true)
}

// Delete removes key from namespace, if present. Absence is not an error.
func (c *cacheImpl) Delete(ctx context.Context, key, namespace string) {
	ns := resolveNamespace(ctx, namespace)
	ek := effectiveKey(ns, key)
	s := c.shardFor(ek)

	s.mu.Lock()
	if e, ok := s.m[ek]; ok {
		s.deleteLocked(e)
		c.acct.release(-e.size)
	}
	s.mu.Unlock()
}

// Clear is an alias for Delete, matching spec §4.3's naming of the
// single-key removal operation under both names.
func (c *cacheImpl) Clear(ctx context.Context, key, namespace string) {
	c.Delete(ctx, key, namespace)
}

// Exists reports whether key is present and unexpired in namespace,
// lazily purging it first if it has expired. It does not affect LRU
// order or touch count.
func (c *cacheImpl) Exists(ctx context.Context, key, namespace string) bool {
	ns := resolveNamespace(ctx, namespace)
	ek := effectiveKey(ns, key)
	s := c.shardFor(ek)
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[ek]
	if !ok {
		return false
	}
	if e.expired(now) {
		s.deleteLocked(e)
		c.acct.release(-e.size)
		return false
	}
	return true
}

// Update applies fn to the current value (nil, false if absent or
// expired) and stores the result. Update never creates an entry: if the
// key is absent, fn still runs (so callers can detect and handle a miss)
// but its result is discarded rather than inserted, matching the
// "promotes an existing node" wording of the underlying LRU operation.
// An error from fn, or an encode failure, aborts the update and leaves
// any prior value untouched.
func (c *cacheImpl) Update(ctx context.Context, key, namespace string, fn UpdateFunc) error {
	if c.closed.Load() {
		return ErrClosed
	}
	ns := resolveNamespace(ctx, namespace)
	ek := effectiveKey(ns, key)
	s := c.shardFor(ek)
	now := time.Now().UnixNano()

	s.mu.Lock()
	e, expired := s.getLocked(ek, now)
	var current any
	var hasCurrent bool
	if e != nil && !expired {
		v, err := c.codec.Decode(e.payload)
		if err != nil {
			s.deleteLocked(e)
			c.acct.release(-e.size)
			s.mu.Unlock()
			return fmt.Errorf("mudis: corrupted payload for key %q: %w", ek, err)
		}
		current, hasCurrent = v, true
	} else if e != nil && expired {
		s.deleteLocked(e)
		c.acct.release(-e.size)
	}
	s.mu.Unlock()

	// fn runs outside the shard lock so an arbitrarily slow or blocking
	// caller-supplied block never stalls the rest of the shard.
	next, err := fn(current, hasCurrent)
	if err != nil {
		return err
	}
	if !hasCurrent {
		return nil
	}

	payload, err := c.codec.Encode(next)
	if err != nil {
		return fmt.Errorf("mudis: encode: %w", err)
	}

	threshold := c.cfg.perShardThreshold()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, stillExists := s.m[ek]
	if !stillExists {
		// The key was deleted or evicted while fn ran; Update never creates.
		return nil
	}
	if c.cfg.MaxValueBytes > 0 && int64(len(payload)) > c.cfg.MaxValueBytes {
		return nil
	}

	newSize := int64(len(ek)) + int64(len(payload))
	delta := newSize - cur.size
	if !c.acct.reserve(delta, c.cfg.HardMemoryLimit, c.cfg.MaxBytes) {
		c.metrics.bumpRejected(ns)
		return nil
	}

	// A TTL set on the original entry is preserved as a duration-from-now,
	// not the original absolute deadline, so an update effectively refreshes
	// the timer for the same relative lifetime.
	var newExpiresAt int64
	if cur.expiresAt != 0 {
		remaining := cur.expiresAt - cur.createdAt
		newExpiresAt = time.Now().UnixNano() + remaining
	}

	s.bytes += delta
	cur.payload = payload
	cur.size = newSize
	cur.createdAt = time.Now().UnixNano()
	cur.expiresAt = newExpiresAt
	s.moveToFront(cur)
	s.fillToFit(threshold, 0, cur, func(v *entry) {
		c.acct.release(-v.size)
		c.metrics.bumpEviction(v.ns, EvictLRU)
	})
	return nil
}

// Fetch returns the cached value for key, populating it via loader on a
// miss. When singleflight is true, concurrent Fetch calls for the same
// effective key coalesce behind a per-key mutex (internal/keymutex) so
// loader runs at most once per miss; followers re-check the cache after
// acquiring the mutex rather than invoking loader themselves. force
// bypasses the initial cache check, always invoking loader.
func (c *cacheImpl) Fetch(ctx context.Context, key, namespace string, ttl *time.Duration, force, singleflight bool, loader Loader) (any, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if loader == nil {
		return nil, ErrNoLoader
	}
	ns := resolveNamespace(ctx, namespace)
	ek := effectiveKey(ns, key)

	if !force {
		if v, ok, err := c.readEffective(ek, ns); err != nil {
			return nil, err
		} else if ok {
			return v, nil
		}
	}

	if !singleflight {
		return c.loadAndStore(ctx, ek, ns, key, ttl, loader)
	}

	h := c.sf.Lock(ek)
	defer c.sf.Unlock(ek, h)

	if !force {
		if v, ok, err := c.readEffective(ek, ns); err != nil {
			return nil, err
		} else if ok {
			return v, nil
		}
	}
	return c.loadAndStore(ctx, ek, ns, key, ttl, loader)
}

func (c *cacheImpl) loadAndStore(ctx context.Context, ek, ns, rawKey string, ttl *time.Duration, loader Loader) (any, error) {
	v, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.writeEffectiveEncoded(ek, ns, rawKey, v, ttl, false); err != nil {
		return nil, err
	}
	return v, nil
}

// Inspect returns diagnostic metadata for key without decoding its
// payload or affecting LRU order or touch count.
func (c *cacheImpl) Inspect(ctx context.Context, key, namespace string) (Metadata, bool) {
	ns := resolveNamespace(ctx, namespace)
	ek := effectiveKey(ns, key)
	idx := shardIndex(ek, len(c.shards))
	s := c.shards[idx]
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[ek]
	if !ok {
		return Metadata{}, false
	}
	if e.expired(now) {
		s.deleteLocked(e)
		c.acct.release(-e.size)
		return Metadata{}, false
	}

	md := Metadata{
		Key:        e.rawKey,
		ShardIndex: idx,
		CreatedAt:  time.Unix(0, e.createdAt),
		SizeBytes:  e.size,
		Compressed: c.codec.Compressed(),
	}
	if e.expiresAt != 0 {
		md.ExpiresAt = time.Unix(0, e.expiresAt)
	}
	return md, true
}

// Keys lists the raw (namespace-stripped) keys currently live in
// namespace. The result is a point-in-time snapshot, not a live view.
func (c *cacheImpl) Keys(namespace string) ([]string, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	now := time.Now().UnixNano()
	var out []string
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.m {
			if e.ns == namespace && !e.expired(now) {
				out = append(out, e.rawKey)
			}
		}
		s.mu.Unlock()
	}
	return out, nil
}

// ClearNamespace removes every entry belonging to namespace across all
// shards.
func (c *cacheImpl) ClearNamespace(namespace string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.m {
			if e.ns == namespace {
				s.deleteLocked(e)
				c.acct.release(-e.size)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// LeastTouched returns up to n live entries across all shards, ordered by
// ascending touch count; a cache-wide cold-key projection.
func (c *cacheImpl) LeastTouched(n int) []TouchedKey {
	if n <= 0 {
		return nil
	}
	now := time.Now().UnixNano()
	all := make([]TouchedKey, 0, n)
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.m {
			if !e.expired(now) {
				all = append(all, TouchedKey{Key: e.key, Touches: e.touches})
			}
		}
		s.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Touches < all[j].Touches })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// defaultLeastTouchedN bounds the least-touched projection embedded in
// Metrics() snapshots; LeastTouched itself accepts any n.
const defaultLeastTouchedN = 10

// AllKeys returns every effective key ("namespace:key" or bare key)
// currently live across all shards. Intended for diagnostics, not for
// iterating large caches on a hot path.
func (c *cacheImpl) AllKeys() []string {
	now := time.Now().UnixNano()
	var out []string
	for _, s := range c.shards {
		s.mu.Lock()
		for ek, e := range s.m {
			if !e.expired(now) {
				out = append(out, ek)
			}
		}
		s.mu.Unlock()
	}
	return out
}

// Metrics returns a global snapshot: hit/miss/eviction/rejected counters,
// aggregate live memory, per-shard structural stats, and a bounded
// least-touched projection.
func (c *cacheImpl) Metrics() Snapshot {
	shardsStat := make([]ShardStat, len(c.shards))
	for i, s := range c.shards {
		s.mu.Lock()
		shardsStat[i] = s.statLocked(i)
		s.mu.Unlock()
		c.metrics.reportSize(i, shardsStat[i].Keys, shardsStat[i].Bytes)
	}
	return Snapshot{
		Counters:     c.metrics.globalCounters(),
		TotalMemory:  c.acct.Total(),
		Shards:       shardsStat,
		LeastTouched: c.LeastTouched(defaultLeastTouchedN),
	}
}

// NamespaceMetrics returns the counters scoped to namespace, if any
// activity has been recorded for it yet.
func (c *cacheImpl) NamespaceMetrics(namespace string) (NamespaceSnapshot, bool) {
	counters, ok := c.metrics.namespace(namespace)
	if !ok {
		return NamespaceSnapshot{}, false
	}
	return NamespaceSnapshot{Namespace: namespace, Counters: counters}, true
}

// sweepOnce is the background sweeper's per-tick callback: it walks every
// shard's LRU list from the cold end and purges anything expired.
func (c *cacheImpl) sweepOnce() {
	now := time.Now().UnixNano()
	for i, s := range c.shards {
		s.mu.Lock()
		evicted := s.sweepExpiredLocked(now)
		s.mu.Unlock()

		if len(evicted) == 0 {
			continue
		}
		var freed int64
		for _, e := range evicted {
			c.acct.release(-e.size)
			c.metrics.bumpEviction(e.ns, EvictTTL)
			freed += e.size
		}
		logShardSweep(i, freed, len(evicted))
	}
}
