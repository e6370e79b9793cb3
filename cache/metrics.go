package cache

import "sync"

// EvictReason explains why an entry left a shard outside of an explicit
// caller Delete/Clear.
type EvictReason int

const (
	EvictLRU EvictReason = iota // fill-to-fit eviction of the coldest entry
	EvictTTL                    // background TTL sweep (lazy purges on access are not counted)
)

// Counters mirrors the global/per-namespace counter set from spec §4.8.
type Counters struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Rejected  uint64
}

// TouchedKey is one row of the least_touched projection.
type TouchedKey struct {
	Key     string
	Touches uint64
}

// NamespaceSnapshot pairs a namespace name with its counters.
type NamespaceSnapshot struct {
	Namespace string
	Counters
}

// Snapshot is the full metrics() view: global counters, aggregate memory,
// per-shard structural stats, and a least-touched projection.
type Snapshot struct {
	Counters
	TotalMemory  int64
	Shards       []ShardStat
	LeastTouched []TouchedKey
}

// Sink is an optional observability hook, implemented by e.g. the
// metrics/prom adapter, mirrored alongside the in-process counters.
// Implementations must be safe for concurrent use.
type Sink interface {
	Hit(namespace string)
	Miss(namespace string)
	Eviction(namespace string, reason EvictReason)
	Rejected(namespace string)
	Size(shardIndex, keys int, bytes int64)
}

// metricsHub owns the global and per-namespace counters behind one mutex,
// matching spec §4.8 ("all increments go through a mutex; readers take a
// snapshot under the same mutex").
type metricsHub struct {
	mu         sync.Mutex
	global     Counters
	namespaces map[string]*Counters
	sink       Sink
}

func newMetricsHub(sink Sink) *metricsHub {
	return &metricsHub{namespaces: make(map[string]*Counters), sink: sink}
}

func (m *metricsHub) nsLocked(ns string) *Counters {
	c, ok := m.namespaces[ns]
	if !ok {
		c = &Counters{}
		m.namespaces[ns] = c
	}
	return c
}

func (m *metricsHub) bumpHit(ns string) {
	m.mu.Lock()
	m.global.Hits++
	if ns != "" {
		m.nsLocked(ns).Hits++
	}
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.Hit(ns)
	}
}

func (m *metricsHub) bumpMiss(ns string) {
	m.mu.Lock()
	m.global.Misses++
	if ns != "" {
		m.nsLocked(ns).Misses++
	}
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.Miss(ns)
	}
}

func (m *metricsHub) bumpEviction(ns string, reason EvictReason) {
	m.mu.Lock()
	m.global.Evictions++
	if ns != "" {
		m.nsLocked(ns).Evictions++
	}
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.Eviction(ns, reason)
	}
}

func (m *metricsHub) bumpRejected(ns string) {
	m.mu.Lock()
	m.global.Rejected++
	if ns != "" {
		m.nsLocked(ns).Rejected++
	}
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.Rejected(ns)
	}
}

func (m *metricsHub) globalCounters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.global
}

func (m *metricsHub) namespace(ns string) (Counters, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.namespaces[ns]
	if !ok {
		return Counters{}, false
	}
	return *c, true
}

func (m *metricsHub) reportSize(shardIndex, keys int, bytes int64) {
	if m.sink != nil {
		m.sink.Size(shardIndex, keys, bytes)
	}
}

func (m *metricsHub) reset() {
	m.mu.Lock()
	m.global = Counters{}
	m.namespaces = make(map[string]*Counters)
	m.mu.Unlock()
}
