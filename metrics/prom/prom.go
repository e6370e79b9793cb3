// Package prom adapts mudis's cache.Sink hook to Prometheus metrics,
// mirroring the teacher's registration and labeling conventions.
package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kiebor81/mudis/cache"
)

// Adapter implements cache.Sink and exports Prometheus counters/gauges,
// labeled by namespace where the underlying counter is namespace-scoped.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	evicts     *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	shardKeys  *prometheus.GaugeVec
	shardBytes *prometheus.GaugeVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}, []string{"namespace"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}, []string{"namespace"}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Cache evictions by reason",
			ConstLabels: constLabels,
		}, []string{"namespace", "reason"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "rejected_total",
			Help:        "Writes rejected by the memory accountant",
			ConstLabels: constLabels,
		}, []string{"namespace"}),
		shardKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "shard_keys",
			Help:        "Resident key count per shard",
			ConstLabels: constLabels,
		}, []string{"shard"}),
		shardBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "shard_bytes",
			Help:        "Resident byte count per shard",
			ConstLabels: constLabels,
		}, []string{"shard"}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.rejected, a.shardKeys, a.shardBytes)
	return a
}

// Hit increments the hit counter for namespace ("" for the unscoped key).
func (a *Adapter) Hit(namespace string) { a.hits.WithLabelValues(namespace).Inc() }

// Miss increments the miss counter for namespace.
func (a *Adapter) Miss(namespace string) { a.misses.WithLabelValues(namespace).Inc() }

// Eviction increments the eviction counter for namespace, labeled by reason.
func (a *Adapter) Eviction(namespace string, r cache.EvictReason) {
	a.evicts.WithLabelValues(namespace, reason(r)).Inc()
}

// Rejected increments the rejected-write counter for namespace.
func (a *Adapter) Rejected(namespace string) { a.rejected.WithLabelValues(namespace).Inc() }

// Size sets the resident key/byte gauges for one shard.
func (a *Adapter) Size(shardIndex, keys int, bytes int64) {
	label := strconv.Itoa(shardIndex)
	a.shardKeys.WithLabelValues(label).Set(float64(keys))
	a.shardBytes.WithLabelValues(label).Set(float64(bytes))
}

// reason maps EvictReason to a stable label value.
func reason(r cache.EvictReason) string {
	switch r {
	case cache.EvictTTL:
		return "ttl"
	default:
		return "lru"
	}
}

// Compile-time check: ensure Adapter implements cache.Sink.
var _ cache.Sink = (*Adapter)(nil)
