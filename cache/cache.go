// Package cache implements mudis: an in-process, sharded, thread-safe
// cache with LRU eviction, optional per-entry TTL, optional payload
// compression, memory accounting with hard/soft caps, per-key touch
// tracking, and logical namespacing.
//
// Concurrency: the keyspace is split across Config.ShardCount shards, each
// protected by its own mutex. A shard owns a map plus an intrusive
// MRU/LRU doubly linked list; all mutation is O(1) amortized. A single
// atomic counter tracks the aggregate live byte count so the hard memory
// cap can be enforced without a lock spanning shards.
//
// Every value passed to Write/Replace/Fetch is run through the configured
// Codec (json, fast-json, or binary/msgpack, optionally deflate
// compressed) before it reaches a shard; Read/Fetch decode it back on the
// way out. See package codec.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kiebor81/mudis/codec"
	"github.com/kiebor81/mudis/internal/keymutex"
)

// Loader produces a value on a Fetch miss.
type Loader func(ctx context.Context) (any, error)

// UpdateFunc receives the current value (and whether it was present) and
// returns the value to store. Returning an error aborts the update; the
// prior value, if any, is left untouched.
type UpdateFunc func(current any, ok bool) (next any, err error)

// Metadata is the diagnostic record returned by Inspect.
type Metadata struct {
	Key        string
	ShardIndex int
	ExpiresAt  time.Time // zero value means "never expires"
	CreatedAt  time.Time
	SizeBytes  int64
	Compressed bool
}

// Cache is the public surface of mudis. All methods are safe for
// concurrent use by multiple goroutines.
type Cache interface {
	Read(ctx context.Context, key, namespace string) (value any, ok bool, err error)
	Write(ctx context.Context, key string, value any, ttl *time.Duration, namespace string) error
	Update(ctx context.Context, key, namespace string, fn UpdateFunc) error
	Delete(ctx context.Context, key, namespace string)
	Clear(ctx context.Context, key, namespace string)
	Replace(ctx context.Context, key string, value any, ttl *time.Duration, namespace string) error
	Exists(ctx context.Context, key, namespace string) bool
	Fetch(ctx context.Context, key, namespace string, ttl *time.Duration, force, singleflight bool, loader Loader) (any, error)
	Inspect(ctx context.Context, key, namespace string) (Metadata, bool)
	Keys(namespace string) ([]string, error)
	ClearNamespace(namespace string) error
	LeastTouched(n int) []TouchedKey
	AllKeys() []string
	Metrics() Snapshot
	NamespaceMetrics(namespace string) (NamespaceSnapshot, bool)
	CurrentMemoryBytes() int64
	MaxMemoryBytes() int64
	SaveSnapshot() error
	LoadSnapshot() error
	Reset() error
	Close() error
}

// cacheImpl is the concrete Cache implementation. New returns it behind
// the Cache interface, matching the teacher's "pointer-to-impl as
// interface" idiom.
type cacheImpl struct {
	cfg   Config
	codec *codec.Codec

	shards []*shard
	acct   accountant

	metrics *metricsHub
	sf      *keymutex.Registry
	sweep   sweeper

	closed atomic.Bool
}

// New constructs a Cache from cfg, validating it first (spec's
// "configure then apply": nothing is mutated if validation fails).
func New(cfg Config) (Cache, error) {
	return NewWithSink(cfg, nil)
}

// NewWithSink is New plus an optional observability Sink (e.g. the
// metrics/prom adapter) mirrored alongside the in-process counters.
func NewWithSink(cfg Config, sink Sink) (Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cd, err := codec.NewCodec(cfg.Serializer, cfg.Compress)
	if err != nil {
		return nil, err
	}
	c := &cacheImpl{
		cfg:     cfg,
		codec:   cd,
		metrics: newMetricsHub(sink),
		sf:      keymutex.New(),
	}
	c.rebuildShardsLocked()
	if cfg.SweepInterval > 0 {
		c.sweep.start(cfg.SweepInterval, c.sweepOnce)
	}
	return c, nil
}

func (c *cacheImpl) rebuildShardsLocked() {
	shards := make([]*shard, c.cfg.ShardCount)
	for i := range shards {
		shards[i] = newShard()
	}
	c.shards = shards
}

func (c *cacheImpl) shardFor(ek string) *shard {
	return c.shards[shardIndex(ek, len(c.shards))]
}

func (c *cacheImpl) CurrentMemoryBytes() int64 { return c.acct.Total() }
func (c *cacheImpl) MaxMemoryBytes() int64     { return c.cfg.MaxBytes }
