package cache

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kiebor81/mudis/codec"
)

// PersistenceFormat selects how a snapshot container is encoded on disk.
type PersistenceFormat string

const (
	PersistenceFormatJSON   PersistenceFormat = "json"
	PersistenceFormatBinary PersistenceFormat = "binary"
)

// Config is the configuration record for a Cache, fixed once New applies it.
// Zero value is not valid; use DefaultConfig and override fields.
type Config struct {
	Serializer string // "json" (default), "fast-json", "binary"
	Compress   bool

	MaxBytes        int64 // soft cap; > 0
	MaxValueBytes   int64 // 0 = unlimited
	HardMemoryLimit bool
	EvictionThreshold float64 // (0, 1], default 0.9

	ShardCount int // > 0; defaults to 32 or MUDIS_BUCKETS

	MaxTTL     time.Duration // 0 = unlimited
	DefaultTTL time.Duration // 0 = none

	PersistenceEnabled  bool
	PersistencePath     string
	PersistenceFormat   PersistenceFormat
	PersistenceSafeWrite bool

	// SweepInterval controls the background TTL sweeper cadence. 0 disables
	// the sweeper; lazy expiration on read still applies.
	SweepInterval time.Duration
}

// DefaultConfig returns the documented defaults from spec §6, honoring the
// MUDIS_BUCKETS environment override for ShardCount.
func DefaultConfig() Config {
	shards := 32
	if v := os.Getenv("MUDIS_BUCKETS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			shards = n
		}
	}
	return Config{
		Serializer:           codec.StrategyJSON,
		Compress:             false,
		MaxBytes:             1073741824,
		MaxValueBytes:        0,
		HardMemoryLimit:      false,
		EvictionThreshold:    0.9,
		ShardCount:           shards,
		MaxTTL:               0,
		DefaultTTL:           0,
		PersistenceEnabled:   false,
		PersistencePath:      "mudis_data",
		PersistenceFormat:    PersistenceFormatJSON,
		PersistenceSafeWrite: true,
		SweepInterval:        0,
	}
}

// Validate checks the full record before any live state is mutated,
// matching the "configure then apply" contract of spec §4.11.
func (c Config) Validate() error {
	if c.MaxBytes <= 0 {
		return fmt.Errorf("%w: max_bytes must be > 0", ErrInvalidConfig)
	}
	if c.MaxValueBytes < 0 {
		return fmt.Errorf("%w: max_value_bytes must be >= 0 (0 disables the limit)", ErrInvalidConfig)
	}
	if c.MaxValueBytes > 0 && c.MaxValueBytes > c.MaxBytes {
		return fmt.Errorf("%w: max_value_bytes must be <= max_bytes", ErrInvalidConfig)
	}
	if c.EvictionThreshold <= 0 || c.EvictionThreshold > 1 {
		return fmt.Errorf("%w: eviction_threshold must be in (0, 1]", ErrInvalidConfig)
	}
	if c.ShardCount <= 0 {
		return fmt.Errorf("%w: shard_count must be > 0", ErrInvalidConfig)
	}
	if c.MaxTTL < 0 {
		return fmt.Errorf("%w: max_ttl must be >= 0 (0 disables the cap)", ErrInvalidConfig)
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("%w: default_ttl must be >= 0 (0 disables the default)", ErrInvalidConfig)
	}
	if c.PersistenceEnabled {
		if c.PersistencePath == "" {
			return fmt.Errorf("%w: persistence_path must be set when persistence is enabled", ErrInvalidConfig)
		}
		switch c.PersistenceFormat {
		case PersistenceFormatJSON, PersistenceFormatBinary:
		default:
			return fmt.Errorf("%w: persistence_format must be json or binary", ErrInvalidConfig)
		}
	}
	if _, err := codec.New(c.Serializer); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// thresholdBytes is the global soft cap: floor(max_bytes * eviction_threshold).
func (c Config) thresholdBytes() int64 {
	return int64(float64(c.MaxBytes) * c.EvictionThreshold)
}

// perShardThreshold is floor(threshold_bytes / shard_count).
func (c Config) perShardThreshold() int64 {
	return c.thresholdBytes() / int64(c.ShardCount)
}
