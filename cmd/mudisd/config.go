package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kiebor81/mudis/cache"
)

// fileConfig is the YAML-shaped configuration file read by mudisd. Its
// field names match spec.md §6's configuration table; durations are
// plain seconds so the file stays a flat, human-editable document.
type fileConfig struct {
	Serializer        string  `yaml:"serializer"`
	Compress          bool    `yaml:"compress"`
	MaxBytes          int64   `yaml:"max_bytes"`
	MaxValueBytes     int64   `yaml:"max_value_bytes"`
	HardMemoryLimit   bool    `yaml:"hard_memory_limit"`
	EvictionThreshold float64 `yaml:"eviction_threshold"`
	ShardCount        int     `yaml:"shard_count"`
	MaxTTLSeconds     float64 `yaml:"max_ttl_seconds"`
	DefaultTTLSeconds float64 `yaml:"default_ttl_seconds"`
	SweepIntervalSeconds float64 `yaml:"sweep_interval_seconds"`

	Persistence struct {
		Enabled   bool   `yaml:"enabled"`
		Path      string `yaml:"path"`
		Format    string `yaml:"format"`
		SafeWrite *bool  `yaml:"safe_write"`
	} `yaml:"persistence"`

	IPC struct {
		Enabled       bool    `yaml:"enabled"`
		Network       string  `yaml:"network"`
		Address       string  `yaml:"address"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		RateBurst     int     `yaml:"rate_burst"`
	} `yaml:"ipc"`

	Metrics struct {
		Prometheus bool   `yaml:"prometheus"`
		Namespace  string `yaml:"namespace"`
		Subsystem  string `yaml:"subsystem"`
	} `yaml:"metrics"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("mudisd: read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("mudisd: parse config %q: %w", path, err)
	}
	return fc, nil
}

// toCacheConfig merges the file config onto cache.DefaultConfig, leaving
// any zero-valued field at its default.
func (fc fileConfig) toCacheConfig() cache.Config {
	cfg := cache.DefaultConfig()

	if fc.Serializer != "" {
		cfg.Serializer = fc.Serializer
	}
	cfg.Compress = fc.Compress
	if fc.MaxBytes > 0 {
		cfg.MaxBytes = fc.MaxBytes
	}
	cfg.MaxValueBytes = fc.MaxValueBytes
	cfg.HardMemoryLimit = fc.HardMemoryLimit
	if fc.EvictionThreshold > 0 {
		cfg.EvictionThreshold = fc.EvictionThreshold
	}
	if fc.ShardCount > 0 {
		cfg.ShardCount = fc.ShardCount
	}
	if fc.MaxTTLSeconds > 0 {
		cfg.MaxTTL = time.Duration(fc.MaxTTLSeconds * float64(time.Second))
	}
	if fc.DefaultTTLSeconds > 0 {
		cfg.DefaultTTL = time.Duration(fc.DefaultTTLSeconds * float64(time.Second))
	}
	if fc.SweepIntervalSeconds > 0 {
		cfg.SweepInterval = time.Duration(fc.SweepIntervalSeconds * float64(time.Second))
	}

	if fc.Persistence.Enabled {
		cfg.PersistenceEnabled = true
		if fc.Persistence.Path != "" {
			cfg.PersistencePath = fc.Persistence.Path
		}
		switch fc.Persistence.Format {
		case string(cache.PersistenceFormatBinary):
			cfg.PersistenceFormat = cache.PersistenceFormatBinary
		case string(cache.PersistenceFormatJSON):
			cfg.PersistenceFormat = cache.PersistenceFormatJSON
		}
		if fc.Persistence.SafeWrite != nil {
			cfg.PersistenceSafeWrite = *fc.Persistence.SafeWrite
		}
	}

	return cfg
}
