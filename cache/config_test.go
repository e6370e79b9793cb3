package cache

import (
	"errors"
	"testing"
	"time"
)

func TestConfig_DefaultIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"max bytes zero", func(c *Config) { c.MaxBytes = 0 }, true},
		{"max bytes negative", func(c *Config) { c.MaxBytes = -1 }, true},
		{"max value bytes negative", func(c *Config) { c.MaxValueBytes = -1 }, true},
		{"max value bytes exceeds max bytes", func(c *Config) {
			c.MaxValueBytes = c.MaxBytes + 1
		}, true},
		{"max value bytes zero disables limit", func(c *Config) { c.MaxValueBytes = 0 }, false},
		{"eviction threshold zero", func(c *Config) { c.EvictionThreshold = 0 }, true},
		{"eviction threshold too high", func(c *Config) { c.EvictionThreshold = 1.5 }, true},
		{"eviction threshold at boundary", func(c *Config) { c.EvictionThreshold = 1 }, false},
		{"shard count zero", func(c *Config) { c.ShardCount = 0 }, true},
		{"shard count negative", func(c *Config) { c.ShardCount = -4 }, true},
		{"negative max ttl", func(c *Config) { c.MaxTTL = -time.Second }, true},
		{"negative default ttl", func(c *Config) { c.DefaultTTL = -time.Second }, true},
		{"persistence enabled without path", func(c *Config) {
			c.PersistenceEnabled = true
			c.PersistencePath = ""
		}, true},
		{"persistence with bad format", func(c *Config) {
			c.PersistenceEnabled = true
			c.PersistenceFormat = PersistenceFormat("xml")
		}, true},
		{"persistence enabled and valid", func(c *Config) {
			c.PersistenceEnabled = true
			c.PersistencePath = "snap.db"
			c.PersistenceFormat = PersistenceFormatBinary
		}, false},
		{"unknown serializer", func(c *Config) { c.Serializer = "protobuf" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tc.wantErr && err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfig_ThresholdBytes(t *testing.T) {
	cfg := Config{MaxBytes: 1000, EvictionThreshold: 0.9, ShardCount: 4}
	if got := cfg.thresholdBytes(); got != 900 {
		t.Fatalf("expected 900, got %d", got)
	}
	if got := cfg.perShardThreshold(); got != 225 {
		t.Fatalf("expected 225, got %d", got)
	}
}
