package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/vmihailenco/msgpack/v5"
)

// snapshotVersion tags the on-disk container format so a future format
// change can refuse (or migrate) an incompatible file rather than silently
// misreading it.
const snapshotVersion = 1

// snapshotRecord is the persisted form of one live cache entry: the
// decoded logical value (not the raw codec payload), which LoadSnapshot
// re-encodes through the ordinary Write path. RemainingTTLSeconds is 0
// when the entry carries no TTL.
type snapshotRecord struct {
	Key                 string  `json:"key" msgpack:"key"`
	Namespace           string  `json:"namespace" msgpack:"namespace"`
	Value               any     `json:"value" msgpack:"value"`
	RemainingTTLSeconds float64 `json:"remaining_ttl_seconds" msgpack:"remaining_ttl_seconds"`
	Touches             uint64  `json:"touches" msgpack:"touches"`
}

// snapshotContainer is the full persisted file.
type snapshotContainer struct {
	Version    int              `json:"version" msgpack:"version"`
	Serializer string           `json:"serializer" msgpack:"serializer"`
	Compressed bool             `json:"compressed" msgpack:"compressed"`
	SavedAtNs  int64            `json:"saved_at_ns" msgpack:"saved_at_ns"`
	Records    []snapshotRecord `json:"records" msgpack:"records"`
}

// SaveSnapshot walks every shard under its mutex and writes every live
// (unexpired) entry, decoded back to its logical value, to
// cfg.PersistencePath. When cfg.PersistenceSafeWrite is set the write is
// atomic: the container is fully serialized to a temp file in the same
// directory, then renamed over the destination, so a crash or concurrent
// load never observes a partial write; otherwise the file is written in
// place. Failures are returned to the caller (the CLI logs and continues
// rather than crashing, per spec).
func (c *cacheImpl) SaveSnapshot() error {
	if !c.cfg.PersistenceEnabled {
		return nil
	}
	now := time.Now().UnixNano()
	container := snapshotContainer{
		Version:    snapshotVersion,
		Serializer: c.codec.Strategy(),
		Compressed: c.codec.Compressed(),
		SavedAtNs:  now,
	}
	for _, s := range c.shards {
		s.mu.Lock()
		for _, e := range s.m {
			if e.expired(now) {
				continue
			}
			v, err := c.codec.Decode(e.payload)
			if err != nil {
				s.mu.Unlock()
				return fmt.Errorf("mudis: decode %q while saving snapshot: %w", e.key, err)
			}
			var remaining float64
			if e.expiresAt != 0 {
				remaining = time.Duration(e.expiresAt - now).Seconds()
				if remaining <= 0 {
					continue
				}
			}
			container.Records = append(container.Records, snapshotRecord{
				Key:                 e.rawKey,
				Namespace:           e.ns,
				Value:               v,
				RemainingTTLSeconds: remaining,
				Touches:             e.touches,
			})
		}
		s.mu.Unlock()
	}

	data, err := c.marshalSnapshot(container)
	if err != nil {
		return fmt.Errorf("mudis: marshal snapshot: %w", err)
	}
	if err := writeFileAtomic(c.cfg.PersistencePath, data, c.cfg.PersistenceSafeWrite); err != nil {
		return fmt.Errorf("mudis: write snapshot: %w", err)
	}
	log.WithFields(log.Fields{
		"path":    c.cfg.PersistencePath,
		"records": len(container.Records),
	}).Info("mudis: snapshot saved")
	return nil
}

// LoadSnapshot restores every record in cfg.PersistencePath via the
// ordinary Write path, so all current limits, compression, LRU, and TTL
// semantics apply exactly as if the caller had written them just now. A
// missing file is a no-op. A file with a different version, serializer,
// or compression flag than this cache is refused outright rather than
// silently misread.
func (c *cacheImpl) LoadSnapshot() error {
	if !c.cfg.PersistenceEnabled {
		return nil
	}
	data, err := os.ReadFile(c.cfg.PersistencePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mudis: read snapshot: %w", err)
	}

	container, err := c.unmarshalSnapshot(data)
	if err != nil {
		return fmt.Errorf("mudis: unmarshal snapshot: %w", err)
	}
	if container.Version != snapshotVersion {
		return fmt.Errorf("mudis: snapshot version %d unsupported (want %d)", container.Version, snapshotVersion)
	}
	if container.Serializer != c.codec.Strategy() {
		return fmt.Errorf("mudis: snapshot serializer %q does not match configured %q", container.Serializer, c.codec.Strategy())
	}
	if container.Compressed != c.codec.Compressed() {
		return fmt.Errorf("mudis: snapshot compression %t does not match configured %t", container.Compressed, c.codec.Compressed())
	}
	if err := c.Reset(); err != nil {
		return err
	}

	ctx := context.Background()
	loaded := 0
	for _, rec := range container.Records {
		var ttl *time.Duration
		if rec.RemainingTTLSeconds > 0 {
			d := time.Duration(rec.RemainingTTLSeconds * float64(time.Second))
			ttl = &d
		}
		if err := c.Write(ctx, rec.Key, rec.Value, ttl, rec.Namespace); err != nil {
			log.WithFields(log.Fields{"key": rec.Key, "namespace": rec.Namespace, "err": err}).
				Warn("mudis: dropping unrestorable snapshot record")
			continue
		}
		loaded++
	}

	log.WithFields(log.Fields{
		"path":    c.cfg.PersistencePath,
		"records": loaded,
	}).Info("mudis: snapshot loaded")
	return nil
}

func (c *cacheImpl) marshalSnapshot(container snapshotContainer) ([]byte, error) {
	switch c.cfg.PersistenceFormat {
	case PersistenceFormatBinary:
		return msgpack.Marshal(container)
	default:
		return json.MarshalIndent(container, "", "  ")
	}
}

func (c *cacheImpl) unmarshalSnapshot(data []byte) (snapshotContainer, error) {
	var container snapshotContainer
	var err error
	switch c.cfg.PersistenceFormat {
	case PersistenceFormatBinary:
		err = msgpack.Unmarshal(data, &container)
	default:
		err = json.Unmarshal(data, &container)
	}
	return container, err
}

// writeFileAtomic writes data to path via a temp file in the same
// directory followed by a rename, so readers never observe a partial
// write. When safe is false it writes path directly, trading the crash
// guarantee for one fewer syscall (matching persistence_safe_write=false).
func writeFileAtomic(path string, data []byte, safe bool) error {
	if !safe {
		return os.WriteFile(path, data, 0o644)
	}
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".mudis-snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
