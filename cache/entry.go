package cache

// entry is the stored record for one effective key. It doubles as the LRU
// list node the way the teacher's node[K,V] type does: the intrusive
// prev/next links live alongside the payload so promotion and eviction
// never need a second map lookup.
type entry struct {
	key    string // effective key: "{ns}:{rawKey}" or rawKey
	ns     string // "" when the key carries no namespace
	rawKey string
	payload []byte

	expiresAt int64 // UnixNano; 0 means "no TTL"
	createdAt int64 // UnixNano of the most recent write
	touches   uint64

	size int64 // key.bytesize + payload.bytesize, cached for O(1) accounting

	prev, next *entry
}

func newEntry(key, ns, rawKey string, payload []byte, expiresAt int64, createdAt int64) *entry {
	return &entry{
		key:       key,
		ns:        ns,
		rawKey:    rawKey,
		payload:   payload,
		expiresAt: expiresAt,
		createdAt: createdAt,
		size:      int64(len(key)) + int64(len(payload)),
	}
}

func (e *entry) expired(now int64) bool {
	return e.expiresAt != 0 && e.expiresAt <= now
}
