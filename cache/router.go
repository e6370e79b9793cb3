package cache

import "github.com/kiebor81/mudis/internal/util"

// shardIndex deterministically maps an effective key to a shard.
// Shard count is fixed after the cache is built; changing it requires a
// full Reset (see lifecycle.go).
func shardIndex(key string, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	return int(util.Fnv64aString(key) % uint64(shardCount))
}
