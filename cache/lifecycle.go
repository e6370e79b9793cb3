package cache

// Reset clears every shard, resets the memory accountant and metric
// counters, and rebuilds the shard set from the current configuration.
// The sweeper, if running, keeps running against the fresh shards.
func (c *cacheImpl) Reset() error {
	if c.closed.Load() {
		return ErrClosed
	}
	newShards := make([]*shard, c.cfg.ShardCount)
	for i := range newShards {
		newShards[i] = newShard()
	}
	c.shards = newShards
	c.acct.reset()
	c.metrics.reset()
	return nil
}

// Close stops the background sweeper and marks the cache closed: Write,
// Update, Replace, Fetch and Reset then return ErrClosed. Read, Exists,
// Delete and the other read-only or removal operations keep working on
// the stored data; Close does not itself clear it.
func (c *cacheImpl) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.sweep.stop()
	return nil
}
