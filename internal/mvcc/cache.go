package mvcc

import (
	"hash/maphash"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultShardCount is used when a caller doesn't request a specific
// shard count (spec.md §3 "sharded LRU version cache").
const defaultShardCount = 16

// VersionCache keeps recently fetched version-log entries off the B+ tree
// read path. It is an approximation: eviction may drop an entry a
// concurrent reader still wants, which only costs a tree fetch, never
// correctness.
type VersionCache struct {
	seed   maphash.Seed
	shards []*lru.Cache[VersionPtr, LogEntry]
}

// NewVersionCache builds a cache with capacityPerShard entries across
// shardCount independent shards (spec.md §6 "version_cache_shards");
// shardCount <= 0 falls back to defaultShardCount.
func NewVersionCache(capacityPerShard, shardCount int) *VersionCache {
	if capacityPerShard <= 0 {
		capacityPerShard = 256
	}
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	c := &VersionCache{seed: maphash.MakeSeed(), shards: make([]*lru.Cache[VersionPtr, LogEntry], shardCount)}
	for i := range c.shards {
		shard, err := lru.New[VersionPtr, LogEntry](capacityPerShard)
		if err != nil {
			panic(err) // only fails for non-positive size, guarded above
		}
		c.shards[i] = shard
	}
	return c
}

func (c *VersionCache) shardFor(ptr VersionPtr) *lru.Cache[VersionPtr, LogEntry] {
	var h maphash.Hash
	h.SetSeed(c.seed)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(ptr >> (8 * i))
	}
	h.Write(b[:])
	return c.shards[h.Sum64()%uint64(len(c.shards))]
}

// Get returns a cached entry for ptr, if present.
func (c *VersionCache) Get(ptr VersionPtr) (LogEntry, bool) {
	return c.shardFor(ptr).Get(ptr)
}

// Put inserts or refreshes an entry.
func (c *VersionCache) Put(ptr VersionPtr, e LogEntry) {
	c.shardFor(ptr).Add(ptr, e)
}

// Invalidate drops a cached entry, used when a version is deleted by vacuum.
func (c *VersionCache) Invalidate(ptr VersionPtr) {
	c.shardFor(ptr).Remove(ptr)
}

// Len returns the total number of entries cached across every shard.
func (c *VersionCache) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.Len()
	}
	return n
}
