package pager

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// bufferPool is the page-level read cache sitting in front of the raw file
// (spec.md §1 "a page buffer pool with LRU eviction and pin counts"),
// generalized from the teacher's table-level BufferPool/LRUQueue pattern
// down to individual pages. A page is pinned for the duration of a writer
// holding it dirty, which keeps eviction from ever racing a page someone
// is actively mutating; everything else is plain LRU.
type bufferPool struct {
	mu     sync.Mutex
	lru    *lru.Cache[PageID, []byte]
	pinned map[PageID]int
}

func newBufferPool(capacity int) *bufferPool {
	if capacity <= 0 {
		capacity = 4096
	}
	c, err := lru.New[PageID, []byte](capacity)
	if err != nil {
		panic(err) // only fails for non-positive size, guarded above
	}
	return &bufferPool{lru: c, pinned: make(map[PageID]int)}
}

// get returns a defensive copy of a cached page, if present.
func (b *bufferPool) get(id PageID) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.lru.Get(id)
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	return cp, true
}

// put stores a defensive copy of buf under id, skipping pinned pages so a
// concurrent writer's in-flight image is never displaced mid-edit.
func (b *bufferPool) put(id PageID, buf []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pinned[id] > 0 {
		return
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	b.lru.Add(id, cp)
}

// pin marks id as in-flight for a writer, excluding it from eviction and
// from being served stale to a reader until unpin.
func (b *bufferPool) pin(id PageID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pinned[id]++
	b.lru.Remove(id)
}

// unpin releases one pin taken by pin, re-admitting id to the cache.
func (b *bufferPool) unpin(id PageID, buf []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.pinned[id]; n > 1 {
		b.pinned[id] = n - 1
		return
	}
	delete(b.pinned, id)
	cp := make([]byte, len(buf))
	copy(cp, buf)
	b.lru.Add(id, cp)
}

// unpinDiscard releases one pin on id without caching its (possibly never
// persisted) dirty buffer, used on abort.
func (b *bufferPool) unpinDiscard(id PageID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.pinned[id]; n > 1 {
		b.pinned[id] = n - 1
		return
	}
	delete(b.pinned, id)
}

// invalidate drops a cached page outright, used after a direct overwrite
// whose new contents the caller doesn't hand back through unpin.
func (b *bufferPool) invalidate(id PageID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lru.Remove(id)
}

func (b *bufferPool) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lru.Len()
}
