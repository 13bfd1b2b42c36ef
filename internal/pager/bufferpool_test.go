package pager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPoolReadThroughCache(t *testing.T) {
	p := openTestPager(t)

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id := w.AllocatePage()
	buf, err := w.PageMut(id)
	require.NoError(t, err)
	copy(buf[HeaderSize:], []byte("cached"))
	w.PutPage(id, buf)
	require.NoError(t, p.Commit(w))

	require.Positive(t, p.CachedPages())

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	got, err := r.GetPage(id)
	require.NoError(t, err)
	require.Equal(t, []byte("cached"), got[HeaderSize:HeaderSize+6])

	// Mutating the returned buffer must never corrupt the cache.
	got[HeaderSize] = 'X'
	got2, err := r.GetPage(id)
	require.NoError(t, err)
	require.Equal(t, byte('c'), got2[HeaderSize])
}

func TestBufferPoolSkipsPinnedPageOnConcurrentGet(t *testing.T) {
	p := openTestPager(t)

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id := w.AllocatePage()
	buf, err := w.PageMut(id)
	require.NoError(t, err)
	require.True(t, p.cache.pinned[id] > 0)

	// While pinned, a concurrent put (as would come from another page's
	// write sharing the cache) must not overwrite the in-flight entry.
	p.cache.put(id, make([]byte, p.pageSize))
	_, ok := p.cache.get(id)
	require.False(t, ok)

	w.PutPage(id, buf)
	require.NoError(t, p.Commit(w))
	_, ok = p.cache.get(id)
	require.True(t, ok)
}

func TestBufferPoolAbortDoesNotCacheDiscardedPage(t *testing.T) {
	p := openTestPager(t)

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id := w.AllocatePage()
	_, err = w.PageMut(id)
	require.NoError(t, err)
	require.NoError(t, p.Abort(w))

	_, ok := p.cache.get(id)
	require.False(t, ok)
	require.Equal(t, 0, p.cache.pinned[id])
}
