package mvcc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/pager"
)

func openTestLog(t *testing.T) (*pager.Pager, *Log) {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(pager.Config{Path: filepath.Join(dir, "log.db"), PageSize: pager.MinPageSize})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p, OpenLog(p, btree.Options{})
}

func TestLogAppendAndGet(t *testing.T) {
	p, log := openTestLog(t)
	w, err := p.BeginWrite()
	require.NoError(t, err)

	entry := LogEntry{
		Space:     SpaceNode,
		LogicalID: 7,
		Header:    VersionHeader{Begin: 1, End: 5, Flags: FlagTombstone, PayloadLen: 3},
		Prev:      NullVersionPtr,
		Payload:   []byte("abc"),
	}
	ptr, err := log.Append(w, entry)
	require.NoError(t, err)
	require.NotEqual(t, NullVersionPtr, ptr)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	got, ok, err := log.Get(r, ptr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry, got)
}

func TestLogGetMissingPointer(t *testing.T) {
	p, log := openTestLog(t)
	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	_, ok, err := log.Get(r, VersionPtr(999))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogDeleteRemovesEntry(t *testing.T) {
	p, log := openTestLog(t)
	cache := NewVersionCache(4, 0)
	w, err := p.BeginWrite()
	require.NoError(t, err)
	entry := LogEntry{Space: SpaceEdge, LogicalID: 1, Header: VersionHeader{Begin: 1, PayloadLen: 0}}
	ptr, err := log.Append(w, entry)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	cache.Put(ptr, entry)

	w2, err := p.BeginWrite()
	require.NoError(t, err)
	ok, err := log.Delete(w2, ptr, cache)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, p.Commit(w2))

	_, found := cache.Get(ptr)
	require.False(t, found)

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	_, ok, err = log.Get(r, ptr)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogGetCachedPopulatesOnMiss(t *testing.T) {
	p, log := openTestLog(t)
	cache := NewVersionCache(4, 0)
	w, err := p.BeginWrite()
	require.NoError(t, err)
	entry := LogEntry{Space: SpaceNode, LogicalID: 2, Header: VersionHeader{Begin: 1, PayloadLen: 0}}
	ptr, err := log.Append(w, entry)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 0, cache.Len())
	got, ok, err := log.GetCached(r, ptr, cache)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry, got)
	require.Equal(t, 1, cache.Len())

	cached, ok := cache.Get(ptr)
	require.True(t, ok)
	require.Equal(t, entry, cached)
}
