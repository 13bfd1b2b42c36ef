package adjacency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/btree"
)

func TestDegreeCacheIncrementDecrement(t *testing.T) {
	p := openTestPager(t)
	d := OpenDegreeCache(p, btree.Options{})

	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, d.Increment(w, 1, DirOut, 5))
	require.NoError(t, d.Increment(w, 1, DirOut, 5))
	require.NoError(t, d.Increment(w, 1, DirOut, 5))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	count, err := d.Get(r, 1, DirOut, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
	r.Close()

	w, err = p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, d.Decrement(w, 1, DirOut, 5))
	require.NoError(t, p.Commit(w))

	r, err = p.BeginRead()
	require.NoError(t, err)
	count, err = d.Get(r, 1, DirOut, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)
	r.Close()
}

func TestDegreeCacheDropsToZeroDeletesEntry(t *testing.T) {
	p := openTestPager(t)
	d := OpenDegreeCache(p, btree.Options{})

	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, d.Increment(w, 2, DirIn, 1))
	require.NoError(t, d.Decrement(w, 2, DirIn, 1))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	count, err := d.Get(r, 2, DirIn, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), count)
}

func TestDegreeCacheVerify(t *testing.T) {
	p := openTestPager(t)
	d := OpenDegreeCache(p, btree.Options{})

	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, d.Increment(w, 3, DirOut, 2))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	matches, cached, err := d.Verify(r, 3, DirOut, 2, 1)
	require.NoError(t, err)
	require.True(t, matches)
	require.Equal(t, uint64(1), cached)

	matches, _, err = d.Verify(r, 3, DirOut, 2, 7)
	require.NoError(t, err)
	require.False(t, matches)
}
