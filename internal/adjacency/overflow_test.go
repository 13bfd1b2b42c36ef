package adjacency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/pager"
)

func TestOverflowTreeSetGetRemove(t *testing.T) {
	p := openTestPager(t)
	ov := OpenOverflowTree(p, btree.Options{})

	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, ov.Set(w, 1, DirOut, 9, pager.PageID(123)))
	require.NoError(t, ov.Set(w, 1, DirOut, 10, pager.PageID(124)))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	ptr, ok, err := ov.Get(r, 1, DirOut, 9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pager.PageID(123), ptr)

	types, err := ov.Types(r, 1, DirOut)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{9, 10}, types)
	r.Close()

	w, err = p.BeginWrite()
	require.NoError(t, err)
	found, err := ov.Remove(w, 1, DirOut, 9)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, p.Commit(w))

	r, err = p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	_, ok, err = ov.Get(r, 1, DirOut, 9)
	require.NoError(t, err)
	require.False(t, ok)
}
