package adjacency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/pager"
)

func TestNodeAdjHeaderSetLookupClear(t *testing.T) {
	var h NodeAdjHeader
	require.True(t, h.Set(7, pager.PageID(100)))
	require.True(t, h.Set(8, pager.PageID(200)))

	ptr, ok := h.Lookup(7)
	require.True(t, ok)
	require.Equal(t, pager.PageID(100), ptr)

	require.True(t, h.Set(7, pager.PageID(101))) // update existing bucket
	ptr, ok = h.Lookup(7)
	require.True(t, ok)
	require.Equal(t, pager.PageID(101), ptr)

	h.Clear(8)
	_, ok = h.Lookup(8)
	require.False(t, ok)
}

func TestNodeAdjHeaderFillsUpAndReportsOverflow(t *testing.T) {
	var h NodeAdjHeader
	for i := uint32(0); i < NodeAdjInlineBuckets; i++ {
		require.True(t, h.Set(i, pager.PageID(i+1)))
	}
	require.False(t, h.Set(NodeAdjInlineBuckets, pager.PageID(999)))
	require.Len(t, h.Types(), NodeAdjInlineBuckets)
}

func TestWriteReadNodeAdjPageRoundTrip(t *testing.T) {
	p := openTestPager(t)
	page := &NodeAdjPage{Owner: 55}
	page.Out.Set(1, pager.PageID(10))
	page.In.Set(2, pager.PageID(20))
	page.In.Overflow = true

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id, err := AllocateNodeAdjPage(w, p.PageSize(), page.Owner)
	require.NoError(t, err)
	require.NoError(t, WriteNodeAdjPage(w, p.PageSize(), id, page))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	got, err := ReadNodeAdjPage(r, id)
	require.NoError(t, err)
	require.Equal(t, page.Owner, got.Owner)
	ptr, ok := got.Out.Lookup(1)
	require.True(t, ok)
	require.Equal(t, pager.PageID(10), ptr)
	require.True(t, got.In.Overflow)
}

func TestAllocateNodeAdjPageStartsEmpty(t *testing.T) {
	p := openTestPager(t)
	w, err := p.BeginWrite()
	require.NoError(t, err)
	id, err := AllocateNodeAdjPage(w, p.PageSize(), 1)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	got, err := ReadNodeAdjPage(r, id)
	require.NoError(t, err)
	require.Empty(t, got.Out.Types())
	require.Empty(t, got.In.Types())
}
