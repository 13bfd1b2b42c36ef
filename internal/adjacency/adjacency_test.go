package adjacency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/mvcc"
)

func TestTreeEdgeInsertRemoveAndNeighbors(t *testing.T) {
	p := openTestPager(t)
	adj := Open(p, p.PageSize(), btree.Options{})

	hdr := mvcc.VersionHeader{Begin: 1}
	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, adj.InsertTreeEdge(w, 1, 9, 2, 100, hdr))
	require.NoError(t, adj.InsertTreeEdge(w, 1, 9, 3, 101, hdr))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	out, err := adj.Trees.Neighbors(r, DirOut, 1, nil, 5)
	require.NoError(t, err)
	require.Len(t, out, 2)

	deg, err := adj.Degree.Get(r, 1, DirOut, 9)
	require.NoError(t, err)
	require.Equal(t, uint64(2), deg)
	r.Close()

	w, err = p.BeginWrite()
	require.NoError(t, err)
	found, err := adj.RemoveTreeEdge(w, 1, 9, 2, 100)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, p.Commit(w))

	r, err = p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	out, err = adj.Trees.Neighbors(r, DirOut, 1, nil, 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	deg, err = adj.Degree.Get(r, 1, DirOut, 9)
	require.NoError(t, err)
	require.Equal(t, uint64(1), deg)
}

func TestIFAInsertAndNeighbors(t *testing.T) {
	p := openTestPager(t)
	adj := Open(p, p.PageSize(), btree.Options{})

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id, err := AllocateNodeAdjPage(w, p.PageSize(), 1)
	require.NoError(t, err)
	page, err := ReadNodeAdjPage(w, id)
	require.NoError(t, err)

	require.NoError(t, adj.InsertIFA(w, page, DirOut, 9, 2, 100, 1))
	require.NoError(t, adj.InsertIFA(w, page, DirOut, 9, 3, 101, 1))
	require.NoError(t, WriteNodeAdjPage(w, p.PageSize(), id, page))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	page, err = ReadNodeAdjPage(r, id)
	require.NoError(t, err)
	out, err := adj.NeighborsIFA(r, page, DirOut, nil, 5)
	require.NoError(t, err)
	require.Len(t, out, 2)

	deg, err := adj.DegreeIFA(r, 1, DirOut, 9)
	require.NoError(t, err)
	require.Equal(t, uint64(2), deg)
	r.Close()

	w, err = p.BeginWrite()
	require.NoError(t, err)
	page, err = ReadNodeAdjPage(w, id)
	require.NoError(t, err)
	found, err := adj.RemoveIFA(w, page, DirOut, 9, 2, 100, 2)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, WriteNodeAdjPage(w, p.PageSize(), id, page))
	require.NoError(t, p.Commit(w))

	r, err = p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	page, err = ReadNodeAdjPage(r, id)
	require.NoError(t, err)
	out, err = adj.NeighborsIFA(r, page, DirOut, nil, 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, uint64(3), out[0].Node)
}

func TestIFARemoveToEmptyClearsBucket(t *testing.T) {
	p := openTestPager(t)
	adj := Open(p, p.PageSize(), btree.Options{})

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id, err := AllocateNodeAdjPage(w, p.PageSize(), 1)
	require.NoError(t, err)
	page, err := ReadNodeAdjPage(w, id)
	require.NoError(t, err)

	require.NoError(t, adj.InsertIFA(w, page, DirOut, 9, 2, 100, 1))
	found, err := adj.RemoveIFA(w, page, DirOut, 9, 2, 100, 2)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, WriteNodeAdjPage(w, p.PageSize(), id, page))
	require.NoError(t, p.Commit(w))

	_, ok := page.Out.Lookup(9)
	require.False(t, ok)

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	out, err := adj.NeighborsIFA(r, page, DirOut, nil, 5)
	require.NoError(t, err)
	require.Empty(t, out)
}
