package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/mvcc"
)

func TestPropertyIndexInsertScanEqRemove(t *testing.T) {
	p := openTestPager(t)
	idx := OpenPropertyIndex(p, btree.Options{})

	hdr := mvcc.VersionHeader{Begin: 1}
	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, idx.Insert(w, int64(42), 3, hdr))
	require.NoError(t, idx.Insert(w, int64(42), 1, hdr))
	require.NoError(t, idx.Insert(w, int64(42), 2, hdr))
	require.NoError(t, idx.Insert(w, int64(7), 9, hdr))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	stream, err := idx.ScanEq(r, int64(42), 5)
	require.NoError(t, err)
	nodes, err := stream.Collect()
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, nodes)
	r.Close()

	w, err = p.BeginWrite()
	require.NoError(t, err)
	found, err := idx.Remove(w, int64(42), 2)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, p.Commit(w))

	r, err = p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	stream, err = idx.ScanEq(r, int64(42), 5)
	require.NoError(t, err)
	nodes, err = stream.Collect()
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3}, nodes)
}

func TestPropertyIndexScanRangeBounds(t *testing.T) {
	p := openTestPager(t)
	idx := OpenPropertyIndex(p, btree.Options{})

	hdr := mvcc.VersionHeader{Begin: 1}
	w, err := p.BeginWrite()
	require.NoError(t, err)
	for i, v := range []int64{10, 20, 30, 40, 50} {
		require.NoError(t, idx.Insert(w, v, uint64(i+1), hdr))
	}
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	stream, err := idx.ScanRange(r, int64(20), int64(40), 5)
	require.NoError(t, err)
	nodes, err := stream.Collect()
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 3}, nodes)

	stream, err = idx.ScanRange(r, nil, int64(20), 5)
	require.NoError(t, err)
	nodes, err = stream.Collect()
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, nodes)

	stream, err = idx.ScanRange(r, int64(40), nil, 5)
	require.NoError(t, err)
	nodes, err = stream.Collect()
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 5}, nodes)
}
