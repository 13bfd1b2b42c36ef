package adjacency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/mvcc"
)

func TestSegmentInsertSortedOrderAndDedup(t *testing.T) {
	seg := NewAdjSegment(1, DirOut, 7, 10)
	seg.Insert(AdjEntry{Neighbor: 5, Edge: 1, Xmin: 10})
	seg.Insert(AdjEntry{Neighbor: 2, Edge: 1, Xmin: 10})
	seg.Insert(AdjEntry{Neighbor: 5, Edge: 1, Xmin: 10}) // duplicate, no-op
	seg.Insert(AdjEntry{Neighbor: 5, Edge: 2, Xmin: 10})

	require.Len(t, seg.Entries, 3)
	require.Equal(t, uint64(2), seg.Entries[0].Neighbor)
	require.Equal(t, uint64(5), seg.Entries[1].Neighbor)
	require.Equal(t, uint64(1), seg.Entries[1].Edge)
	require.Equal(t, uint64(5), seg.Entries[2].Neighbor)
	require.Equal(t, uint64(2), seg.Entries[2].Edge)
}

func TestSegmentRemove(t *testing.T) {
	seg := NewAdjSegment(1, DirOut, 7, 10)
	seg.Insert(AdjEntry{Neighbor: 5, Edge: 1})
	seg.Insert(AdjEntry{Neighbor: 6, Edge: 1})

	require.True(t, seg.Remove(5, 1))
	require.False(t, seg.Remove(5, 1))
	require.Len(t, seg.Entries, 1)
	require.False(t, seg.IsEmpty())
	require.True(t, seg.Remove(6, 1))
	require.True(t, seg.IsEmpty())
}

func TestWriteReadSegmentRoundTrip(t *testing.T) {
	p := openTestPager(t)
	seg := NewAdjSegment(42, DirOut, 3, 1)
	for i := uint64(0); i < 5; i++ {
		seg.Insert(AdjEntry{Neighbor: i, Edge: i + 100, Xmin: 1})
	}

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id, err := WriteSegment(w, p.PageSize(), seg)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	got, err := ReadSegment(r, p.PageSize(), id)
	require.NoError(t, err)
	require.Equal(t, seg.Header.Owner, got.Header.Owner)
	require.Equal(t, uint32(len(seg.Entries)), got.Header.EntryCount)
	require.Equal(t, seg.Entries, got.Entries)
}

func TestWriteReadSegmentSpillsToExtensionPages(t *testing.T) {
	p := openTestPager(t)
	seg := NewAdjSegment(1, DirOut, 0, 1)
	const n = 500 // forces extension pages at MinPageSize
	for i := uint64(0); i < n; i++ {
		seg.Insert(AdjEntry{Neighbor: i, Edge: i})
	}

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id, err := WriteSegment(w, p.PageSize(), seg)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	got, err := ReadSegment(r, p.PageSize(), id)
	require.NoError(t, err)
	require.Len(t, got.Entries, n)
	require.Equal(t, seg.Entries, got.Entries)
}

func TestMarkSegmentSupersededPatchesXmaxInPlace(t *testing.T) {
	p := openTestPager(t)
	seg := NewAdjSegment(1, DirOut, 0, 1)
	seg.Insert(AdjEntry{Neighbor: 9, Edge: 9})

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id, err := WriteSegment(w, p.PageSize(), seg)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	w, err = p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, MarkSegmentSuperseded(w, id, mvcc.CommitID(5)))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	got, err := ReadSegment(r, p.PageSize(), id)
	require.NoError(t, err)
	require.Equal(t, mvcc.CommitID(5), got.Header.Xmax)
	require.Len(t, got.Entries, 1)
	require.False(t, got.Header.VisibleAt(10))
	require.True(t, got.Header.VisibleAt(3))
}
