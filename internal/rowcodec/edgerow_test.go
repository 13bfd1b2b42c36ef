package rowcodec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

func TestEncodeDecodeEdgeRowRoundTrip(t *testing.T) {
	p := openTestPager(t)
	vs := &pager.VStore{}
	w, err := p.BeginWrite()
	require.NoError(t, err)

	row := EdgeRow{
		Header:     mvcc.VersionHeader{Begin: 2, Flags: mvcc.FlagInlineHistory},
		Prev:       mvcc.VersionPtr(4),
		Src:        10,
		Dst:        20,
		Type:       7,
		Props:      map[PropID]PropValue{1: int64(5), 2: "friend_since"},
		RowHash:    0x1122334455,
		HasRowHash: true,
		InlineHist: []byte("old-edge-value"),
	}

	enc, err := EncodeEdgeRow(w, p.PageSize(), vs, row, 48, 200)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	got, err := DecodeEdgeRow(r, p.PageSize(), vs, enc)
	require.NoError(t, err)

	require.Equal(t, row.Header, got.Header)
	require.Equal(t, row.Prev, got.Prev)
	require.Equal(t, row.Src, got.Src)
	require.Equal(t, row.Dst, got.Dst)
	require.Equal(t, row.Type, got.Type)
	require.Equal(t, row.Props, got.Props)
	require.Equal(t, row.RowHash, got.RowHash)
	require.True(t, got.HasRowHash)
	require.Equal(t, row.InlineHist, got.InlineHist)
}

func TestEncodeDecodeEdgeRowMinimal(t *testing.T) {
	p := openTestPager(t)
	vs := &pager.VStore{}
	w, err := p.BeginWrite()
	require.NoError(t, err)

	row := EdgeRow{
		Header: mvcc.VersionHeader{Begin: 1, End: 9, Flags: mvcc.FlagTombstone},
		Prev:   mvcc.NullVersionPtr,
		Src:    1,
		Dst:    2,
		Type:   0,
	}
	enc, err := EncodeEdgeRow(w, p.PageSize(), vs, row, 48, 200)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	got, err := DecodeEdgeRow(r, p.PageSize(), vs, enc)
	require.NoError(t, err)
	require.True(t, got.Header.IsTombstone())
	require.Empty(t, got.Props)
	require.False(t, got.HasRowHash)
	require.Nil(t, got.InlineHist)
}

func TestDecodeEdgeRowRejectsTruncatedHeader(t *testing.T) {
	_, err := DecodeEdgeRow(nil, 4096, nil, []byte{1, 2})
	require.Error(t, err)
}
