package rowcodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

func TestEncodeDecodeNodeRowRoundTrip(t *testing.T) {
	p := openTestPager(t)
	vs := &pager.VStore{}
	w, err := p.BeginWrite()
	require.NoError(t, err)

	row := NodeRow{
		Header:     mvcc.VersionHeader{Begin: 1, Flags: mvcc.FlagInlineHistory},
		Prev:       mvcc.VersionPtr(9),
		Labels:     []uint32{5, 1, 1, 3},
		Props:      map[PropID]PropValue{1: "alice", 2: int64(30)},
		AdjPage:    pager.PageID(17),
		InlineAdj:  []byte{0xAA, 0xBB},
		RowHash:    0xdeadbeef,
		HasRowHash: true,
		InlineHist: []byte("history-blob"),
	}

	enc, err := EncodeNodeRow(w, p.PageSize(), vs, row, 48, 200)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	got, err := DecodeNodeRow(r, p.PageSize(), vs, enc)
	require.NoError(t, err)

	require.Equal(t, row.Header, got.Header)
	require.Equal(t, row.Prev, got.Prev)
	require.Equal(t, []uint32{1, 3, 5}, got.Labels)
	require.Equal(t, row.Props, got.Props)
	require.Equal(t, row.AdjPage, got.AdjPage)
	require.Equal(t, row.InlineAdj, got.InlineAdj)
	require.Equal(t, row.RowHash, got.RowHash)
	require.True(t, got.HasRowHash)
	require.Equal(t, row.InlineHist, got.InlineHist)
}

func TestEncodeDecodeNodeRowMinimal(t *testing.T) {
	p := openTestPager(t)
	vs := &pager.VStore{}
	w, err := p.BeginWrite()
	require.NoError(t, err)

	row := NodeRow{
		Header:  mvcc.VersionHeader{Begin: 1},
		Prev:    mvcc.NullVersionPtr,
		AdjPage: pager.NullPageID,
	}
	enc, err := EncodeNodeRow(w, p.PageSize(), vs, row, 48, 200)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	got, err := DecodeNodeRow(r, p.PageSize(), vs, enc)
	require.NoError(t, err)
	require.Empty(t, got.Labels)
	require.Empty(t, got.Props)
	require.Equal(t, pager.NullPageID, got.AdjPage)
	require.False(t, got.HasRowHash)
	require.Nil(t, got.InlineHist)
}

func TestEncodeNodeRowOverflowsPropertyBag(t *testing.T) {
	p := openTestPager(t)
	vs := &pager.VStore{}
	w, err := p.BeginWrite()
	require.NoError(t, err)

	props := map[PropID]PropValue{}
	for i := PropID(0); i < 20; i++ {
		props[i] = strings.Repeat("y", 10)
	}
	row := NodeRow{Header: mvcc.VersionHeader{Begin: 1}, Props: props}
	enc, err := EncodeNodeRow(w, p.PageSize(), vs, row, 48, 16)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	got, err := DecodeNodeRow(r, p.PageSize(), vs, enc)
	require.NoError(t, err)
	require.Equal(t, props, got.Props)
}

func TestDecodeNodeRowRejectsTruncatedHeader(t *testing.T) {
	_, err := DecodeNodeRow(nil, 4096, nil, []byte{1, 2, 3})
	require.Error(t, err)
}
