package mvcc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionHeaderRoundTrip(t *testing.T) {
	h := VersionHeader{Begin: 42, End: 0, Flags: FlagTombstone | FlagPayloadExternal, PayloadLen: 0}
	enc := h.Encode()
	got, err := DecodeVersionHeader(enc[:])
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestVisibleAtBounds(t *testing.T) {
	h := VersionHeader{Begin: 5, End: 10, PayloadLen: 16}
	require.False(t, h.VisibleAt(4))
	require.True(t, h.VisibleAt(5))
	require.True(t, h.VisibleAt(9))
	require.False(t, h.VisibleAt(10))
}

func TestVisibleAtUnboundedEnd(t *testing.T) {
	h := VersionHeader{Begin: 3, End: CommitMax, PayloadLen: 12}
	require.True(t, h.VisibleAt(100))
}

func TestPendingFlagRoundTrip(t *testing.T) {
	h := VersionHeader{Begin: 1}
	require.False(t, h.IsPending())
	h = h.WithPending()
	require.True(t, h.IsPending())
	h = h.WithoutPending()
	require.False(t, h.IsPending())
}

func TestVersionPtrRoundTrip(t *testing.T) {
	ptr := VersionPtr(123456789)
	got, err := DecodeVersionPtr(ptr.Bytes())
	require.NoError(t, err)
	require.Equal(t, ptr, got)
}

func TestDecodeVersionHeaderTruncated(t *testing.T) {
	_, err := DecodeVersionHeader([]byte{1, 2, 3})
	require.Error(t, err)
}
