package pager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageHeaderRoundTrip(t *testing.T) {
	h := &Header{Type: PageTypeBTreeLeaf, Flags: 0x02, ID: PageID(77), LSN: LSN(9001)}
	buf := make([]byte, HeaderSize)
	MarshalHeader(h, buf)

	got := UnmarshalHeader(buf)
	require.Equal(t, h.Type, got.Type)
	require.Equal(t, h.Flags, got.Flags)
	require.Equal(t, h.ID, got.ID)
	require.Equal(t, h.LSN, got.LSN)
}

func TestPageCRCDetectsCorruption(t *testing.T) {
	buf := NewPage(DefaultPageSize, PageTypeBTreeLeaf, PageID(5))
	copy(buf[HeaderSize:], []byte("hello"))
	SetPageCRC(buf)
	require.NoError(t, VerifyPageCRC(buf))

	buf[HeaderSize] ^= 0xFF
	err := VerifyPageCRC(buf)
	require.Error(t, err)
	var ce *CorruptionError
	require.ErrorAs(t, err, &ce)
}

func TestVRefRoundTrip(t *testing.T) {
	v := VRef{StartPage: 3, NPages: 4, Len: 12345, Checksum: 0xdeadbeef}
	enc := v.Encode()
	got, err := DecodeVRef(enc[:])
	require.NoError(t, err)
	require.Equal(t, v, got)
}
