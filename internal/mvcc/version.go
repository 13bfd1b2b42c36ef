// Package mvcc implements the MVCC substrate layered over the node, edge,
// and adjacency trees: the version header carried by every row, the
// commit table that coordinates reader snapshots against writer commits,
// the version-log tree that chains superseded row versions, and a version
// cache that keeps recently visited history off the hot path.
package mvcc

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/pager"
)

// CommitID is a writer's globally ordered commit identifier; it is the
// unit snapshots and version headers are compared against.
type CommitID = pager.CommitID

// CommitMax is the sentinel meaning "visible forever" when used as a
// version header's end commit.
const CommitMax CommitID = 0

// VersionPtr addresses an entry in the version-log tree; zero is null.
type VersionPtr uint64

// NullVersionPtr references no historical version.
const NullVersionPtr VersionPtr = 0

// IsNull reports whether the pointer references no entry.
func (p VersionPtr) IsNull() bool { return p == NullVersionPtr }

// Bytes encodes the pointer as an 8-byte big-endian key, suitable for use
// directly as a version-log tree key.
func (p VersionPtr) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(p))
	return b
}

// DecodeVersionPtr reads a pointer previously produced by Bytes.
func DecodeVersionPtr(b []byte) (VersionPtr, error) {
	if len(b) < 8 {
		return 0, &pager.CorruptionError{Reason: "version pointer truncated"}
	}
	return VersionPtr(binary.BigEndian.Uint64(b)), nil
}

// Version header flags (spec.md §3 "Version header").
const (
	FlagTombstone      uint16 = 1 << 0
	FlagPayloadExternal uint16 = 1 << 1
	FlagPending        uint16 = 1 << 2
	FlagInlineHistory  uint16 = 1 << 3
)

// VersionHeaderLen is the fixed encoded size of a VersionHeader.
const VersionHeaderLen = 20

// VersionHeader is the 20-byte prefix carried by every MVCC row: node
// rows, edge rows, and adjacency-key values alike.
type VersionHeader struct {
	Begin      CommitID
	End        CommitID // CommitMax (zero) means unbounded
	Flags      uint16
	PayloadLen uint16
}

// VisibleAt reports whether this version is visible to a reader pinned at
// snapshot S: S >= begin and (end == 0 or S < end) (spec.md §9).
func (h VersionHeader) VisibleAt(snapshot CommitID) bool {
	if snapshot < h.Begin {
		return false
	}
	if h.End == CommitMax {
		return true
	}
	return snapshot < h.End
}

func (h VersionHeader) IsTombstone() bool      { return h.Flags&FlagTombstone != 0 }
func (h VersionHeader) PayloadExternal() bool  { return h.Flags&FlagPayloadExternal != 0 }
func (h VersionHeader) IsPending() bool        { return h.Flags&FlagPending != 0 }
func (h VersionHeader) HasInlineHistory() bool { return h.Flags&FlagInlineHistory != 0 }

// WithPending returns a copy with the PENDING flag set, used on rows whose
// visibility has not yet been published (the writer races ahead of a
// deferred index flush).
func (h VersionHeader) WithPending() VersionHeader {
	h.Flags |= FlagPending
	return h
}

// WithoutPending returns a copy with the PENDING flag cleared, applied by
// the finalize pass at the end of a mutation.
func (h VersionHeader) WithoutPending() VersionHeader {
	h.Flags &^= FlagPending
	return h
}

// Encode writes the header as 20 big-endian bytes.
func (h VersionHeader) Encode() [VersionHeaderLen]byte {
	var buf [VersionHeaderLen]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.Begin))
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.End))
	binary.BigEndian.PutUint16(buf[16:18], h.Flags)
	binary.BigEndian.PutUint16(buf[18:20], h.PayloadLen)
	return buf
}

// DecodeVersionHeader reads a header from the front of b.
func DecodeVersionHeader(b []byte) (VersionHeader, error) {
	if len(b) < VersionHeaderLen {
		return VersionHeader{}, &pager.CorruptionError{Reason: "version header truncated"}
	}
	return VersionHeader{
		Begin:      CommitID(binary.BigEndian.Uint64(b[0:8])),
		End:        CommitID(binary.BigEndian.Uint64(b[8:16])),
		Flags:      binary.BigEndian.Uint16(b[16:18]),
		PayloadLen: binary.BigEndian.Uint16(b[18:20]),
	}, nil
}
