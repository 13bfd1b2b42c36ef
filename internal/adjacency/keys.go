// Package adjacency implements the B+ tree adjacency path and the
// Index-Free Adjacency (IFA) per-node pages/segments (spec.md §4.4).
package adjacency

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/pager"
)

// pageReader is satisfied by both *pager.ReadGuard and *pager.WriteGuard,
// letting lookups run unchanged whether called from a reader's snapshot or
// from inside an in-flight write transaction.
type pageReader interface {
	GetPage(pager.PageID) ([]byte, error)
}

// Dir is the direction of an edge relative to the node being queried
// (original_source/adjacency.rs "Dir").
type Dir uint8

const (
	DirOut Dir = iota
	DirIn
)

func (d Dir) String() string {
	if d == DirIn {
		return "in"
	}
	return "out"
}

// fwdKeyLen/degreeKeyLen are the fixed encoded sizes of the
// adjacency B+ tree keys (spec.md §3 "Adjacency keys").
const (
	fwdKeyLen    = 8 + 4 + 8 + 8
	degreeKeyLen = 8 + 1 + 4
)

// EncodeFwdKey builds the forward adjacency key: src(8) ∥ type(4) ∥ dst(8) ∥
// edge(8), all big-endian.
func EncodeFwdKey(src uint64, typ uint32, dst uint64, edge uint64) []byte {
	buf := make([]byte, fwdKeyLen)
	binary.BigEndian.PutUint64(buf[0:8], src)
	binary.BigEndian.PutUint32(buf[8:12], typ)
	binary.BigEndian.PutUint64(buf[12:20], dst)
	binary.BigEndian.PutUint64(buf[20:28], edge)
	return buf
}

// EncodeRevKey builds the reverse adjacency key: dst(8) ∥ type(4) ∥ src(8) ∥
// edge(8).
func EncodeRevKey(dst uint64, typ uint32, src uint64, edge uint64) []byte {
	return EncodeFwdKey(dst, typ, src, edge)
}

// DecodeFwdKey parses a forward key into (src, type, dst, edge).
func DecodeFwdKey(b []byte) (src uint64, typ uint32, dst uint64, edge uint64, err error) {
	if len(b) != fwdKeyLen {
		return 0, 0, 0, 0, &pager.CorruptionError{Reason: "adjacency forward key has wrong length"}
	}
	src = binary.BigEndian.Uint64(b[0:8])
	typ = binary.BigEndian.Uint32(b[8:12])
	dst = binary.BigEndian.Uint64(b[12:20])
	edge = binary.BigEndian.Uint64(b[20:28])
	return
}

// DecodeRevKey parses a reverse key into (dst, type, src, edge) — same
// shape as DecodeFwdKey with the first and third fields swapped in meaning.
func DecodeRevKey(b []byte) (dst uint64, typ uint32, src uint64, edge uint64, err error) {
	return DecodeFwdKey(b)
}

// FwdBounds returns [lower, upper] encoded-key bounds for a (node, type?)
// forward scan; typ==nil means "any type".
func FwdBounds(node uint64, typ *uint32) (lower, upper []byte) {
	lower = make([]byte, fwdKeyLen)
	upper = make([]byte, fwdKeyLen)
	binary.BigEndian.PutUint64(lower[0:8], node)
	binary.BigEndian.PutUint64(upper[0:8], node)
	if typ != nil {
		binary.BigEndian.PutUint32(lower[8:12], *typ)
		binary.BigEndian.PutUint32(upper[8:12], *typ)
	} else {
		for i := 8; i < 12; i++ {
			upper[i] = 0xFF
		}
	}
	for i := 12; i < fwdKeyLen; i++ {
		upper[i] = 0xFF
	}
	return lower, upper
}

// RevBounds is FwdBounds applied to the reverse tree.
func RevBounds(node uint64, typ *uint32) (lower, upper []byte) { return FwdBounds(node, typ) }

// EncodeDegreeKey builds the degree-cache key: node(8) ∥ dir(1) ∥ type(4).
func EncodeDegreeKey(node uint64, dir Dir, typ uint32) []byte {
	buf := make([]byte, degreeKeyLen)
	binary.BigEndian.PutUint64(buf[0:8], node)
	buf[8] = byte(dir)
	binary.BigEndian.PutUint32(buf[9:13], typ)
	return buf
}

// DecodeDegreeKey parses a degree-cache key into (node, dir, type).
func DecodeDegreeKey(b []byte) (node uint64, dir Dir, typ uint32, err error) {
	if len(b) != degreeKeyLen {
		return 0, 0, 0, &pager.CorruptionError{Reason: "degree key has wrong length"}
	}
	node = binary.BigEndian.Uint64(b[0:8])
	dir = Dir(b[8])
	typ = binary.BigEndian.Uint32(b[9:13])
	return
}

// Neighbor is one edge endpoint discovered during a neighbor expansion.
type Neighbor struct {
	Node NodeOrEdgeID
	Edge NodeOrEdgeID
	Type uint32
}

// NodeOrEdgeID is a plain u64 identifier; named distinctly from the root
// package's NodeId/EdgeId so this package has no dependency on it.
type NodeOrEdgeID = uint64

// ExpandOpts controls neighbor expansion query behavior.
type ExpandOpts struct {
	DistinctNodes bool
}
