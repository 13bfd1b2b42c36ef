// Package btree implements the persistent, copy-on-write slotted-page B+
// tree described by spec.md §4.1: fence keys, sibling links on every
// level, parent pointers, split/merge/rebalance on delete, and in-place
// fast paths for insert and delete.
package btree

// KeyCodec encodes/decodes keys and provides a total order over their
// encoded byte form. All internal comparisons operate on encoded bytes.
type KeyCodec interface {
	Encode(key any) []byte
	Decode(b []byte) any
	Compare(a, b []byte) int
}

// ValCodec encodes/decodes values stored at leaves.
type ValCodec interface {
	Encode(val any) []byte
	Decode(b []byte) any
}

// RawCodec is both a KeyCodec and ValCodec operating directly on []byte,
// used by the adjacency and index trees whose keys/values are already
// pre-encoded binary strings.
type RawCodec struct{}

func (RawCodec) Encode(key any) []byte { return key.([]byte) }
func (RawCodec) Decode(b []byte) any {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
func (RawCodec) Compare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
