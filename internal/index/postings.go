package index

import (
	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/mvcc"
)

// decodeFn extracts a candidate NodeId from one (key, value) pair and
// reports whether the posting should be yielded — the reconfirm step named
// in spec.md §4.5 ("the filter rereads the row to verify").
type decodeFn func(key, val []byte) (node uint64, ok bool, err error)

// PostingStream is a forward-only iterator of ascending NodeIds produced
// by a label or property index scan (spec.md §4.5 "Scans").
type PostingStream struct {
	cur    *btree.Cursor
	decode decodeFn
}

func newPostingStream(cur *btree.Cursor, decode decodeFn) *PostingStream {
	return &PostingStream{cur: cur, decode: decode}
}

// Next returns the next node id in the stream, or ok == false once
// exhausted. Postings whose decode rejects them (stale or invisible) are
// skipped transparently.
func (s *PostingStream) Next() (node uint64, ok bool, err error) {
	for {
		k, v, found, err := s.cur.Next()
		if err != nil {
			return 0, false, err
		}
		if !found {
			return 0, false, nil
		}
		node, keep, err := s.decode(k.([]byte), v.([]byte))
		if err != nil {
			return 0, false, err
		}
		if keep {
			return node, true, nil
		}
	}
}

// Collect drains the stream into a slice; for scans expected to be small
// (tests, catalog introspection) rather than the hot query path.
func (s *PostingStream) Collect() ([]uint64, error) {
	var out []uint64
	for {
		n, ok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, n)
	}
}

// staleKeys walks every entry in tree and returns the raw keys of
// postings whose version header ended at or before horizon.
func staleKeys(tree *btree.Tree, r pageReader, horizon mvcc.CommitID) ([][]byte, error) {
	cur, err := tree.Cursor(r, nil, nil)
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for {
		k, v, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		hdr, err := mvcc.DecodeVersionHeader(v.([]byte))
		if err != nil {
			return nil, err
		}
		if hdr.End != mvcc.CommitMax && hdr.End <= horizon {
			out = append(out, append([]byte(nil), k.([]byte)...))
		}
	}
}
