package index

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// LabelIndex is the B+ tree postings variant named in spec.md §4.5
// ("B+ tree postings: a tree keyed by (label, node_id) with empty
// versioned values") — chosen over the chunked-postings (`PostingStream`
// over run-length groups) variant because every other index/adjacency
// structure in this module is already a plain B+ tree, and a label's
// membership set changes one node at a time rather than in bulk loads
// that would reward a chunked run-length representation.
type LabelIndex struct {
	tree *btree.Tree
}

const labelKeyLen = 4 + 8

func labelKey(label uint32, node uint64) []byte {
	buf := make([]byte, labelKeyLen)
	binary.BigEndian.PutUint32(buf[0:4], label)
	binary.BigEndian.PutUint64(buf[4:12], node)
	return buf
}

// OpenLabelIndex attaches the label index to the root recorded in the meta
// page.
func OpenLabelIndex(p *pager.Pager, opts btree.Options) *LabelIndex {
	ra := btree.RootAccessor{
		Get: func(m *pager.Meta) pager.PageID { return m.LabelIndexRoot },
		Set: func(m *pager.Meta, id pager.PageID) { m.LabelIndexRoot = id },
	}
	return &LabelIndex{tree: btree.Open(p, ra, btree.RawCodec{}, btree.RawCodec{}, opts)}
}

// Insert records that node carries label, versioned at the writer's commit.
func (l *LabelIndex) Insert(w *pager.WriteGuard, label uint32, node uint64, hdr mvcc.VersionHeader) error {
	enc := hdr.Encode()
	return l.tree.Put(w, labelKey(label, node), append([]byte(nil), enc[:]...))
}

// Remove deletes the (label, node) posting.
func (l *LabelIndex) Remove(w *pager.WriteGuard, label uint32, node uint64) (bool, error) {
	return l.tree.Delete(w, labelKey(label, node))
}

// LabelKey exposes the tree's storage-key encoding for (label, node) so a
// deferred-flush batch can pre-sort entries in the same order PutRawKey
// will apply them (spec.md §4.6 "sort by encoded key").
func LabelKey(label uint32, node uint64) []byte { return labelKey(label, node) }

// PutRawKey inserts a posting by its exact encoded key and version-header
// bytes, the write counterpart to DeleteRawKey for batch application.
func (l *LabelIndex) PutRawKey(w *pager.WriteGuard, key, val []byte) error {
	return l.tree.Put(w, key, val)
}

// ScanEq streams every node id carrying label, in ascending order,
// filtered by MVCC visibility at snapshot.
func (l *LabelIndex) ScanEq(r pageReader, label uint32, snapshot mvcc.CommitID) (*PostingStream, error) {
	lower := labelKey(label, 0)
	upper := labelKey(label, ^uint64(0))
	cur, err := l.tree.Cursor(r, lower, upper)
	if err != nil {
		return nil, err
	}
	return newPostingStream(cur, func(k, v []byte) (uint64, bool, error) {
		hdr, err := mvcc.DecodeVersionHeader(v)
		if err != nil {
			return 0, false, err
		}
		if !hdr.VisibleAt(snapshot) {
			return 0, false, nil
		}
		return binary.BigEndian.Uint64(k[4:12]), true, nil
	}), nil
}

// StaleKeys returns the raw keys of every posting whose version header
// ended at or before horizon — history a vacuum pass may reclaim
// (spec.md §4.7 step 4 "delete postings whose owning row is no longer
// visible"). Postings are hard-deleted on Remove today, so this is
// ordinarily empty; it exists for any future maintenance path that
// patches a posting's header instead of removing it outright.
func (l *LabelIndex) StaleKeys(r pageReader, horizon mvcc.CommitID) ([][]byte, error) {
	return staleKeys(l.tree, r, horizon)
}

// DeleteRawKey removes a posting by its exact encoded key, as returned by
// StaleKeys.
func (l *LabelIndex) DeleteRawKey(w *pager.WriteGuard, key []byte) (bool, error) {
	return l.tree.Delete(w, key)
}

// StatsSnapshot returns the underlying tree's running counters.
func (l *LabelIndex) StatsSnapshot() btree.Stats { return l.tree.StatsSnapshot() }
