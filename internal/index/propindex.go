package index

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
	"github.com/sombradb/sombra/internal/rowcodec"
)

// PropertyIndex is a B+ tree keyed by `encoded_value_key ∥ node_id` with
// empty versioned values (spec.md §4.5 "Property index"). One tree serves
// every (label, prop) pair with a catalog entry of kind KindProperty. The
// key carries no label or prop id, so postings of all defs share one key
// space (the same value on the same node under two defs is one key), and
// a scan returns every node with a matching value key whatever its label
// or prop; callers filter the results by label and prop.
type PropertyIndex struct {
	tree *btree.Tree
}

// OpenPropertyIndex attaches the property index to the root recorded in
// the meta page.
func OpenPropertyIndex(p *pager.Pager, opts btree.Options) *PropertyIndex {
	ra := btree.RootAccessor{
		Get: func(m *pager.Meta) pager.PageID { return m.PropBTreeRoot },
		Set: func(m *pager.Meta, id pager.PageID) { m.PropBTreeRoot = id },
	}
	return &PropertyIndex{tree: btree.Open(p, ra, btree.RawCodec{}, btree.RawCodec{}, opts)}
}

func propKey(valueKey []byte, node uint64) []byte {
	buf := make([]byte, len(valueKey)+8)
	copy(buf, valueKey)
	binary.BigEndian.PutUint64(buf[len(valueKey):], node)
	return buf
}

// Insert records that node currently has value v for the indexed property.
func (p *PropertyIndex) Insert(w *pager.WriteGuard, v rowcodec.PropValue, node uint64, hdr mvcc.VersionHeader) error {
	vk, err := EncodeValueKey(v)
	if err != nil {
		return err
	}
	enc := hdr.Encode()
	return p.tree.Put(w, propKey(vk, node), append([]byte(nil), enc[:]...))
}

// Remove deletes the (value, node) posting.
func (p *PropertyIndex) Remove(w *pager.WriteGuard, v rowcodec.PropValue, node uint64) (bool, error) {
	vk, err := EncodeValueKey(v)
	if err != nil {
		return false, err
	}
	return p.tree.Delete(w, propKey(vk, node))
}

// PropKey exposes the tree's storage-key encoding for (encoded value,
// node) so a deferred-flush batch can pre-sort entries in the same order
// PutRawKey will apply them (spec.md §4.6 "sort by encoded key").
func PropKey(valueKey []byte, node uint64) []byte { return propKey(valueKey, node) }

// PutRawKey inserts a posting by its exact encoded key and version-header
// bytes, the write counterpart to DeleteRawKey for batch application.
func (p *PropertyIndex) PutRawKey(w *pager.WriteGuard, key, val []byte) error {
	return p.tree.Put(w, key, val)
}

// ScanEq streams every node id with exactly value v, in ascending node
// order, filtered by MVCC visibility at snapshot.
func (p *PropertyIndex) ScanEq(r pageReader, v rowcodec.PropValue, snapshot mvcc.CommitID) (*PostingStream, error) {
	vk, err := EncodeValueKey(v)
	if err != nil {
		return nil, err
	}
	lower := propKey(vk, 0)
	upper := propKey(vk, ^uint64(0))
	return p.scanBounds(r, lower, upper, snapshot)
}

// ScanRange streams every node id whose value falls within
// [startBound, endBound) of the encoded value key space, in ascending
// (value, node) order, filtered by MVCC visibility at snapshot. A nil
// bound means unbounded on that side.
func (p *PropertyIndex) ScanRange(r pageReader, startBound, endBound rowcodec.PropValue, snapshot mvcc.CommitID) (*PostingStream, error) {
	var lower, upper []byte
	if startBound != nil {
		vk, err := EncodeValueKey(startBound)
		if err != nil {
			return nil, err
		}
		lower = propKey(vk, 0)
	}
	if endBound != nil {
		vk, err := EncodeValueKey(endBound)
		if err != nil {
			return nil, err
		}
		upper = propKey(vk, 0)
	}
	return p.scanBounds(r, lower, upper, snapshot)
}

// StaleKeys returns the raw keys of every posting whose version header
// ended at or before horizon, mirroring LabelIndex.StaleKeys.
func (p *PropertyIndex) StaleKeys(r pageReader, horizon mvcc.CommitID) ([][]byte, error) {
	return staleKeys(p.tree, r, horizon)
}

// DeleteRawKey removes a posting by its exact encoded key, as returned by
// StaleKeys.
func (p *PropertyIndex) DeleteRawKey(w *pager.WriteGuard, key []byte) (bool, error) {
	return p.tree.Delete(w, key)
}

// StatsSnapshot returns the underlying tree's running counters.
func (p *PropertyIndex) StatsSnapshot() btree.Stats { return p.tree.StatsSnapshot() }

func (p *PropertyIndex) scanBounds(r pageReader, lower, upper []byte, snapshot mvcc.CommitID) (*PostingStream, error) {
	var lowerAny, upperAny any
	if lower != nil {
		lowerAny = lower
	}
	if upper != nil {
		upperAny = upper
	}
	cur, err := p.tree.Cursor(r, lowerAny, upperAny)
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
		if len(k) < 8 {
			return 0, false, &pager.CorruptionError{Reason: "property index key truncated"}
		}
		return binary.BigEndian.Uint64(k[len(k)-8:]), true, nil
	}), nil
}
