package adjacency

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/pager"
)

// OverflowTree maps (owner, dir, type) -> segment page id for nodes whose
// distinct edge-type count exceeds NodeAdjInlineBuckets (spec.md §4.4
// "Overflow spills into a separate B+ tree keyed by owner").
type OverflowTree struct {
	tree *btree.Tree
}

// OpenOverflowTree attaches the overflow tree to the root recorded in the
// meta page.
func OpenOverflowTree(p *pager.Pager, opts btree.Options) *OverflowTree {
	ra := btree.RootAccessor{
		Get: func(m *pager.Meta) pager.PageID { return m.AdjOverflowRoot },
		Set: func(m *pager.Meta, id pager.PageID) { m.AdjOverflowRoot = id },
	}
	return &OverflowTree{tree: btree.Open(p, ra, btree.RawCodec{}, btree.RawCodec{}, opts)}
}

// Set records the segment pointer for (owner, dir, typ).
func (o *OverflowTree) Set(w *pager.WriteGuard, owner uint64, dir Dir, typ uint32, ptr pager.PageID) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(ptr))
	return o.tree.Put(w, EncodeDegreeKey(owner, dir, typ), v[:])
}

// Get looks up the segment pointer for (owner, dir, typ).
func (o *OverflowTree) Get(r pageReader, owner uint64, dir Dir, typ uint32) (pager.PageID, bool, error) {
	v, ok, err := o.tree.Get(r, EncodeDegreeKey(owner, dir, typ))
	if err != nil || !ok {
		return pager.NullPageID, false, err
	}
	return pager.PageID(binary.BigEndian.Uint64(v.([]byte))), true, nil
}

// Remove deletes the overflow entry for (owner, dir, typ).
func (o *OverflowTree) Remove(w *pager.WriteGuard, owner uint64, dir Dir, typ uint32) (bool, error) {
	return o.tree.Delete(w, EncodeDegreeKey(owner, dir, typ))
}

// AllSegmentPointers returns every segment page id registered in the
// overflow tree, across every owner/dir/type — the enumeration vacuum
// uses to walk and reclaim each segment's CoW history
// (spec.md §4.7 step 3).
func (o *OverflowTree) AllSegmentPointers(src pageReader) ([]pager.PageID, error) {
	cur, err := o.tree.Cursor(src, nil, nil)
	if err != nil {
		return nil, err
	}
	var out []pager.PageID
	for {
		_, v, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, pager.PageID(binary.BigEndian.Uint64(v.([]byte))))
	}
}

// Types streams every edge type spilled into the overflow tree for
// (owner, dir).
func (o *OverflowTree) Types(src pageReader, owner uint64, dir Dir) ([]uint32, error) {
	lower := EncodeDegreeKey(owner, dir, 0)
	upper := EncodeDegreeKey(owner, dir, ^uint32(0))
	cur, err := o.tree.Cursor(src, lower, upper)
	if err != nil {
		return nil, err
	}
	var out []uint32
	for {
		k, _, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		_, _, typ, err := DecodeDegreeKey(k.([]byte))
		if err != nil {
			return nil, err
		}
		out = append(out, typ)
	}
	return out, nil
}
