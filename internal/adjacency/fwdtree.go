package adjacency

import (
	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// Trees is the B+ tree adjacency path (spec.md §4.4 "B+ tree adjacency"):
// two trees, forward and reverse, keyed by the encoded adjacency key and
// storing nothing but a 20-byte version header per edge ("versioned
// unit") so MVCC visibility filters the scan directly.
type Trees struct {
	p   *pager.Pager
	Fwd *btree.Tree
	Rev *btree.Tree
}

// OpenTrees attaches the forward/reverse adjacency trees to the roots
// recorded in the meta page.
func OpenTrees(p *pager.Pager, opts btree.Options) *Trees {
	fwdRA := btree.RootAccessor{
		Get: func(m *pager.Meta) pager.PageID { return m.AdjFwdRoot },
		Set: func(m *pager.Meta, id pager.PageID) { m.AdjFwdRoot = id },
	}
	revRA := btree.RootAccessor{
		Get: func(m *pager.Meta) pager.PageID { return m.AdjRevRoot },
		Set: func(m *pager.Meta, id pager.PageID) { m.AdjRevRoot = id },
	}
	return &Trees{
		p:   p,
		Fwd: btree.Open(p, fwdRA, btree.RawCodec{}, btree.RawCodec{}, opts),
		Rev: btree.Open(p, revRA, btree.RawCodec{}, btree.RawCodec{}, opts),
	}
}

// Insert puts (fwd_key, versioned_unit) and (rev_key, versioned_unit) for
// one directed edge (spec.md §4.4 first paragraph).
func (t *Trees) Insert(w *pager.WriteGuard, src uint64, typ uint32, dst, edge uint64, hdr mvcc.VersionHeader) error {
	enc := hdr.Encode()
	if err := t.Fwd.Put(w, EncodeFwdKey(src, typ, dst, edge), append([]byte(nil), enc[:]...)); err != nil {
		return err
	}
	return t.Rev.Put(w, EncodeRevKey(dst, typ, src, edge), append([]byte(nil), enc[:]...))
}

// Remove deletes both the forward and reverse entries for one directed
// edge, returning whether the forward entry existed.
func (t *Trees) Remove(w *pager.WriteGuard, src uint64, typ uint32, dst, edge uint64) (bool, error) {
	found, err := t.Fwd.Delete(w, EncodeFwdKey(src, typ, dst, edge))
	if err != nil {
		return false, err
	}
	if _, err := t.Rev.Delete(w, EncodeRevKey(dst, typ, src, edge)); err != nil {
		return false, err
	}
	return found, nil
}

// Neighbors streams (src, type, dst, edge) tuples for a (node, type?)
// forward or reverse scan, filtering by MVCC visibility at snapshot.
func (t *Trees) Neighbors(src pageReader, dir Dir, node uint64, typ *uint32, snapshot mvcc.CommitID) ([]Neighbor, error) {
	tree := t.Fwd
	if dir == DirIn {
		tree = t.Rev
	}
	lower, upper := FwdBounds(node, typ)
	cur, err := tree.Cursor(src, lower, upper)
	if err != nil {
		return nil, err
	}
	var out []Neighbor
	for {
		k, v, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		hdr, err := mvcc.DecodeVersionHeader(v.([]byte))
		if err != nil {
			return nil, err
		}
		if !hdr.VisibleAt(snapshot) {
			continue
		}
		_, ty, other, edge, err := DecodeFwdKey(k.([]byte))
		if err != nil {
			return nil, err
		}
		out = append(out, Neighbor{Node: other, Edge: edge, Type: ty})
	}
	return out, nil
}
