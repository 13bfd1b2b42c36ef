package adjacency

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/pager"
)

// DegreeCache is a non-authoritative B+ tree of per-(node, dir, type) edge
// counts (spec.md §4.4 "degree cache"): it is maintained alongside every
// adjacency mutation but is never trusted on its own — a full-scan mismatch
// against the adjacency trees is corruption, not a value to silently
// reconcile against.
type DegreeCache struct {
	tree *btree.Tree
}

// OpenDegreeCache attaches the degree cache to the root recorded in the
// meta page.
func OpenDegreeCache(p *pager.Pager, opts btree.Options) *DegreeCache {
	ra := btree.RootAccessor{
		Get: func(m *pager.Meta) pager.PageID { return m.DegreeRoot },
		Set: func(m *pager.Meta, id pager.PageID) { m.DegreeRoot = id },
	}
	return &DegreeCache{tree: btree.Open(p, ra, btree.RawCodec{}, btree.RawCodec{}, opts)}
}

// Get returns the cached count for (node, dir, typ), 0 if absent. r may be
// either a *pager.ReadGuard or a *pager.WriteGuard.
func (d *DegreeCache) Get(r pageReader, node uint64, dir Dir, typ uint32) (uint64, error) {
	v, ok, err := d.tree.Get(r, EncodeDegreeKey(node, dir, typ))
	if err != nil || !ok {
		return 0, err
	}
	return binary.BigEndian.Uint64(v.([]byte)), nil
}

// Adjust adds delta (positive or negative) to the cached count for
// (node, dir, typ), deleting the entry if the result reaches zero.
func (d *DegreeCache) Adjust(w *pager.WriteGuard, node uint64, dir Dir, typ uint32, delta int64) error {
	key := EncodeDegreeKey(node, dir, typ)
	current := uint64(0)
	v, ok, err := d.tree.Get(w, key)
	if err != nil {
		return err
	}
	if ok {
		current = binary.BigEndian.Uint64(v.([]byte))
	}
	next := int64(current) + delta
	if next <= 0 {
		if ok {
			_, err := d.tree.Delete(w, key)
			return err
		}
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(next))
	return d.tree.Put(w, key, buf[:])
}

// Increment bumps the cached count for (node, dir, typ) by one.
func (d *DegreeCache) Increment(w *pager.WriteGuard, node uint64, dir Dir, typ uint32) error {
	return d.Adjust(w, node, dir, typ, 1)
}

// Decrement lowers the cached count for (node, dir, typ) by one.
func (d *DegreeCache) Decrement(w *pager.WriteGuard, node uint64, dir Dir, typ uint32) error {
	return d.Adjust(w, node, dir, typ, -1)
}

// Verify compares the cached count against an authoritative count supplied
// by the caller and reports whether the two match, along with the cached
// value. It never modifies the cache; err is set only when reading the
// cached count fails, and callers decide whether a mismatch is tolerated.
func (d *DegreeCache) Verify(r pageReader, node uint64, dir Dir, typ uint32, authoritative uint64) (matches bool, cached uint64, err error) {
	cached, err = d.Get(r, node, dir, typ)
	if err != nil {
		return false, 0, err
	}
	return cached == authoritative, cached, nil
}
