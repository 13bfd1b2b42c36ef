package adjacency

import (
	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// Adjacency coordinates every adjacency storage strategy named in spec.md
// §4.4: the plain B+ tree forward/reverse path, the Index-Free-Adjacency
// per-node page/segment path, its overflow type-map tree, and the
// non-authoritative degree cache that shadows both paths.
type Adjacency struct {
	p        *pager.Pager
	pageSize int

	Trees    *Trees
	Overflow *OverflowTree
	Degree   *DegreeCache
}

// Open attaches every adjacency component tree to the roots recorded in
// the meta page.
func Open(p *pager.Pager, pageSize int, opts btree.Options) *Adjacency {
	return &Adjacency{
		p:        p,
		pageSize: pageSize,
		Trees:    OpenTrees(p, opts),
		Overflow: OpenOverflowTree(p, opts),
		Degree:   OpenDegreeCache(p, opts),
	}
}

// InsertTreeEdge adds one directed edge to the B+ tree adjacency path,
// used for nodes that carry no IFA page, and keeps the degree cache in
// step (spec.md §4.4 first paragraph).
func (a *Adjacency) InsertTreeEdge(w *pager.WriteGuard, src uint64, typ uint32, dst, edge uint64, hdr mvcc.VersionHeader) error {
	if err := a.Trees.Insert(w, src, typ, dst, edge, hdr); err != nil {
		return err
	}
	if err := a.Degree.Increment(w, src, DirOut, typ); err != nil {
		return err
	}
	return a.Degree.Increment(w, dst, DirIn, typ)
}

// RemoveTreeEdge removes one directed edge from the B+ tree adjacency path.
func (a *Adjacency) RemoveTreeEdge(w *pager.WriteGuard, src uint64, typ uint32, dst, edge uint64) (bool, error) {
	found, err := a.Trees.Remove(w, src, typ, dst, edge)
	if err != nil || !found {
		return found, err
	}
	if err := a.Degree.Decrement(w, src, DirOut, typ); err != nil {
		return true, err
	}
	return true, a.Degree.Decrement(w, dst, DirIn, typ)
}

// segmentPtr returns the current segment pointer for (owner, dir, typ),
// consulting the inline buckets first and falling back to the overflow
// tree (spec.md §4.4 "IFA overflow").
func (a *Adjacency) segmentPtr(r pageReader, page *NodeAdjPage, dir Dir, typ uint32) (pager.PageID, error) {
	if ptr, ok := page.Header(dir).Lookup(typ); ok {
		return ptr, nil
	}
	if !page.Header(dir).Overflow {
		return pager.NullPageID, nil
	}
	ptr, ok, err := a.Overflow.Get(r, page.Owner, dir, typ)
	if err != nil {
		return pager.NullPageID, err
	}
	if !ok {
		return pager.NullPageID, nil
	}
	return ptr, nil
}

func (a *Adjacency) setSegmentPtr(w *pager.WriteGuard, page *NodeAdjPage, dir Dir, typ uint32, ptr pager.PageID) error {
	if page.Header(dir).Set(typ, ptr) {
		return nil
	}
	page.Header(dir).Overflow = true
	return a.Overflow.Set(w, page.Owner, dir, typ, ptr)
}

func (a *Adjacency) clearSegmentPtr(w *pager.WriteGuard, page *NodeAdjPage, dir Dir, typ uint32) error {
	if _, ok := page.Header(dir).Lookup(typ); ok {
		page.Header(dir).Clear(typ)
		return nil
	}
	_, err := a.Overflow.Remove(w, page.Owner, dir, typ)
	return err
}

// InsertIFA applies the copy-on-write segment update algorithm to add one
// (neighbor, edge) entry to page's (dir, typ) adjacency list, mutating
// page in place; the caller is responsible for persisting page with
// WriteNodeAdjPage inside the same write transaction (spec.md §4.4 "CoW
// segment update", steps 1-5).
func (a *Adjacency) InsertIFA(w *pager.WriteGuard, page *NodeAdjPage, dir Dir, typ uint32, neighbor, edge uint64, xmin mvcc.CommitID) error {
	oldPtr, err := a.segmentPtr(w, page, dir, typ)
	if err != nil {
		return err
	}

	var seg *AdjSegment
	if oldPtr == pager.NullPageID {
		seg = NewAdjSegment(page.Owner, dir, typ, xmin)
		seg.Header.Xmax = mvcc.CommitMax
	} else {
		old, err := ReadSegment(w, a.pageSize, oldPtr)
		if err != nil {
			return err
		}
		seg = CowClone(old, oldPtr, xmin)
	}
	seg.Insert(AdjEntry{Neighbor: neighbor, Edge: edge, Xmin: xmin, Xmax: mvcc.CommitMax})

	newPtr, err := WriteSegment(w, a.pageSize, seg)
	if err != nil {
		return err
	}
	if err := a.setSegmentPtr(w, page, dir, typ, newPtr); err != nil {
		return err
	}
	if oldPtr != pager.NullPageID {
		if err := MarkSegmentSuperseded(w, oldPtr, xmin); err != nil {
			return err
		}
	}
	return a.Degree.Increment(w, page.Owner, dir, typ)
}

// RemoveIFA applies the symmetric copy-on-write removal: if the resulting
// segment becomes empty its bucket is cleared rather than pointing at an
// empty page (spec.md §4.4 "Delete is symmetric").
func (a *Adjacency) RemoveIFA(w *pager.WriteGuard, page *NodeAdjPage, dir Dir, typ uint32, neighbor, edge uint64, xmin mvcc.CommitID) (bool, error) {
	oldPtr, err := a.segmentPtr(w, page, dir, typ)
	if err != nil || oldPtr == pager.NullPageID {
		return false, err
	}
	old, err := ReadSegment(w, a.pageSize, oldPtr)
	if err != nil {
		return false, err
	}
	seg := CowClone(old, oldPtr, xmin)
	if !seg.Remove(neighbor, edge) {
		return false, nil
	}

	if seg.IsEmpty() {
		if err := a.clearSegmentPtr(w, page, dir, typ); err != nil {
			return false, err
		}
	} else {
		newPtr, err := WriteSegment(w, a.pageSize, seg)
		if err != nil {
			return false, err
		}
		if err := a.setSegmentPtr(w, page, dir, typ, newPtr); err != nil {
			return false, err
		}
	}
	if err := MarkSegmentSuperseded(w, oldPtr, xmin); err != nil {
		return false, err
	}
	if err := a.Degree.Decrement(w, page.Owner, dir, typ); err != nil {
		return true, err
	}
	return true, nil
}

// NeighborsIFA walks the visible-segment chain for (dir, typ) on page,
// filtering entries by MVCC visibility at snapshot. typ == nil expands
// every type the page (and its overflow entries) currently knows about.
func (a *Adjacency) NeighborsIFA(r pageReader, page *NodeAdjPage, dir Dir, typ *uint32, snapshot mvcc.CommitID) ([]Neighbor, error) {
	types, err := a.typesFor(r, page, dir, typ)
	if err != nil {
		return nil, err
	}

	var out []Neighbor
	for _, ty := range types {
		ptr, err := a.segmentPtr(r, page, dir, ty)
		if err != nil {
			return nil, err
		}
		for ptr != pager.NullPageID {
			seg, err := ReadSegment(r, a.pageSize, ptr)
			if err != nil {
				return nil, err
			}
			if seg.Header.VisibleAt(snapshot) {
				for _, e := range seg.Entries {
					if e.VisibleAt(snapshot) {
						out = append(out, Neighbor{Node: e.Neighbor, Edge: e.Edge, Type: ty})
					}
				}
				break
			}
			ptr = seg.Header.PrevVersion
		}
	}
	return out, nil
}

func (a *Adjacency) typesFor(r pageReader, page *NodeAdjPage, dir Dir, typ *uint32) ([]uint32, error) {
	if typ != nil {
		return []uint32{*typ}, nil
	}
	types := page.Header(dir).Types()
	if page.Header(dir).Overflow {
		extra, err := a.Overflow.Types(r, page.Owner, dir)
		if err != nil {
			return nil, err
		}
		types = append(types, extra...)
	}
	return types, nil
}

// DegreeIFA returns the live (non-authoritative) count of visible entries
// across the whole segment chain for (owner, dir, typ) by trusting the
// cache (spec.md §4.4 "degree cache"). Callers needing a guaranteed-correct
// count must walk NeighborsIFA/Neighbors and count directly.
func (a *Adjacency) DegreeIFA(r pageReader, owner uint64, dir Dir, typ uint32) (uint64, error) {
	return a.Degree.Get(r, owner, dir, typ)
}
