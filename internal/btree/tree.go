package btree

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sombradb/sombra/internal/pager"
)

// Options configures one tree's fill policy and fast paths (spec.md §4.1).
type Options struct {
	FillTarget      float64 // default 0.85 — leaf fill below which a delete rebalances
	InternalMinFill float64 // default 0.40 — floor that triggers rebalancing
	ChecksumVerify  bool
	InPlace         bool // enable in-place insert/delete fast paths
}

func (o *Options) withDefaults() {
	if o.FillTarget <= 0 {
		o.FillTarget = 0.85
	}
	if o.InternalMinFill <= 0 {
		o.InternalMinFill = 0.40
	}
}

// Stats are per-tree counters exposed as a snapshot (spec.md §4.1 "Statistics").
type Stats struct {
	InternalSearches uint64
	LeafSearches     uint64
	Splits           uint64
	Merges           uint64
	InPlaceOps       uint64
	RebuildOps       uint64
}

// RootAccessor lets a Tree read and persist its root page id through
// whatever meta field the owning component has reserved for it (node
// tree, edge tree, adjacency trees, index trees, version log, ...).
type RootAccessor struct {
	Get func(*pager.Meta) pager.PageID
	Set func(*pager.Meta, pager.PageID)
}

// Tree is a persistent, copy-on-write slotted-page B+ tree.
type Tree struct {
	p    *pager.Pager
	Key  KeyCodec
	Val  ValCodec
	opts Options
	ra   RootAccessor

	mu    sync.Mutex
	root  pager.PageID
	stats Stats
}

// pageSource is satisfied by both pager.ReadGuard and pager.WriteGuard.
type pageSource interface {
	GetPage(pager.PageID) ([]byte, error)
}

// Open attaches a Tree handle to whatever root page id the accessor
// currently reports; root creation is deferred to the first Put.
func Open(p *pager.Pager, ra RootAccessor, kc KeyCodec, vc ValCodec, opts Options) *Tree {
	opts.withDefaults()
	m := p.Meta()
	return &Tree{p: p, Key: kc, Val: vc, opts: opts, ra: ra, root: ra.Get(m)}
}

// Root returns the tree's current root page id (0 if the tree is empty).
func (t *Tree) Root() pager.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// StatsSnapshot returns a copy of the tree's running counters.
func (t *Tree) StatsSnapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Tree) capacity() int {
	return t.p.PageSize() - payloadOffset() - payloadHeaderSize
}

// fetch reads a page and optionally verifies its checksum.
func (t *Tree) fetch(src pageSource, id pager.PageID) ([]byte, pageHead, error) {
	buf, err := src.GetPage(id)
	if err != nil {
		return nil, pageHead{}, err
	}
	if t.opts.ChecksumVerify {
		if err := pager.VerifyPageCRC(buf); err != nil {
			return nil, pageHead{}, err
		}
	}
	return buf, decodeHead(buf), nil
}

// Get performs a point lookup, descending from the root (spec.md §4.1
// "Point lookup (get)").
func (t *Tree) Get(r pageSource, key any) (any, bool, error) {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()
	if root == pager.NullPageID {
		return nil, false, nil
	}
	ek := t.Key.Encode(key)

	id := root
	for {
		buf, h, err := t.fetch(r, id)
		if err != nil {
			return nil, false, err
		}
		if h.kind == kindLeaf {
			t.bump(&t.stats.LeafSearches, 1)
			entries := leafEntries(buf, h)
			idx, found := searchEntries(entries, ek, t.Key)
			if !found {
				return nil, false, nil
			}
			return t.Val.Decode(entries[idx].val), true, nil
		}
		t.bump(&t.stats.InternalSearches, 1)
		kids := internalEntries(buf, h)
		id = descendChild(kids, ek, t.Key)
	}
}

func (t *Tree) bump(counter *uint64, n uint64) {
	t.mu.Lock()
	*counter += n
	t.mu.Unlock()
}

// searchEntries binary-searches sorted leaf entries for ek, returning the
// insertion point and whether an exact match was found.
func searchEntries(entries []entry, ek []byte, kc KeyCodec) (int, bool) {
	idx := sort.Search(len(entries), func(i int) bool { return kc.Compare(entries[i].key, ek) >= 0 })
	if idx < len(entries) && kc.Compare(entries[idx].key, ek) == 0 {
		return idx, true
	}
	return idx, false
}

// descendChild finds the last internal entry whose separator is <= ek and
// returns its child id (spec.md §4.1 "descend into the last child whose
// separator is <= the target").
func descendChild(kids []internalEntry, ek []byte, kc KeyCodec) pager.PageID {
	i := sort.Search(len(kids), func(i int) bool { return kc.Compare(kids[i].sep, ek) > 0 })
	if i == 0 {
		return kids[0].child
	}
	return kids[i-1].child
}

// Put is an upsert: inserting an existing key overwrites its value
// (spec.md §4.1 "Duplicate key insert is an upsert").
func (t *Tree) Put(w *pager.WriteGuard, key, val any) error {
	ek := t.Key.Encode(key)
	ev := t.Val.Encode(val)

	t.mu.Lock()
	root := t.root
	t.mu.Unlock()

	if root == pager.NullPageID {
		id := w.AllocatePage()
		rec := encodeLeafRecord(ek, ev)
		buf := buildPage(t.p.PageSize(), kindLeaf, id, pager.NullPageID, pager.NullPageID, pager.NullPageID, nil, nil, [][]byte{rec})
		w.PutPage(id, buf)
		t.publishRoot(w, id)
		return nil
	}

	split, err := t.insert(w, root, ek, ev)
	if err != nil {
		return err
	}
	if split != nil {
		newRootID := w.AllocatePage()
		oldRootBuf, err := w.GetPage(root)
		if err != nil {
			return err
		}
		oldRootHead := decodeHead(oldRootBuf)
		recs := [][]byte{
			encodeInternalRecord(oldRootHead.lowFence, root),
			encodeInternalRecord(split.sep, split.newRight),
		}
		newRootBuf := buildPage(t.p.PageSize(), kindInternal, newRootID, pager.NullPageID, pager.NullPageID, pager.NullPageID, oldRootHead.lowFence, oldRootHead.highFence, recs)
		w.PutPage(newRootID, newRootBuf)
		patchParent(w, root, newRootID)
		patchParent(w, split.newRight, newRootID)
		t.publishRoot(w, newRootID)
	}
	return nil
}

func (t *Tree) publishRoot(w *pager.WriteGuard, id pager.PageID) {
	t.mu.Lock()
	t.root = id
	t.mu.Unlock()
	w.UpdateMeta(func(m *pager.Meta) { t.ra.Set(m, id) })
}

// splitResult is bubbled up from a split so the caller can insert the new
// separator/child into its parent (spec.md §4.1 step 5).
type splitResult struct {
	sep      []byte
	newRight pager.PageID
}

// insert descends to the page named by id, inserts (ek, ev) if this is a
// leaf or propagates a child split otherwise, and returns a non-nil
// splitResult if this page itself had to split.
func (t *Tree) insert(w *pager.WriteGuard, id pager.PageID, ek, ev []byte) (*splitResult, error) {
	buf, h, err := t.fetch(w, id)
	if err != nil {
		return nil, err
	}

	if h.kind == kindLeaf {
		t.bump(&t.stats.LeafSearches, 1)
		entries := leafEntries(buf, h)
		idx, found := searchEntries(entries, ek, t.Key)
		rec := encodeLeafRecord(ek, ev)

		if found {
			if t.opts.InPlace && len(ev) == len(entries[idx].val) {
				nb := removeSlotInPlace(buf, h, idx)
				nb2 := insertSlotInPlace(nb, decodeHead(nb), idx, rec)
				w.PutPage(id, nb2)
				t.bump(&t.stats.InPlaceOps, 1)
				return nil, nil
			}
			entries[idx] = entry{key: ek, val: ev}
			return t.rebuildLeaf(w, id, h, entries)
		}

		if t.opts.InPlace && h.fits(len(rec)) {
			nb := insertSlotInPlace(buf, h, idx, rec)
			w.PutPage(id, nb)
			t.bump(&t.stats.InPlaceOps, 1)
			return nil, nil
		}

		newEntries := make([]entry, 0, len(entries)+1)
		newEntries = append(newEntries, entries[:idx]...)
		newEntries = append(newEntries, entry{key: ek, val: ev})
		newEntries = append(newEntries, entries[idx:]...)
		return t.rebuildLeaf(w, id, h, newEntries)
	}

	t.bump(&t.stats.InternalSearches, 1)
	kids := internalEntries(buf, h)
	childIdx := 0
	for i, k := range kids {
		if t.Key.Compare(k.sep, ek) <= 0 {
			childIdx = i
		}
	}
	childSplit, err := t.insert(w, kids[childIdx].child, ek, ev)
	if err != nil {
		return nil, err
	}
	if childSplit == nil {
		return nil, nil
	}

	newKids := make([]internalEntry, 0, len(kids)+1)
	newKids = append(newKids, kids[:childIdx+1]...)
	newKids = append(newKids, internalEntry{sep: childSplit.sep, child: childSplit.newRight})
	newKids = append(newKids, kids[childIdx+1:]...)
	return t.rebuildInternal(w, id, h, newKids)
}

// rebuildLeaf rewrites (and, if necessary, splits) a leaf page from a
// fully sorted entry list (spec.md §4.1 steps 3-4).
func (t *Tree) rebuildLeaf(w *pager.WriteGuard, id pager.PageID, h pageHead, entries []entry) (*splitResult, error) {
	records := make([][]byte, len(entries))
	total := 0
	for i, e := range entries {
		records[i] = encodeLeafRecord(e.key, e.val)
		total += len(records[i]) + slotEntrySize
	}
	fenceBudget := len(h.lowFence) + len(h.highFence)

	if total+fenceBudget <= t.capacity() || len(entries) <= 1 {
		nb := buildPage(t.p.PageSize(), kindLeaf, id, h.left, h.right, h.parent, h.lowFence, h.highFence, records)
		w.PutPage(id, nb)
		t.bump(&t.stats.RebuildOps, 1)
		if h.parent != pager.NullPageID && len(entries) > 0 {
			if err := updateParentSeparator(t, w, h.parent, id, entries[0].key); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	mid := nearestMidpointSplit(records, t.capacity()-fenceBudget)
	leftEntries, rightEntries := entries[:mid], entries[mid:]
	if len(leftEntries) == 0 || len(rightEntries) == 0 {
		return nil, &pager.CorruptionError{Reason: "leaf page cannot be split: single oversized record"}
	}

	rightID := w.AllocatePage()
	leftRecs := records[:mid]
	rightRecs := records[mid:]

	leftHigh := rightEntries[0].key
	leftBuf := buildPage(t.p.PageSize(), kindLeaf, id, h.left, rightID, h.parent, h.lowFence, leftHigh, leftRecs)
	rightBuf := buildPage(t.p.PageSize(), kindLeaf, rightID, id, h.right, h.parent, leftHigh, h.highFence, rightRecs)
	w.PutPage(id, leftBuf)
	w.PutPage(rightID, rightBuf)
	if h.right != pager.NullPageID {
		patchLeftSibling(w, h.right, rightID)
	}
	t.bump(&t.stats.Splits, 1)
	return &splitResult{sep: leftHigh, newRight: rightID}, nil
}

// rebuildInternal mirrors rebuildLeaf for internal pages.
func (t *Tree) rebuildInternal(w *pager.WriteGuard, id pager.PageID, h pageHead, kids []internalEntry) (*splitResult, error) {
	records := make([][]byte, len(kids))
	total := 0
	for i, k := range kids {
		records[i] = encodeInternalRecord(k.sep, k.child)
		total += len(records[i]) + slotEntrySize
	}
	fenceBudget := len(h.lowFence) + len(h.highFence)

	if total+fenceBudget <= t.capacity() || len(kids) <= 1 {
		nb := buildPage(t.p.PageSize(), kindInternal, id, h.left, h.right, h.parent, h.lowFence, h.highFence, records)
		w.PutPage(id, nb)
		t.bump(&t.stats.RebuildOps, 1)
		return nil, nil
	}

	mid := nearestMidpointSplit(records, t.capacity()-fenceBudget)
	leftKids, rightKids := kids[:mid], kids[mid:]
	if len(leftKids) == 0 || len(rightKids) == 0 {
		return nil, &pager.CorruptionError{Reason: "internal page cannot be split: single oversized record"}
	}

	rightID := w.AllocatePage()
	leftHigh := rightKids[0].sep
	leftBuf := buildPage(t.p.PageSize(), kindInternal, id, h.left, rightID, h.parent, h.lowFence, leftHigh, records[:mid])
	rightBuf := buildPage(t.p.PageSize(), kindInternal, rightID, id, h.right, h.parent, leftHigh, h.highFence, records[mid:])
	w.PutPage(id, leftBuf)
	w.PutPage(rightID, rightBuf)
	if h.right != pager.NullPageID {
		patchLeftSibling(w, h.right, rightID)
	}
	for _, k := range rightKids {
		patchParent(w, k.child, rightID)
	}
	t.bump(&t.stats.Splits, 1)
	return &splitResult{sep: leftHigh, newRight: rightID}, nil
}

// nearestMidpointSplit picks the split index whose two halves are both
// within capacity, starting from the middle and walking outward
// (spec.md §4.1 "Split candidates are evaluated in order of distance from
// the midpoint").
func nearestMidpointSplit(records [][]byte, capacity int) int {
	n := len(records)
	mid := n / 2
	fits := func(lo, hi int) bool {
		size := 0
		for i := lo; i < hi; i++ {
			size += len(records[i]) + slotEntrySize
		}
		return size <= capacity
	}
	for d := 0; d < n; d++ {
		for _, cand := range []int{mid - d, mid + d} {
			if cand <= 0 || cand >= n {
				continue
			}
			if fits(0, cand) && fits(cand, n) {
				return cand
			}
		}
	}
	return mid
}

// patchParent rewrites only the parent-pointer header field of page id,
// without touching its payload.
func patchParent(w *pager.WriteGuard, id, newParent pager.PageID) {
	buf, err := w.PageMut(id)
	if err != nil {
		return
	}
	h := decodeHead(buf)
	nb := buildPage(len(buf), h.kind, id, h.left, h.right, newParent, h.lowFence, h.highFence, rawRecordsOf(buf, h))
	w.PutPage(id, nb)
}

func patchLeftSibling(w *pager.WriteGuard, id, newLeft pager.PageID) {
	buf, err := w.PageMut(id)
	if err != nil {
		return
	}
	h := decodeHead(buf)
	nb := buildPage(len(buf), h.kind, id, newLeft, h.right, h.parent, h.lowFence, h.highFence, rawRecordsOf(buf, h))
	w.PutPage(id, nb)
}

func rawRecordsOf(buf []byte, h pageHead) [][]byte {
	out := make([][]byte, h.slotCount)
	for i := 0; i < h.slotCount; i++ {
		out[i] = clone(recordBytes(buf, h, i))
	}
	return out
}

// updateParentSeparator rewrites the separator for childID in parentID to
// newSep (spec.md §4.1 "update the parent's separator for this child to
// the new first key").
func updateParentSeparator(t *Tree, w *pager.WriteGuard, parentID, childID pager.PageID, newSep []byte) error {
	buf, err := w.PageMut(parentID)
	if err != nil {
		return err
	}
	h := decodeHead(buf)
	kids := internalEntries(buf, h)
	for i := range kids {
		if kids[i].child == childID {
			kids[i].sep = newSep
			break
		}
	}
	_, err = t.rebuildInternal(w, parentID, h, kids)
	return err
}

var errNotFound = fmt.Errorf("btree: key not found")
