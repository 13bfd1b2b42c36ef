package btree

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/pager"
)

// recSet is a kind-agnostic view of a page's records: for a leaf, keys are
// row keys and recs are full leaf records; for an internal page, keys are
// separators and recs are full internal records. Rebalancing only ever
// needs to move whole records between pages, so one implementation serves
// both levels.
type recSet struct {
	keys [][]byte
	recs [][]byte
}

func loadRecSet(buf []byte, h pageHead) recSet {
	if h.kind == kindLeaf {
		es := leafEntries(buf, h)
		rs := recSet{keys: make([][]byte, len(es)), recs: make([][]byte, len(es))}
		for i, e := range es {
			rs.keys[i] = e.key
			rs.recs[i] = encodeLeafRecord(e.key, e.val)
		}
		return rs
	}
	ks := internalEntries(buf, h)
	rs := recSet{keys: make([][]byte, len(ks)), recs: make([][]byte, len(ks))}
	for i, k := range ks {
		rs.keys[i] = k.sep
		rs.recs[i] = encodeInternalRecord(k.sep, k.child)
	}
	return rs
}

func recordChild(kind uint8, rec []byte) pager.PageID {
	if kind != kindInternal {
		return pager.NullPageID
	}
	return pager.PageID(binary.BigEndian.Uint64(rec[2:10]))
}

func occupiedBytes(h pageHead, capacity int) int {
	free := h.freeBytes()
	if free > capacity {
		free = capacity
	}
	return capacity - free
}

// findLeaf descends to the leaf that would hold ek.
func (t *Tree) findLeaf(src pageSource, ek []byte) (pager.PageID, error) {
	t.mu.Lock()
	id := t.root
	t.mu.Unlock()
	for {
		buf, h, err := t.fetch(src, id)
		if err != nil {
			return 0, err
		}
		if h.kind == kindLeaf {
			return id, nil
		}
		kids := internalEntries(buf, h)
		id = descendChild(kids, ek, t.Key)
	}
}

// Delete removes key if present, rebalancing the tree as needed
// (spec.md §4.1 "Delete").
func (t *Tree) Delete(w *pager.WriteGuard, key any) (bool, error) {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()
	if root == pager.NullPageID {
		return false, nil
	}
	ek := t.Key.Encode(key)

	leafID, err := t.findLeaf(w, ek)
	if err != nil {
		return false, err
	}
	buf, h, err := t.fetch(w, leafID)
	if err != nil {
		return false, err
	}
	rs := loadRecSet(buf, h)
	idx, found := searchEntries(leafEntries(buf, h), ek, t.Key)
	if !found {
		return false, nil
	}

	newKeys := append(append([][]byte{}, rs.keys[:idx]...), rs.keys[idx+1:]...)
	newRecs := append(append([][]byte{}, rs.recs[:idx]...), rs.recs[idx+1:]...)

	if t.opts.InPlace {
		nb := removeSlotInPlace(buf, h, idx)
		w.PutPage(leafID, nb)
		t.bump(&t.stats.InPlaceOps, 1)
	} else {
		nb := buildPage(t.p.PageSize(), kindLeaf, leafID, h.left, h.right, h.parent, h.lowFence, h.highFence, newRecs)
		w.PutPage(leafID, nb)
		t.bump(&t.stats.RebuildOps, 1)
	}

	if idx == 0 && len(newKeys) > 0 && h.parent != pager.NullPageID {
		if err := updateParentSeparator(t, w, h.parent, leafID, newKeys[0]); err != nil {
			return true, err
		}
	}

	if leafID != root {
		if err := t.rebalance(w, leafID); err != nil {
			return true, err
		}
	}
	return true, nil
}

// rebalance restores minimum fill for page id, trying borrow-left,
// borrow-right, then merge, cascading to the parent on merge
// (spec.md §4.1 "Delete" steps 1-3).
func (t *Tree) rebalance(w *pager.WriteGuard, id pager.PageID) error {
	buf, h, err := t.fetch(w, id)
	if err != nil {
		return err
	}
	capacity := t.capacity() - len(h.lowFence) - len(h.highFence)
	threshold := t.opts.InternalMinFill
	if h.kind == kindLeaf {
		threshold = t.opts.FillTarget
	}
	if capacity <= 0 || float64(occupiedBytes(h, capacity))/float64(capacity) >= threshold {
		return nil
	}
	if h.parent == pager.NullPageID {
		return nil // root has no siblings to borrow from or merge with
	}

	pbuf, ph, err := t.fetch(w, h.parent)
	if err != nil {
		return err
	}
	pkids := internalEntries(pbuf, ph)
	myPos := -1
	for i, k := range pkids {
		if k.child == id {
			myPos = i
			break
		}
	}
	if myPos < 0 {
		return &pager.CorruptionError{Reason: "parent/child pointer mismatch during rebalance"}
	}

	rs := loadRecSet(buf, h)

	if myPos > 0 {
		leftID := pkids[myPos-1].child
		lbuf, lh, err := t.fetch(w, leftID)
		if err != nil {
			return err
		}
		if lh.parent == h.parent && lh.slotCount >= 2 {
			return t.borrowLeft(w, id, h, rs, leftID, lbuf, lh, pkids, myPos)
		}
	}
	if myPos < len(pkids)-1 {
		rightID := pkids[myPos+1].child
		rbuf, rh, err := t.fetch(w, rightID)
		if err != nil {
			return err
		}
		if rh.parent == h.parent && rh.slotCount >= 2 {
			return t.borrowRight(w, id, h, rs, rightID, rbuf, rh, pkids, myPos)
		}
	}

	// Merge: pick the left neighbor as survivor when one exists, else
	// merge this page with its right neighbor.
	if myPos > 0 {
		leftID := pkids[myPos-1].child
		lbuf, lh, err := t.fetch(w, leftID)
		if err != nil {
			return err
		}
		return t.merge(w, leftID, lbuf, lh, id, buf, h, pkids, myPos-1, myPos)
	}
	rightID := pkids[myPos+1].child
	rbuf, rh, err := t.fetch(w, rightID)
	if err != nil {
		return err
	}
	return t.merge(w, id, buf, h, rightID, rbuf, rh, pkids, myPos, myPos+1)
}

func (t *Tree) borrowLeft(w *pager.WriteGuard, id pager.PageID, h pageHead, rs recSet, leftID pager.PageID, lbuf []byte, lh pageHead, pkids []internalEntry, myPos int) error {
	lrs := loadRecSet(lbuf, lh)
	n := len(lrs.recs)
	donorRec, donorKey := lrs.recs[n-1], lrs.keys[n-1]

	newLeftRecs, newLeftKeys := lrs.recs[:n-1], lrs.keys[:n-1]
	newThisRecs := append([][]byte{donorRec}, rs.recs...)

	leftBuf := buildPage(t.p.PageSize(), h.kind, leftID, lh.left, id, lh.parent, lh.lowFence, donorKey, newLeftRecs)
	thisBuf := buildPage(t.p.PageSize(), h.kind, id, leftID, h.right, h.parent, donorKey, h.highFence, newThisRecs)
	w.PutPage(leftID, leftBuf)
	w.PutPage(id, thisBuf)
	if h.kind == kindInternal {
		patchParent(w, recordChild(h.kind, donorRec), id)
	}
	_ = newLeftKeys
	return updateParentSeparator(t, w, h.parent, id, donorKey)
}

func (t *Tree) borrowRight(w *pager.WriteGuard, id pager.PageID, h pageHead, rs recSet, rightID pager.PageID, rbuf []byte, rh pageHead, pkids []internalEntry, myPos int) error {
	rrs := loadRecSet(rbuf, rh)
	donorRec, donorKey := rrs.recs[0], rrs.keys[0]
	newRightRecs, newRightKeys := rrs.recs[1:], rrs.keys[1:]
	newThisRecs := append(append([][]byte{}, rs.recs...), donorRec)

	var newRightLow []byte
	if len(newRightKeys) > 0 {
		newRightLow = newRightKeys[0]
	} else {
		newRightLow = rh.highFence
	}

	thisBuf := buildPage(t.p.PageSize(), h.kind, id, h.left, rightID, h.parent, h.lowFence, newRightLow, newThisRecs)
	rightBuf := buildPage(t.p.PageSize(), h.kind, rightID, id, rh.right, rh.parent, newRightLow, rh.highFence, newRightRecs)
	w.PutPage(id, thisBuf)
	w.PutPage(rightID, rightBuf)
	if h.kind == kindInternal {
		patchParent(w, recordChild(h.kind, donorRec), id)
	}
	if err := updateParentSeparator(t, w, h.parent, rightID, newRightLow); err != nil {
		return err
	}
	return nil
}

// merge concatenates victim into survivor (survivor is always the
// left-hand page of the pair), unlinks victim from the sibling chain,
// frees it, then removes its entry from the parent — cascading a further
// rebalance to the parent if needed (spec.md §4.1 "merge ... this may
// cascade").
func (t *Tree) merge(w *pager.WriteGuard, survivorID pager.PageID, sbuf []byte, sh pageHead, victimID pager.PageID, vbuf []byte, vh pageHead, pkids []internalEntry, survivorPos, victimPos int) error {
	srs := loadRecSet(sbuf, sh)
	vrs := loadRecSet(vbuf, vh)
	mergedRecs := append(append([][]byte{}, srs.recs...), vrs.recs...)

	nb := buildPage(t.p.PageSize(), sh.kind, survivorID, sh.left, vh.right, sh.parent, sh.lowFence, vh.highFence, mergedRecs)
	w.PutPage(survivorID, nb)
	if vh.right != pager.NullPageID {
		patchLeftSibling(w, vh.right, survivorID)
	}
	if sh.kind == kindInternal {
		for _, rec := range vrs.recs {
			patchParent(w, recordChild(sh.kind, rec), survivorID)
		}
	}
	w.FreePage(victimID)
	t.bump(&t.stats.Merges, 1)

	newKids := append(append([]internalEntry{}, pkids[:victimPos]...), pkids[victimPos+1:]...)
	parentID := sh.parent

	if parentID == pager.NullPageID {
		// Parent is absent only when survivor/victim were themselves the
		// root's only children, which can't happen: rebalance never runs
		// on the root. Defensive no-op.
		return nil
	}

	_, ph, err := t.fetch(w, parentID)
	if err != nil {
		return err
	}

	if parentID == t.Root() && len(newKids) == 1 {
		// Root demotion: promote the sole remaining child.
		onlyChild := newKids[0].child
		patchParent(w, onlyChild, pager.NullPageID)
		w.FreePage(parentID)
		t.publishRoot(w, onlyChild)
		return nil
	}

	if _, err := t.rebuildInternal(w, parentID, ph, newKids); err != nil {
		return err
	}
	if parentID != t.Root() {
		return t.rebalance(w, parentID)
	}
	return nil
}
