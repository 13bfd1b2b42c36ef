package adjacency

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// PatchPrevVersion rewrites a segment's prev_version pointer in place,
// used by vacuum to sever a reclaimed tail from the chain it no longer
// needs to reach.
func PatchPrevVersion(w *pager.WriteGuard, id pager.PageID, prev pager.PageID) error {
	buf, err := w.PageMut(id)
	if err != nil {
		return err
	}
	prevOff := pager.HeaderSize + 30
	binary.BigEndian.PutUint64(buf[prevOff:], uint64(prev))
	pager.SetPageCRC(buf)
	w.PutPage(id, buf)
	return nil
}

// ReclaimSegmentChain frees every superseded segment version reachable
// from head's prev_version chain whose xmax falls at or behind horizon,
// stopping at the first version some reader might still need
// (spec.md §4.7 "walk ... IFA chains for tombstones with end <= horizon;
// delete the tombstone entries"). head itself is never freed — it is
// always the live version a bucket or overflow entry points to.
func ReclaimSegmentChain(w *pager.WriteGuard, pageSize int, head pager.PageID, horizon mvcc.CommitID) (freed int, err error) {
	headSeg, err := ReadSegment(w, pageSize, head)
	if err != nil {
		return 0, err
	}
	prevID := headSeg.Header.PrevVersion
	if prevID == pager.NullPageID {
		return 0, nil
	}

	keep := prevID
	for keep != pager.NullPageID {
		seg, err := ReadSegment(w, pageSize, keep)
		if err != nil {
			return freed, err
		}
		if seg.Header.Xmax == mvcc.CommitMax || seg.Header.Xmax > horizon {
			break
		}
		next := seg.Header.PrevVersion
		if err := FreeSegmentChain(w, pageSize, keep); err != nil {
			return freed, err
		}
		freed++
		keep = next
	}
	if keep != prevID {
		if err := PatchPrevVersion(w, head, keep); err != nil {
			return freed, err
		}
	}
	return freed, nil
}
