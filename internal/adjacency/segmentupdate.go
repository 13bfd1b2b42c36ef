package adjacency

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// MarkSegmentSuperseded patches a segment's xmax in place on its primary
// page without rewriting its entries (spec.md §4.4 CoW segment update step
// 5: "set old_ptr.xmax = commit").
func MarkSegmentSuperseded(w *pager.WriteGuard, id pager.PageID, xmax mvcc.CommitID) error {
	buf, err := w.PageMut(id)
	if err != nil {
		return err
	}
	// xmax sits at offset 22 within the header, which starts right after
	// the common page header (see AdjSegmentHeader.encode).
	xmaxOff := pager.HeaderSize + 22
	binary.BigEndian.PutUint64(buf[xmaxOff:], uint64(xmax))
	pager.SetPageCRC(buf)
	w.PutPage(id, buf)
	return nil
}
