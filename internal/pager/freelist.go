package pager

import "encoding/binary"

// Free pages are chained through ordinary pages reused as free-list nodes:
// a header, a count of entries, and up to freeListCapacity PageIDs, plus a
// pointer to the next free-list page (0 if none).
const freeListCapacity = 500 // (pageSize-header-12)/8 for a 4KiB page is 506, rounded down

type freeListPage struct {
	Next    PageID
	Entries []PageID
}

func marshalFreeListPage(pageSize int, id PageID, p *freeListPage) []byte {
	buf := NewPage(pageSize, PageTypeFreeList, id)
	off := HeaderSize
	binary.LittleEndian.PutUint64(buf[off:], uint64(p.Next))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(p.Entries)))
	off += 4
	for _, e := range p.Entries {
		binary.LittleEndian.PutUint64(buf[off:], uint64(e))
		off += 8
	}
	SetPageCRC(buf)
	return buf
}

func unmarshalFreeListPage(buf []byte) (*freeListPage, error) {
	if err := VerifyPageCRC(buf); err != nil {
		return nil, err
	}
	off := HeaderSize
	next := PageID(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	n := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	entries := make([]PageID, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, PageID(binary.LittleEndian.Uint64(buf[off:])))
		off += 8
	}
	return &freeListPage{Next: next, Entries: entries}, nil
}

// freeManager is an in-memory free-page set, persisted as a chain of
// free-list pages rooted at Meta.FreeListRoot.
type freeManager struct {
	free []PageID // LIFO stack of reclaimed page ids
}

func newFreeManager() *freeManager { return &freeManager{} }

func (fm *freeManager) push(id PageID) { fm.free = append(fm.free, id) }

// pop returns a reusable page id, or NullPageID if the free set is empty.
func (fm *freeManager) pop() PageID {
	n := len(fm.free)
	if n == 0 {
		return NullPageID
	}
	id := fm.free[n-1]
	fm.free = fm.free[:n-1]
	return id
}

func (fm *freeManager) count() int { return len(fm.free) }

// loadFromDisk walks the persisted free-list chain starting at root.
func (fm *freeManager) loadFromDisk(p *Pager, root PageID) error {
	fm.free = fm.free[:0]
	for id := root; id != NullPageID; {
		buf, err := p.readPageRaw(id)
		if err != nil {
			return err
		}
		fl, err := unmarshalFreeListPage(buf)
		if err != nil {
			return err
		}
		fm.free = append(fm.free, fl.Entries...)
		id = fl.Next
	}
	return nil
}

// flushToDisk serializes the free set into a fresh chain of free-list
// pages and returns the new chain's root (NullPageID if the set is empty).
// Pages used to store the chain itself are drawn from freshPageIDs, which
// the caller (Pager) supplies via direct allocation to avoid recursion
// into the free manager while it is being flushed.
func (fm *freeManager) flushToDisk(p *Pager, freshPageIDs func(n int) []PageID) (PageID, error) {
	if len(fm.free) == 0 {
		return NullPageID, nil
	}
	chunks := chunk(fm.free, freeListCapacity)
	ids := freshPageIDs(len(chunks))
	var root PageID = NullPageID
	for i := len(chunks) - 1; i >= 0; i-- {
		next := NullPageID
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		buf := marshalFreeListPage(p.pageSize, ids[i], &freeListPage{Next: next, Entries: chunks[i]})
		if err := p.writePageRaw(ids[i], buf); err != nil {
			return NullPageID, err
		}
		root = ids[0]
	}
	return root, nil
}

func chunk(ids []PageID, size int) [][]PageID {
	var out [][]PageID
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}
