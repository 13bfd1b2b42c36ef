package btree

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/pager"
)

// Slotted page payload layout, following spec.md §3 "Slotted page payload
// (B+ tree)": a fixed payload header, low/high fence byte strings, records
// growing up from free_start, and a slot directory growing down from the
// end of the payload toward free_end.
const (
	kindLeaf     = 0
	kindInternal = 1

	payloadHeaderSize = 36 // kind(1)+pad(1)+slotCount(2)+lowLen(2)+highLen(2)+freeStart(2)+freeEnd(2)+left(8)+right(8)+parent(8)
	slotEntrySize     = 4  // offset:u16, length:u16
)

// entry is a decoded (key, value) pair, used for leaf rebuilds.
type entry struct {
	key []byte
	val []byte
}

// internalEntry is a decoded (separator, child) pair for internal pages.
type internalEntry struct {
	sep   []byte
	child pager.PageID
}

// pageHead is the decoded slotted-page payload header plus fences.
type pageHead struct {
	kind         uint8
	slotCount    int
	freeStart    int
	freeEnd      int
	left         pager.PageID
	right        pager.PageID
	parent       pager.PageID
	lowFence     []byte
	highFence    []byte
	payloadStart int // byte offset within the page where the payload begins
}

func payloadOffset() int { return pager.HeaderSize }

func decodeHead(buf []byte) pageHead {
	base := payloadOffset()
	var h pageHead
	h.payloadStart = base
	h.kind = buf[base]
	h.slotCount = int(binary.LittleEndian.Uint16(buf[base+2:]))
	lowLen := int(binary.LittleEndian.Uint16(buf[base+4:]))
	highLen := int(binary.LittleEndian.Uint16(buf[base+6:]))
	h.freeStart = int(binary.LittleEndian.Uint16(buf[base+8:]))
	h.freeEnd = int(binary.LittleEndian.Uint16(buf[base+10:]))
	h.left = pager.PageID(binary.LittleEndian.Uint64(buf[base+12:]))
	h.right = pager.PageID(binary.LittleEndian.Uint64(buf[base+20:]))
	h.parent = pager.PageID(binary.LittleEndian.Uint64(buf[base+28:]))
	fenceStart := base + payloadHeaderSize
	h.lowFence = clone(buf[fenceStart : fenceStart+lowLen])
	h.highFence = clone(buf[fenceStart+lowLen : fenceStart+lowLen+highLen])
	return h
}

func clone(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// slotAt returns the (offset, length) of the record referenced by slot i,
// where offsets are relative to the payload start.
func slotAt(buf []byte, h pageHead, i int) (int, int) {
	base := h.payloadStart
	slotsEnd := len(buf) - base
	slotOff := slotsEnd - (i+1)*slotEntrySize
	off := int(binary.LittleEndian.Uint16(buf[base+slotOff:]))
	ln := int(binary.LittleEndian.Uint16(buf[base+slotOff+2:]))
	return off, ln
}

func recordBytes(buf []byte, h pageHead, i int) []byte {
	off, ln := slotAt(buf, h, i)
	base := h.payloadStart
	return buf[base+off : base+off+ln]
}

// leafEntries decodes every live (key, value) pair on a leaf page, in slot
// (i.e. key-ascending) order.
func leafEntries(buf []byte, h pageHead) []entry {
	out := make([]entry, 0, h.slotCount)
	for i := 0; i < h.slotCount; i++ {
		rec := recordBytes(buf, h, i)
		keyLen := int(binary.LittleEndian.Uint16(rec[0:]))
		valLen := int(binary.LittleEndian.Uint16(rec[2:]))
		key := rec[4 : 4+keyLen]
		val := rec[4+keyLen : 4+keyLen+valLen]
		out = append(out, entry{key: clone(key), val: clone(val)})
	}
	return out
}

// internalEntries decodes every (separator, child) pair on an internal page.
func internalEntries(buf []byte, h pageHead) []internalEntry {
	out := make([]internalEntry, 0, h.slotCount)
	for i := 0; i < h.slotCount; i++ {
		rec := recordBytes(buf, h, i)
		sepLen := int(binary.LittleEndian.Uint16(rec[0:]))
		child := pager.PageID(binary.BigEndian.Uint64(rec[2:10]))
		sep := rec[10 : 10+sepLen]
		out = append(out, internalEntry{sep: clone(sep), child: child})
	}
	return out
}

func encodeLeafRecord(key, val []byte) []byte {
	rec := make([]byte, 4+len(key)+len(val))
	binary.LittleEndian.PutUint16(rec[0:], uint16(len(key)))
	binary.LittleEndian.PutUint16(rec[2:], uint16(len(val)))
	copy(rec[4:], key)
	copy(rec[4+len(key):], val)
	return rec
}

func encodeInternalRecord(sep []byte, child pager.PageID) []byte {
	rec := make([]byte, 10+len(sep))
	binary.LittleEndian.PutUint16(rec[0:], uint16(len(sep)))
	binary.BigEndian.PutUint64(rec[2:10], uint64(child))
	copy(rec[10:], sep)
	return rec
}

// buildPage fully rebuilds a page's payload from a sorted list of raw
// records (each already produced by encodeLeafRecord/encodeInternalRecord),
// writing it into a fresh page buffer of the given kind.
func buildPage(pageSize int, kind uint8, id pager.PageID, left, right, parent pager.PageID, lowFence, highFence []byte, records [][]byte) []byte {
	pt := pager.PageTypeBTreeLeaf
	if kind == kindInternal {
		pt = pager.PageTypeBTreeInterna
	}
	buf := pager.NewPage(pageSize, pt, id)
	base := payloadOffset()

	freeStart := base + payloadHeaderSize + len(lowFence) + len(highFence)
	cursor := freeStart
	offsets := make([]int, len(records))
	for i, rec := range records {
		copy(buf[cursor:], rec)
		offsets[i] = cursor - base
		cursor += len(rec)
	}
	// Slot directory grows down from the end of the page.
	slotCursor := len(buf)
	for i := len(records) - 1; i >= 0; i-- {
		slotCursor -= slotEntrySize
		binary.LittleEndian.PutUint16(buf[slotCursor:], uint16(offsets[i]))
		binary.LittleEndian.PutUint16(buf[slotCursor+2:], uint16(len(records[i])))
	}

	buf[base] = kind
	binary.LittleEndian.PutUint16(buf[base+2:], uint16(len(records)))
	binary.LittleEndian.PutUint16(buf[base+4:], uint16(len(lowFence)))
	binary.LittleEndian.PutUint16(buf[base+6:], uint16(len(highFence)))
	binary.LittleEndian.PutUint16(buf[base+8:], uint16(cursor-base))
	binary.LittleEndian.PutUint16(buf[base+10:], uint16(slotCursor-base))
	binary.LittleEndian.PutUint64(buf[base+12:], uint64(left))
	binary.LittleEndian.PutUint64(buf[base+20:], uint64(right))
	binary.LittleEndian.PutUint64(buf[base+28:], uint64(parent))
	fenceStart := base + payloadHeaderSize
	copy(buf[fenceStart:], lowFence)
	copy(buf[fenceStart+len(lowFence):], highFence)

	pager.SetPageCRC(buf)
	return buf
}

// freeBytes returns the number of unused bytes between the record area
// and the slot directory.
func (h pageHead) freeBytes() int { return h.freeEnd - h.freeStart }

// fits reports whether a new record of recLen bytes plus one more slot
// entry fit in the current free gap (in-place fast path, spec.md §4.1 step 2).
func (h pageHead) fits(recLen int) bool {
	return h.freeBytes() >= recLen+slotEntrySize
}

// insertSlotInPlace appends rec at free_start and inserts a new slot at
// sorted position idx, shifting the directory (not the records) to make
// room — spec.md §4.1: "shift the directory down, write the record at
// free_start, and patch the slot."
func insertSlotInPlace(buf []byte, h pageHead, idx int, rec []byte) []byte {
	base := h.payloadStart
	newBuf := make([]byte, len(buf))
	copy(newBuf, buf)

	recOff := h.freeStart
	copy(newBuf[base+recOff:], rec)
	newFreeStart := recOff + len(rec)

	oldSlotsEnd := len(buf) - base
	// Shift every slot at or after idx one slot-entry further down to open a gap.
	newFreeEnd := h.freeEnd - slotEntrySize
	for i := h.slotCount - 1; i >= idx; i-- {
		srcOff := oldSlotsEnd - (i+1)*slotEntrySize
		dstOff := srcOff - slotEntrySize
		copy(newBuf[base+dstOff:base+dstOff+slotEntrySize], buf[base+srcOff:base+srcOff+slotEntrySize])
	}
	// Write the new slot at position idx.
	newSlotPos := len(buf) - base - (idx+1)*slotEntrySize
	binary.LittleEndian.PutUint16(newBuf[base+newSlotPos:], uint16(recOff))
	binary.LittleEndian.PutUint16(newBuf[base+newSlotPos+2:], uint16(len(rec)))

	binary.LittleEndian.PutUint16(newBuf[base+2:], uint16(h.slotCount+1))
	binary.LittleEndian.PutUint16(newBuf[base+8:], uint16(newFreeStart))
	binary.LittleEndian.PutUint16(newBuf[base+10:], uint16(newFreeEnd))
	pager.SetPageCRC(newBuf)
	return newBuf
}

// removeSlotInPlace deletes slot idx, shifting later slots up; the dead
// record bytes are left as unreclaimed garbage until the page is next
// rebuilt (split, merge, or rebuild-path insert).
func removeSlotInPlace(buf []byte, h pageHead, idx int) []byte {
	base := h.payloadStart
	newBuf := make([]byte, len(buf))
	copy(newBuf, buf)

	slotsEnd := len(buf) - base
	for i := idx; i < h.slotCount-1; i++ {
		srcOff := slotsEnd - (i+2)*slotEntrySize
		dstOff := slotsEnd - (i+1)*slotEntrySize
		copy(newBuf[base+dstOff:base+dstOff+slotEntrySize], buf[base+srcOff:base+srcOff+slotEntrySize])
	}
	binary.LittleEndian.PutUint16(newBuf[base+2:], uint16(h.slotCount-1))
	binary.LittleEndian.PutUint16(newBuf[base+10:], uint16(h.freeEnd+slotEntrySize))
	pager.SetPageCRC(newBuf)
	return newBuf
}
