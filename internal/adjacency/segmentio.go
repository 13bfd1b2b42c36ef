package adjacency

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/pager"
)

// A segment's primary page holds the header followed by as many entries as
// fit; once full, entries continue on extension pages chained via
// AdjSegmentHeader.NextExtent. Each extension page stores its own
// next-extent pointer (8 bytes) followed by raw entries, mirroring the
// chaining style of pager.VStore's overflow chain.
const extHeaderLen = 8

func segmentPrimaryCapacity(pageSize int) int {
	return (pageSize - pager.HeaderSize - AdjSegmentHeaderLen) / AdjEntryLen
}

func segmentExtCapacity(pageSize int) int {
	return (pageSize - pager.HeaderSize - extHeaderLen) / AdjEntryLen
}

// WriteSegment allocates a fresh page chain for seg and returns the id of
// its primary page.
func WriteSegment(w *pager.WriteGuard, pageSize int, seg *AdjSegment) (pager.PageID, error) {
	primaryCap := segmentPrimaryCapacity(pageSize)
	extCap := segmentExtCapacity(pageSize)
	if primaryCap <= 0 || extCap <= 0 {
		return pager.NullPageID, &pager.CorruptionError{Reason: "page size too small for adjacency segment"}
	}

	entries := seg.Entries
	nPrimary := len(entries)
	if nPrimary > primaryCap {
		nPrimary = primaryCap
	}
	rest := entries[nPrimary:]

	nExt := 0
	if len(rest) > 0 {
		nExt = (len(rest) + extCap - 1) / extCap
	}

	ids := w.AllocateExtent(1 + nExt)
	primaryID := ids[0]

	hdr := seg.Header
	hdr.EntryCount = uint32(len(entries))
	if nExt > 0 {
		hdr.NextExtent = ids[1]
	} else {
		hdr.NextExtent = pager.NullPageID
	}

	buf := pager.NewPage(pageSize, pager.PageTypeIFASegment, primaryID)
	off := pager.HeaderSize
	henc := hdr.encode()
	copy(buf[off:], henc[:])
	off += AdjSegmentHeaderLen
	for _, e := range entries[:nPrimary] {
		enc := e.encode()
		copy(buf[off:], enc[:])
		off += AdjEntryLen
	}
	pager.SetPageCRC(buf)
	w.PutPage(primaryID, buf)

	for i := 0; i < nExt; i++ {
		id := ids[1+i]
		start := i * extCap
		end := start + extCap
		if end > len(rest) {
			end = len(rest)
		}
		chunk := rest[start:end]
		next := pager.NullPageID
		if i+1 < nExt {
			next = ids[2+i]
		}
		ebuf := pager.NewPage(pageSize, pager.PageTypeIFASegment, id)
		binary.BigEndian.PutUint64(ebuf[pager.HeaderSize:], uint64(next))
		eoff := pager.HeaderSize + extHeaderLen
		for _, e := range chunk {
			enc := e.encode()
			copy(ebuf[eoff:], enc[:])
			eoff += AdjEntryLen
		}
		pager.SetPageCRC(ebuf)
		w.PutPage(id, ebuf)
	}

	return primaryID, nil
}

// ReadSegment reads the segment chain rooted at id and reassembles its full
// entry list.
func ReadSegment(src pageReader, pageSize int, id pager.PageID) (*AdjSegment, error) {
	buf, err := src.GetPage(id)
	if err != nil {
		return nil, err
	}
	if err := pager.VerifyPageCRC(buf); err != nil {
		return nil, err
	}
	off := pager.HeaderSize
	hdr, err := decodeAdjSegmentHeader(buf[off:])
	if err != nil {
		return nil, err
	}
	off += AdjSegmentHeaderLen

	primaryCap := segmentPrimaryCapacity(pageSize)
	extCap := segmentExtCapacity(pageSize)

	remaining := int(hdr.EntryCount)
	entries := make([]AdjEntry, 0, remaining)

	nPrimary := remaining
	if nPrimary > primaryCap {
		nPrimary = primaryCap
	}
	for i := 0; i < nPrimary; i++ {
		e, err := decodeAdjEntry(buf[off:])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		off += AdjEntryLen
	}
	remaining -= nPrimary

	next := hdr.NextExtent
	for remaining > 0 {
		if next == pager.NullPageID {
			return nil, &pager.CorruptionError{Reason: "adjacency segment chain ended early"}
		}
		ebuf, err := src.GetPage(next)
		if err != nil {
			return nil, err
		}
		if err := pager.VerifyPageCRC(ebuf); err != nil {
			return nil, err
		}
		following := pager.PageID(binary.BigEndian.Uint64(ebuf[pager.HeaderSize:]))
		eoff := pager.HeaderSize + extHeaderLen
		n := remaining
		if n > extCap {
			n = extCap
		}
		for i := 0; i < n; i++ {
			e, err := decodeAdjEntry(ebuf[eoff:])
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
			eoff += AdjEntryLen
		}
		remaining -= n
		next = following
	}

	return &AdjSegment{Header: hdr, Entries: entries}, nil
}

// FreeSegmentChain returns every page of a segment's chain (primary plus
// extensions) to the writer's free list.
func FreeSegmentChain(w *pager.WriteGuard, pageSize int, id pager.PageID) error {
	buf, err := w.GetPage(id)
	if err != nil {
		return err
	}
	hdr, err := decodeAdjSegmentHeader(buf[pager.HeaderSize:])
	if err != nil {
		return err
	}
	w.FreePage(id)
	next := hdr.NextExtent
	for next != pager.NullPageID {
		ebuf, err := w.GetPage(next)
		if err != nil {
			return err
		}
		following := pager.PageID(binary.BigEndian.Uint64(ebuf[pager.HeaderSize:]))
		w.FreePage(next)
		next = following
	}
	return nil
}
