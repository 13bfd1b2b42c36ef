package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// VRef is a typed pointer to an overflow chain (spec.md §4.3/GLOSSARY).
type VRef struct {
	StartPage PageID
	NPages    uint32
	Len       uint32
	Checksum  uint32
}

// EncodedVRefSize is the on-disk size of a VRef: start_page(8)+n_pages(4)+len(4)+crc32(4).
const EncodedVRefSize = 20

// Encode writes the VRef in its fixed 20-byte binary form.
func (v VRef) Encode() [EncodedVRefSize]byte {
	var out [EncodedVRefSize]byte
	binary.BigEndian.PutUint64(out[0:8], uint64(v.StartPage))
	binary.BigEndian.PutUint32(out[8:12], v.NPages)
	binary.BigEndian.PutUint32(out[12:16], v.Len)
	binary.BigEndian.PutUint32(out[16:20], v.Checksum)
	return out
}

// DecodeVRef parses a VRef from its 20-byte binary form.
func DecodeVRef(b []byte) (VRef, error) {
	if len(b) < EncodedVRefSize {
		return VRef{}, fmt.Errorf("pager: short VRef (%d bytes)", len(b))
	}
	return VRef{
		StartPage: PageID(binary.BigEndian.Uint64(b[0:8])),
		NPages:    binary.BigEndian.Uint32(b[8:12]),
		Len:       binary.BigEndian.Uint32(b[12:16]),
		Checksum:  binary.BigEndian.Uint32(b[16:20]),
	}, nil
}

// overflowHeaderSize: next_page_id(8) + used(4) + reserved(4), after the
// common 32-byte page header.
const overflowHeaderSize = 16

func overflowCapacity(pageSize int) int { return pageSize - HeaderSize - overflowHeaderSize }

// VStore chains overflow pages to store blobs too large to inline
// (spec.md §4.3).
type VStore struct{}

// Write splits payload into a chain of overflow pages and returns a VRef
// describing it.
func (VStore) Write(w *WriteGuard, pageSize int, payload []byte) (VRef, error) {
	cap := overflowCapacity(pageSize)
	if cap <= 0 {
		return VRef{}, fmt.Errorf("pager: page size too small for overflow chain")
	}
	n := (len(payload) + cap - 1) / cap
	if n == 0 {
		n = 1
	}
	ids := w.AllocateExtent(n)
	h := crc32.New(crcTable)
	for i, id := range ids {
		start := i * cap
		end := start + cap
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]
		h.Write(chunk)

		buf := NewPage(pageSize, PageTypeOverflow, id)
		next := NullPageID
		if i+1 < len(ids) {
			next = ids[i+1]
		}
		off := HeaderSize
		binary.LittleEndian.PutUint64(buf[off:], uint64(next))
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(chunk)))
		copy(buf[HeaderSize+overflowHeaderSize:], chunk)
		w.PutPage(id, buf)
	}
	return VRef{StartPage: ids[0], NPages: uint32(n), Len: uint32(len(payload)), Checksum: h.Sum32()}, nil
}

// Read walks an overflow chain and returns its reassembled payload,
// verifying chain length and CRC32.
func (VStore) Read(g interface{ GetPage(PageID) ([]byte, error) }, pageSize int, ref VRef) ([]byte, error) {
	out := make([]byte, 0, ref.Len)
	h := crc32.New(crcTable)
	id := ref.StartPage
	seen := 0
	for id != NullPageID {
		if seen >= int(ref.NPages) {
			return nil, &CorruptionError{Reason: "overflow chain longer than n_pages"}
		}
		buf, err := g.GetPage(id)
		if err != nil {
			return nil, err
		}
		if err := VerifyPageCRC(buf); err != nil {
			return nil, err
		}
		off := HeaderSize
		next := PageID(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
		used := int(binary.LittleEndian.Uint32(buf[off:]))
		data := buf[HeaderSize+overflowHeaderSize : HeaderSize+overflowHeaderSize+used]
		out = append(out, data...)
		h.Write(data)
		seen++
		id = next
	}
	if seen != int(ref.NPages) {
		return nil, &CorruptionError{Reason: "overflow chain terminated early"}
	}
	if uint32(len(out)) != ref.Len {
		return nil, &CorruptionError{Reason: "overflow payload length mismatch"}
	}
	if h.Sum32() != ref.Checksum {
		return nil, &CorruptionError{Reason: "overflow checksum mismatch"}
	}
	return out, nil
}

// Update rewrites an existing chain in place when the new payload still
// fits within its page count, otherwise it writes a fresh chain and frees
// the old one.
func (vs VStore) Update(w *WriteGuard, pageSize int, old VRef, payload []byte) (VRef, error) {
	cap := overflowCapacity(pageSize)
	if len(payload) <= cap*int(old.NPages) {
		h := crc32.New(crcTable)
		id := old.StartPage
		remaining := payload
		for id != NullPageID {
			buf, err := w.PageMut(id)
			if err != nil {
				return VRef{}, err
			}
			n := len(remaining)
			if n > cap {
				n = cap
			}
			chunk := remaining[:n]
			remaining = remaining[n:]
			off := HeaderSize + 8
			binary.LittleEndian.PutUint32(buf[off:], uint32(n))
			copy(buf[HeaderSize+overflowHeaderSize:], chunk)
			for i := len(chunk); i < cap; i++ {
				buf[HeaderSize+overflowHeaderSize+i] = 0
			}
			h.Write(chunk)
			next := PageID(binary.LittleEndian.Uint64(buf[HeaderSize:]))
			SetPageCRC(buf)
			w.PutPage(id, buf)
			id = next
		}
		return VRef{StartPage: old.StartPage, NPages: old.NPages, Len: uint32(len(payload)), Checksum: h.Sum32()}, nil
	}
	fresh, err := vs.Write(w, pageSize, payload)
	if err != nil {
		return VRef{}, err
	}
	vs.Free(w, old)
	return fresh, nil
}

// Free returns every page in an overflow chain to the writer's free list.
func (VStore) Free(w *WriteGuard, ref VRef) {
	id := ref.StartPage
	for id != NullPageID {
		buf, err := w.GetPage(id)
		if err != nil {
			return
		}
		next := PageID(binary.LittleEndian.Uint64(buf[HeaderSize:]))
		w.FreePage(id)
		id = next
	}
}
