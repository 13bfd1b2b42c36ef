package adjacency

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/pager"
)

// NodeAdjInlineBuckets is the number of inline (type, segment) buckets per
// direction before a node's adjacency spills into the overflow tree
// (original_source/graph/ifa/node_adj_page.rs "K").
const NodeAdjInlineBuckets = 6

const (
	nodeAdjMagic        = "NADP"
	nodeAdjFormatVersion = uint16(2)

	typeBucketLen   = 4 + 8 // type(4) + segment_ptr(8)
	nodeAdjHeaderLen = NodeAdjInlineBuckets*typeBucketLen + 1 // + overflow flag
	nodeAdjPageBodyLen = 8 /*magic*/ + 8 /*owner*/ + 2*nodeAdjHeaderLen
)

// TypeBucket is one inline (edge type -> segment page) slot. A bucket is
// occupied iff SegPtr != pager.NullPageID; Type is only meaningful when
// occupied, since page id 0 is reserved and can never be a real segment.
type TypeBucket struct {
	Type   uint32
	SegPtr pager.PageID
}

// NodeAdjHeader is the per-direction adjacency summary inline in a node's
// IFA page: up to NodeAdjInlineBuckets distinct edge types, plus a flag
// marking that additional types have spilled into the overflow tree
// (spec.md §4.4 "IFA overflow").
type NodeAdjHeader struct {
	Buckets  [NodeAdjInlineBuckets]TypeBucket
	Overflow bool
}

// Lookup returns the segment pointer for typ, if present inline.
func (h *NodeAdjHeader) Lookup(typ uint32) (pager.PageID, bool) {
	for _, b := range h.Buckets {
		if b.SegPtr != pager.NullPageID && b.Type == typ {
			return b.SegPtr, true
		}
	}
	return pager.NullPageID, false
}

// Set installs or updates the inline bucket for typ. It reports false if
// there is no free bucket and typ is not already present — the caller must
// then use the overflow tree.
func (h *NodeAdjHeader) Set(typ uint32, ptr pager.PageID) bool {
	free := -1
	for i, b := range h.Buckets {
		if b.SegPtr != pager.NullPageID && b.Type == typ {
			h.Buckets[i].SegPtr = ptr
			return true
		}
		if b.SegPtr == pager.NullPageID && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return false
	}
	h.Buckets[free] = TypeBucket{Type: typ, SegPtr: ptr}
	return true
}

// Clear empties the inline bucket for typ, if present.
func (h *NodeAdjHeader) Clear(typ uint32) {
	for i, b := range h.Buckets {
		if b.SegPtr != pager.NullPageID && b.Type == typ {
			h.Buckets[i] = TypeBucket{}
			return
		}
	}
}

// Types returns every edge type with an occupied inline bucket.
func (h *NodeAdjHeader) Types() []uint32 {
	var out []uint32
	for _, b := range h.Buckets {
		if b.SegPtr != pager.NullPageID {
			out = append(out, b.Type)
		}
	}
	return out
}

func (h *NodeAdjHeader) encode(buf []byte) {
	off := 0
	for _, b := range h.Buckets {
		binary.BigEndian.PutUint32(buf[off:], b.Type)
		binary.BigEndian.PutUint64(buf[off+4:], uint64(b.SegPtr))
		off += typeBucketLen
	}
	if h.Overflow {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
}

func decodeNodeAdjHeader(buf []byte) (NodeAdjHeader, error) {
	if len(buf) < nodeAdjHeaderLen {
		return NodeAdjHeader{}, &pager.CorruptionError{Reason: "IFA node adjacency header truncated"}
	}
	var h NodeAdjHeader
	off := 0
	for i := range h.Buckets {
		h.Buckets[i] = TypeBucket{
			Type:   binary.BigEndian.Uint32(buf[off:]),
			SegPtr: pager.PageID(binary.BigEndian.Uint64(buf[off+4:])),
		}
		off += typeBucketLen
	}
	h.Overflow = buf[off] != 0
	return h, nil
}

// NodeAdjPage is the per-node Index-Free-Adjacency page: an OUT and an IN
// NodeAdjHeader (spec.md §4.4 "per-node adjacency page").
type NodeAdjPage struct {
	Owner uint64
	Out   NodeAdjHeader
	In    NodeAdjHeader
}

// Header returns the header for dir.
func (p *NodeAdjPage) Header(dir Dir) *NodeAdjHeader {
	if dir == DirIn {
		return &p.In
	}
	return &p.Out
}

// AllocateNodeAdjPage allocates and writes a fresh, empty IFA page for
// owner, returning its page id.
func AllocateNodeAdjPage(w *pager.WriteGuard, pageSize int, owner uint64) (pager.PageID, error) {
	id := w.AllocatePage()
	page := &NodeAdjPage{Owner: owner}
	if err := WriteNodeAdjPage(w, pageSize, id, page); err != nil {
		return pager.NullPageID, err
	}
	return id, nil
}

// WriteNodeAdjPage serializes page to id.
func WriteNodeAdjPage(w *pager.WriteGuard, pageSize int, id pager.PageID, page *NodeAdjPage) error {
	if pageSize-pager.HeaderSize < nodeAdjPageBodyLen {
		return &pager.CorruptionError{Reason: "page size too small for IFA node page"}
	}
	buf := pager.NewPage(pageSize, pager.PageTypeIFANode, id)
	off := pager.HeaderSize
	copy(buf[off:], nodeAdjMagic)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], nodeAdjFormatVersion)
	off += 2
	off += 2 // reserved
	binary.BigEndian.PutUint64(buf[off:], page.Owner)
	off += 8
	page.Out.encode(buf[off:])
	off += nodeAdjHeaderLen
	page.In.encode(buf[off:])
	pager.SetPageCRC(buf)
	w.PutPage(id, buf)
	return nil
}

// ReadNodeAdjPage deserializes the IFA page stored at id.
func ReadNodeAdjPage(src pageReader, id pager.PageID) (*NodeAdjPage, error) {
	buf, err := src.GetPage(id)
	if err != nil {
		return nil, err
	}
	if err := pager.VerifyPageCRC(buf); err != nil {
		return nil, err
	}
	off := pager.HeaderSize
	if len(buf) < off+nodeAdjPageBodyLen {
		return nil, &pager.CorruptionError{Reason: "IFA node page truncated"}
	}
	if string(buf[off:off+4]) != nodeAdjMagic {
		return nil, &pager.CorruptionError{Reason: "bad IFA node page magic"}
	}
	off += 4
	if v := binary.BigEndian.Uint16(buf[off:]); v != nodeAdjFormatVersion {
		return nil, &pager.CorruptionError{Reason: "unsupported IFA node page version"}
	}
	off += 2
	off += 2 // reserved
	owner := binary.BigEndian.Uint64(buf[off:])
	off += 8
	out, err := decodeNodeAdjHeader(buf[off:])
	if err != nil {
		return nil, err
	}
	off += nodeAdjHeaderLen
	in, err := decodeNodeAdjHeader(buf[off:])
	if err != nil {
		return nil, err
	}
	return &NodeAdjPage{Owner: owner, Out: out, In: in}, nil
}
