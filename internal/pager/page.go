// Package pager implements the page-based, write-ahead-logged storage
// primitive that the graph engine treats as an external collaborator: page
// read/write guards, allocation, extents, commit-id reservation, meta-page
// updates, durable-LSN queries, checkpointing and crash recovery.
//
// The on-disk layout is a fixed-size page file (default 8 KiB pages) plus a
// sequential physical-logging WAL. Page 0 is always the meta page; every
// other page carries a 32-byte header (kind, flags, id, LSN, CRC32) and a
// payload whose shape depends on kind.
package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	// DefaultPageSize is the default page size in bytes (8 KiB).
	DefaultPageSize = 8192

	// MinPageSize is the minimum allowed page size (4 KiB).
	MinPageSize = 4096

	// MaxPageSize is the maximum allowed page size (64 KiB).
	MaxPageSize = 65536

	// HeaderSize is the size of the common 32-byte page header.
	//   [0]     Type      (1 byte)
	//   [1]     Flags     (1 byte)
	//   [2:4]   Reserved  (2 bytes)
	//   [4:12]  ID        (8 bytes, uint64 LE)
	//   [12:20] LSN       (8 bytes, uint64 LE)
	//   [20:24] CRC32     (4 bytes, uint32 LE)
	//   [24:32] Pad       (8 bytes, reserved)
	HeaderSize = 32

	// NullPageID represents a null/invalid page pointer. Page id 0 is
	// reserved for the meta page and can never be returned by Allocate.
	NullPageID PageID = 0
)

// PageType identifies the kind of data stored in a page.
type PageType uint8

const (
	PageTypeMeta         PageType = 0x01
	PageTypeBTreeInterna PageType = 0x02
	PageTypeBTreeLeaf    PageType = 0x03
	PageTypeOverflow     PageType = 0x04
	PageTypeFreeList     PageType = 0x05
	PageTypeIFANode      PageType = 0x06
	PageTypeIFASegment   PageType = 0x07
)

func (pt PageType) String() string {
	switch pt {
	case PageTypeMeta:
		return "Meta"
	case PageTypeBTreeInterna:
		return "BTree-Internal"
	case PageTypeBTreeLeaf:
		return "BTree-Leaf"
	case PageTypeOverflow:
		return "Overflow"
	case PageTypeFreeList:
		return "FreeList"
	case PageTypeIFANode:
		return "IFA-Node"
	case PageTypeIFASegment:
		return "IFA-Segment"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(pt))
	}
}

// PageID is a 64-bit page identifier; 0 means null (spec.md §3).
type PageID uint64

// LSN is a monotonically increasing log sequence number.
type LSN uint64

// CommitID is a monotonically increasing commit identifier; 0 is the
// sentinel meaning "visible forever" when stored in a version's end field.
type CommitID uint64

// Header is the 32-byte header present at the start of every page.
type Header struct {
	Type     PageType
	Flags    uint8
	Reserved uint16
	ID       PageID
	LSN      LSN
	CRC      uint32
	Pad      [8]byte
}

// MarshalHeader writes h into the first HeaderSize bytes of buf.
func MarshalHeader(h *Header, buf []byte) {
	if len(buf) < HeaderSize {
		panic("pager: buffer too small for page header")
	}
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], h.Reserved)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(h.ID))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.LSN))
	binary.LittleEndian.PutUint32(buf[20:24], h.CRC)
	copy(buf[24:32], h.Pad[:])
}

// UnmarshalHeader reads a Header from the first HeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) Header {
	var h Header
	h.Type = PageType(buf[0])
	h.Flags = buf[1]
	h.Reserved = binary.LittleEndian.Uint16(buf[2:4])
	h.ID = PageID(binary.LittleEndian.Uint64(buf[4:12]))
	h.LSN = LSN(binary.LittleEndian.Uint64(buf[12:20]))
	h.CRC = binary.LittleEndian.Uint32(buf[20:24])
	copy(h.Pad[:], buf[24:32])
	return h
}

// crcTable is the CRC32-C (Castagnoli) table used throughout the pager.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputePageCRC computes the CRC32-C of a full page, treating the stored
// CRC field as zero during computation.
func ComputePageCRC(page []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(page[:20])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(page[24:])
	return h.Sum32()
}

// SetPageCRC computes and writes the CRC into the page header.
func SetPageCRC(page []byte) {
	binary.LittleEndian.PutUint32(page[20:24], ComputePageCRC(page))
}

// VerifyPageCRC checks the CRC32 checksum of a page.
func VerifyPageCRC(page []byte) error {
	stored := binary.LittleEndian.Uint32(page[20:24])
	computed := ComputePageCRC(page)
	if stored != computed {
		pid := PageID(binary.LittleEndian.Uint64(page[4:12]))
		return &CorruptionError{Reason: fmt.Sprintf("CRC mismatch on page %d: stored=%08x computed=%08x", pid, stored, computed)}
	}
	return nil
}

// NewPage allocates a zeroed page buffer of pageSize bytes with id and kind set.
func NewPage(pageSize int, pt PageType, id PageID) []byte {
	buf := make([]byte, pageSize)
	h := &Header{Type: pt, ID: id}
	MarshalHeader(h, buf)
	return buf
}

// CorruptionError signals an on-disk invariant violation. It is fatal for
// the affected transaction: callers must stop using the guard that
// produced it (spec.md §7).
type CorruptionError struct{ Reason string }

func (e *CorruptionError) Error() string { return "pager: corruption: " + e.Reason }
