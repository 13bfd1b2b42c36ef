package adjacency

import (
	"encoding/binary"
	"sort"

	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// AdjEntryLen is the encoded size of one AdjEntry: neighbor(8)+edge(8)+
// xmin(8)+xmax(8) (original_source/graph/ifa/segment.rs "ADJ_ENTRY_LEN").
const AdjEntryLen = 32

// AdjSegmentHeaderLen is the encoded size of AdjSegmentHeader: owner(8)+
// dir(1)+reserved(1)+type(4)+xmin(8)+xmax(8)+prev_version(8)+
// next_extent(8)+entry_count(4) ("ADJ_SEGMENT_HEADER_LEN").
const AdjSegmentHeaderLen = 50

// AdjEntry is one neighbor relationship within a segment (spec.md §3 "IFA
// segment").
type AdjEntry struct {
	Neighbor uint64
	Edge     uint64
	Xmin     mvcc.CommitID
	Xmax     mvcc.CommitID // CommitMax (0) means still active
}

// VisibleAt reports whether this entry is visible to a reader pinned at
// snapshot.
func (e AdjEntry) VisibleAt(snapshot mvcc.CommitID) bool {
	if e.Xmin > snapshot {
		return false
	}
	return e.Xmax == mvcc.CommitMax || e.Xmax > snapshot
}

func (e AdjEntry) encode() [AdjEntryLen]byte {
	var buf [AdjEntryLen]byte
	binary.BigEndian.PutUint64(buf[0:8], e.Neighbor)
	binary.BigEndian.PutUint64(buf[8:16], e.Edge)
	binary.BigEndian.PutUint64(buf[16:24], uint64(e.Xmin))
	binary.BigEndian.PutUint64(buf[24:32], uint64(e.Xmax))
	return buf
}

func decodeAdjEntry(b []byte) (AdjEntry, error) {
	if len(b) < AdjEntryLen {
		return AdjEntry{}, &pager.CorruptionError{Reason: "adjacency entry truncated"}
	}
	return AdjEntry{
		Neighbor: binary.BigEndian.Uint64(b[0:8]),
		Edge:     binary.BigEndian.Uint64(b[8:16]),
		Xmin:     mvcc.CommitID(binary.BigEndian.Uint64(b[16:24])),
		Xmax:     mvcc.CommitID(binary.BigEndian.Uint64(b[24:32])),
	}, nil
}

// AdjSegmentHeader identifies and versions one (owner, dir, type) segment
// chain (spec.md §3 "IFA segment").
type AdjSegmentHeader struct {
	Owner       uint64
	Dir         Dir
	Type        uint32
	Xmin        mvcc.CommitID
	Xmax        mvcc.CommitID // 0 while still the live version
	PrevVersion pager.PageID
	NextExtent  pager.PageID
	EntryCount  uint32
}

// IsActive reports whether this segment version has not been superseded.
func (h AdjSegmentHeader) IsActive() bool { return h.Xmax == mvcc.CommitMax }

// VisibleAt reports whether this segment version is visible at snapshot.
func (h AdjSegmentHeader) VisibleAt(snapshot mvcc.CommitID) bool {
	if h.Xmin > snapshot {
		return false
	}
	return h.Xmax == mvcc.CommitMax || h.Xmax > snapshot
}

func (h AdjSegmentHeader) encode() [AdjSegmentHeaderLen]byte {
	var buf [AdjSegmentHeaderLen]byte
	binary.BigEndian.PutUint64(buf[0:8], h.Owner)
	buf[8] = byte(h.Dir)
	// buf[9] reserved
	binary.BigEndian.PutUint32(buf[10:14], h.Type)
	binary.BigEndian.PutUint64(buf[14:22], uint64(h.Xmin))
	binary.BigEndian.PutUint64(buf[22:30], uint64(h.Xmax))
	binary.BigEndian.PutUint64(buf[30:38], uint64(h.PrevVersion))
	binary.BigEndian.PutUint64(buf[38:46], uint64(h.NextExtent))
	binary.BigEndian.PutUint32(buf[46:50], h.EntryCount)
	return buf
}

func decodeAdjSegmentHeader(b []byte) (AdjSegmentHeader, error) {
	if len(b) < AdjSegmentHeaderLen {
		return AdjSegmentHeader{}, &pager.CorruptionError{Reason: "adjacency segment header truncated"}
	}
	return AdjSegmentHeader{
		Owner:       binary.BigEndian.Uint64(b[0:8]),
		Dir:         Dir(b[8]),
		Type:        binary.BigEndian.Uint32(b[10:14]),
		Xmin:        mvcc.CommitID(binary.BigEndian.Uint64(b[14:22])),
		Xmax:        mvcc.CommitID(binary.BigEndian.Uint64(b[22:30])),
		PrevVersion: pager.PageID(binary.BigEndian.Uint64(b[30:38])),
		NextExtent:  pager.PageID(binary.BigEndian.Uint64(b[38:46])),
		EntryCount:  binary.BigEndian.Uint32(b[46:50]),
	}, nil
}

// AdjSegment is one version of a (owner, dir, type) adjacency list:
// a header plus sorted entries (spec.md §3 "IFA segment").
type AdjSegment struct {
	Header  AdjSegmentHeader
	Entries []AdjEntry
}

// NewAdjSegment starts a fresh, empty segment for (owner, dir, typ) created
// at xmin.
func NewAdjSegment(owner uint64, dir Dir, typ uint32, xmin mvcc.CommitID) *AdjSegment {
	return &AdjSegment{Header: AdjSegmentHeader{Owner: owner, Dir: dir, Type: typ, Xmin: xmin}}
}

// CowClone returns a new segment version cloned from old: same identity,
// new xmin, prev_version pointing at oldPtr, entries copied
// (spec.md §4.4 "CoW segment update" step 3).
func CowClone(old *AdjSegment, oldPtr pager.PageID, newXmin mvcc.CommitID) *AdjSegment {
	entries := append([]AdjEntry(nil), old.Entries...)
	return &AdjSegment{
		Header: AdjSegmentHeader{
			Owner:       old.Header.Owner,
			Dir:         old.Header.Dir,
			Type:        old.Header.Type,
			Xmin:        newXmin,
			Xmax:        mvcc.CommitMax,
			PrevVersion: oldPtr,
			EntryCount:  uint32(len(entries)),
		},
		Entries: entries,
	}
}

// Insert adds an entry in sorted (neighbor, edge) order. A byte-identical
// duplicate (same neighbor and edge) is a no-op.
func (s *AdjSegment) Insert(e AdjEntry) {
	idx := sort.Search(len(s.Entries), func(i int) bool {
		if s.Entries[i].Neighbor != e.Neighbor {
			return s.Entries[i].Neighbor >= e.Neighbor
		}
		return s.Entries[i].Edge >= e.Edge
	})
	if idx < len(s.Entries) && s.Entries[idx].Neighbor == e.Neighbor && s.Entries[idx].Edge == e.Edge {
		return
	}
	s.Entries = append(s.Entries, AdjEntry{})
	copy(s.Entries[idx+1:], s.Entries[idx:])
	s.Entries[idx] = e
	s.Header.EntryCount = uint32(len(s.Entries))
}

// Remove deletes the entry matching (neighbor, edge); reports whether one
// was found.
func (s *AdjSegment) Remove(neighbor, edge uint64) bool {
	idx := sort.Search(len(s.Entries), func(i int) bool {
		if s.Entries[i].Neighbor != neighbor {
			return s.Entries[i].Neighbor >= neighbor
		}
		return s.Entries[i].Edge >= edge
	})
	if idx >= len(s.Entries) || s.Entries[idx].Neighbor != neighbor || s.Entries[idx].Edge != edge {
		return false
	}
	s.Entries = append(s.Entries[:idx], s.Entries[idx+1:]...)
	s.Header.EntryCount = uint32(len(s.Entries))
	return true
}

// IsEmpty reports whether the segment has no entries left.
func (s *AdjSegment) IsEmpty() bool { return len(s.Entries) == 0 }
