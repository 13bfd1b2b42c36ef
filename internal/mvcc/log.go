package mvcc

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/pager"
)

// SpaceTag identifies which logical space (node tree, edge tree, adjacency
// tree) a version-log entry belongs to, so a vacuum pass can interpret
// orphaned entries without consulting the owning tree.
type SpaceTag uint8

const (
	SpaceNode SpaceTag = iota
	SpaceEdge
	SpaceAdjacency
)

// LogEntry is one archived historical row version (spec.md §3 "Version log
// entry"): space_tag ∥ logical_id ∥ version_header ∥ prev_ptr ∥ payload_len ∥ payload.
type LogEntry struct {
	Space    SpaceTag
	LogicalID uint64
	Header   VersionHeader
	Prev     VersionPtr
	Payload  []byte
}

func encodeLogEntry(e LogEntry) []byte {
	hdr := e.Header.Encode()
	buf := make([]byte, 1+8+VersionHeaderLen+8+4+len(e.Payload))
	buf[0] = byte(e.Space)
	binary.BigEndian.PutUint64(buf[1:9], e.LogicalID)
	copy(buf[9:9+VersionHeaderLen], hdr[:])
	off := 9 + VersionHeaderLen
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(e.Prev))
	binary.BigEndian.PutUint32(buf[off+8:off+12], uint32(len(e.Payload)))
	copy(buf[off+12:], e.Payload)
	return buf
}

func decodeLogEntry(b []byte) (LogEntry, error) {
	const fixed = 1 + 8 + VersionHeaderLen + 8 + 4
	if len(b) < fixed {
		return LogEntry{}, &pager.CorruptionError{Reason: "version log entry truncated"}
	}
	hdr, err := DecodeVersionHeader(b[9 : 9+VersionHeaderLen])
	if err != nil {
		return LogEntry{}, err
	}
	off := 9 + VersionHeaderLen
	prev := VersionPtr(binary.BigEndian.Uint64(b[off : off+8]))
	plen := binary.BigEndian.Uint32(b[off+8 : off+12])
	payload := b[off+12:]
	if uint32(len(payload)) < plen {
		return LogEntry{}, &pager.CorruptionError{Reason: "version log payload shorter than declared"}
	}
	return LogEntry{
		Space:     SpaceTag(b[0]),
		LogicalID: binary.BigEndian.Uint64(b[1:9]),
		Header:    hdr,
		Prev:      prev,
		Payload:   append([]byte(nil), payload[:plen]...),
	}, nil
}

// Log is the version-log tree: a B+ tree keyed by monotonically
// increasing VersionPtr values, storing superseded row versions
// (spec.md §3 "Version log entry", §4.2 "Version log"). Entries are kept
// pre-encoded in the tree (RawCodec on both sides) so corruption surfaces
// through Get's error return rather than a codec panic.
type Log struct {
	p    *pager.Pager
	tree *btree.Tree
}

// OpenLog attaches a Log to the version-log root recorded in the meta page.
func OpenLog(p *pager.Pager, opts btree.Options) *Log {
	ra := btree.RootAccessor{
		Get: func(m *pager.Meta) pager.PageID { return m.VersionLog },
		Set: func(m *pager.Meta, id pager.PageID) { m.VersionLog = id },
	}
	return &Log{p: p, tree: btree.Open(p, ra, btree.RawCodec{}, btree.RawCodec{}, opts)}
}

// Append reserves the next VersionPtr and writes e under it, returning the
// pointer so the caller can store it as prev_ptr on the new head row.
func (l *Log) Append(w *pager.WriteGuard, e LogEntry) (VersionPtr, error) {
	var ptr VersionPtr
	w.UpdateMeta(func(m *pager.Meta) {
		ptr = VersionPtr(m.NextVersionPtr)
		m.NextVersionPtr++
	})
	if err := l.tree.Put(w, ptr.Bytes(), encodeLogEntry(e)); err != nil {
		return 0, err
	}
	return ptr, nil
}

// Get looks up a historical version by pointer.
func (l *Log) Get(r *pager.ReadGuard, ptr VersionPtr) (LogEntry, bool, error) {
	v, ok, err := l.tree.Get(r, ptr.Bytes())
	if err != nil || !ok {
		return LogEntry{}, ok, err
	}
	e, err := decodeLogEntry(v.([]byte))
	return e, err == nil, err
}

// GetCached is Get with a version-cache fast path: a hit avoids the tree
// descent entirely, a miss populates the cache for the next lookup.
func (l *Log) GetCached(r *pager.ReadGuard, ptr VersionPtr, cache *VersionCache) (LogEntry, bool, error) {
	if cache != nil {
		if e, ok := cache.Get(ptr); ok {
			return e, true, nil
		}
	}
	e, ok, err := l.Get(r, ptr)
	if err == nil && ok && cache != nil {
		cache.Put(ptr, e)
	}
	return e, ok, err
}

// Delete removes a historical version once it falls behind the vacuum
// horizon (spec.md §4.7 "walk ... delete the tombstone entries").
func (l *Log) Delete(w *pager.WriteGuard, ptr VersionPtr, cache *VersionCache) (bool, error) {
	if cache != nil {
		cache.Invalidate(ptr)
	}
	return l.tree.Delete(w, ptr.Bytes())
}

// Cursor walks log entries in ascending VersionPtr order starting at
// lower (nil for the oldest entry), used by vacuum to scan for
// reclaimable history without knowing individual pointers in advance.
func (l *Log) Cursor(src interface {
	GetPage(pager.PageID) ([]byte, error)
}, lower VersionPtr) (*btree.Cursor, error) {
	var lowerKey any
	if lower != NullVersionPtr {
		lowerKey = lower.Bytes()
	}
	return l.tree.Cursor(src, lowerKey, nil)
}

// StatsSnapshot returns the underlying tree's running counters.
func (l *Log) StatsSnapshot() btree.Stats { return l.tree.StatsSnapshot() }
