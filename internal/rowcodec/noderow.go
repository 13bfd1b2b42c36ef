package rowcodec

import (
	"encoding/binary"
	"sort"

	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// propStorageInline/propStorageOverflow discriminate the whole property
// bag's storage mode at the row level (spec.md §3 "property storage tag
// ... inline blob with u16 length, or a 20-byte VRef").
const (
	propStorageInline   byte = 0
	propStorageOverflow byte = 1
)

// NodeRow is the decoded value stored in the node tree, keyed by NodeId
// (spec.md §3 "Node row").
type NodeRow struct {
	Header       mvcc.VersionHeader
	Prev         mvcc.VersionPtr
	Labels       []uint32
	Props        map[PropID]PropValue
	AdjPage      pager.PageID // pager.NullPageID when absent
	InlineAdj    []byte       // opaque inline adjacency header, or nil
	RowHash      uint64
	HasRowHash   bool
	InlineHist   []byte // opaque inline-history payload, or nil
}

// EncodeNodeRow serializes row per spec.md §3's node-row layout. Oversized
// property bags spill the whole encoded bag to an overflow chain via vs,
// independent of any individual property that already spilled inside
// EncodeBag.
func EncodeNodeRow(w *pager.WriteGuard, pageSize int, vs *pager.VStore, row NodeRow, inlineValueMax, inlineBagMax int) ([]byte, error) {
	labels := sortedUniqueLabels(row.Labels)

	bag, err := EncodeBag(w, pageSize, vs, row.Props, inlineValueMax)
	if err != nil {
		return nil, err
	}

	hdr := row.Header.Encode()
	var out []byte
	out = append(out, hdr[:]...)
	out = appendU64(out, uint64(row.Prev))
	out = append(out, byte(len(labels)))
	for _, l := range labels {
		out = appendU32(out, l)
	}

	if inlineBagMax <= 0 {
		inlineBagMax = defaultInlinePropValue
	}
	if len(bag) <= inlineBagMax || vs == nil || w == nil {
		out = append(out, propStorageInline)
		out = appendU16(out, uint16(len(bag)))
		out = append(out, bag...)
	} else {
		ref, err := vs.Write(w, pageSize, bag)
		if err != nil {
			return nil, err
		}
		enc := ref.Encode()
		out = append(out, propStorageOverflow)
		out = append(out, enc[:]...)
	}

	hasAdjPage := row.AdjPage != pager.NullPageID
	hasInlineAdj := len(row.InlineAdj) > 0
	hasInlineHist := row.Header.HasInlineHistory() && len(row.InlineHist) > 0

	var presence byte
	if hasAdjPage {
		presence |= 1 << 0
	}
	if hasInlineAdj {
		presence |= 1 << 1
	}
	if row.HasRowHash {
		presence |= 1 << 2
	}
	if hasInlineHist {
		presence |= 1 << 3
	}
	out = append(out, presence)

	if hasAdjPage {
		out = appendU64(out, uint64(row.AdjPage))
	}
	if hasInlineAdj {
		out = appendU16(out, uint16(len(row.InlineAdj)))
		out = append(out, row.InlineAdj...)
	}
	if row.HasRowHash {
		out = appendU64(out, row.RowHash)
	}
	if hasInlineHist {
		out = appendU32(out, uint32(len(row.InlineHist)))
		out = append(out, row.InlineHist...)
	}

	return out, nil
}

// DecodeNodeRow parses bytes produced by EncodeNodeRow.
func DecodeNodeRow(src pageSource, pageSize int, vs *pager.VStore, buf []byte) (NodeRow, error) {
	if len(buf) < mvcc.VersionHeaderLen {
		return NodeRow{}, &pager.CorruptionError{Reason: "node row truncated before version header"}
	}
	hdr, err := mvcc.DecodeVersionHeader(buf)
	if err != nil {
		return NodeRow{}, err
	}
	rest := buf[mvcc.VersionHeaderLen:]

	prev, rest, err := readU64(rest)
	if err != nil {
		return NodeRow{}, err
	}
	if len(rest) < 1 {
		return NodeRow{}, &pager.CorruptionError{Reason: "node row truncated before label count"}
	}
	labelCount := int(rest[0])
	rest = rest[1:]
	labels := make([]uint32, labelCount)
	for i := 0; i < labelCount; i++ {
		var l uint32
		l, rest, err = readU32(rest)
		if err != nil {
			return NodeRow{}, err
		}
		labels[i] = l
	}

	if len(rest) < 1 {
		return NodeRow{}, &pager.CorruptionError{Reason: "node row truncated before property storage tag"}
	}
	storageTag := rest[0]
	rest = rest[1:]

	var bag []byte
	switch storageTag {
	case propStorageInline:
		var n uint16
		n, rest, err = readU16(rest)
		if err != nil {
			return NodeRow{}, err
		}
		if uint16(len(rest)) < n {
			return NodeRow{}, &pager.CorruptionError{Reason: "node row truncated inline property bag"}
		}
		bag = rest[:n]
		rest = rest[n:]
	case propStorageOverflow:
		if len(rest) < pager.EncodedVRefSize {
			return NodeRow{}, &pager.CorruptionError{Reason: "node row truncated overflow vref"}
		}
		ref, err := pager.DecodeVRef(rest[:pager.EncodedVRefSize])
		if err != nil {
			return NodeRow{}, err
		}
		rest = rest[pager.EncodedVRefSize:]
		if vs == nil {
			return NodeRow{}, &pager.CorruptionError{Reason: "overflow property bag without a VStore to resolve it"}
		}
		bag, err = vs.Read(src, pageSize, ref)
		if err != nil {
			return NodeRow{}, err
		}
	default:
		return NodeRow{}, &pager.CorruptionError{Reason: "unknown node row property storage tag"}
	}
	props, err := DecodeBag(src, pageSize, vs, bag)
	if err != nil {
		return NodeRow{}, err
	}

	if len(rest) < 1 {
		return NodeRow{}, &pager.CorruptionError{Reason: "node row truncated before presence byte"}
	}
	presence := rest[0]
	rest = rest[1:]

	row := NodeRow{Header: hdr, Prev: mvcc.VersionPtr(prev), Labels: labels, Props: props, AdjPage: pager.NullPageID}

	if presence&(1<<0) != 0 {
		var pg uint64
		pg, rest, err = readU64(rest)
		if err != nil {
			return NodeRow{}, err
		}
		row.AdjPage = pager.PageID(pg)
	}
	if presence&(1<<1) != 0 {
		var n uint16
		n, rest, err = readU16(rest)
		if err != nil {
			return NodeRow{}, err
		}
		if uint16(len(rest)) < n {
			return NodeRow{}, &pager.CorruptionError{Reason: "node row truncated inline adjacency header"}
		}
		row.InlineAdj = append([]byte(nil), rest[:n]...)
		rest = rest[n:]
	}
	if presence&(1<<2) != 0 {
		var h uint64
		h, rest, err = readU64(rest)
		if err != nil {
			return NodeRow{}, err
		}
		row.RowHash = h
		row.HasRowHash = true
	}
	if presence&(1<<3) != 0 {
		var n uint32
		n, rest, err = readU32(rest)
		if err != nil {
			return NodeRow{}, err
		}
		if uint32(len(rest)) < n {
			return NodeRow{}, &pager.CorruptionError{Reason: "node row truncated inline history"}
		}
		row.InlineHist = append([]byte(nil), rest[:n]...)
		rest = rest[n:]
	}

	return row, nil
}

func sortedUniqueLabels(labels []uint32) []uint32 {
	if len(labels) == 0 {
		return nil
	}
	out := append([]uint32(nil), labels...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	deduped := out[:1]
	for _, l := range out[1:] {
		if l != deduped[len(deduped)-1] {
			deduped = append(deduped, l)
		}
	}
	return deduped
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, &pager.CorruptionError{Reason: "row truncated reading u64"}
	}
	return binary.BigEndian.Uint64(b[:8]), b[8:], nil
}

func readU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, &pager.CorruptionError{Reason: "row truncated reading u32"}
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}

func readU16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, &pager.CorruptionError{Reason: "row truncated reading u16"}
	}
	return binary.BigEndian.Uint16(b[:2]), b[2:], nil
}
