package rowcodec

import (
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// EdgeRow is the decoded value stored in the edge tree, keyed by EdgeId
// (spec.md §3 "Edge row").
type EdgeRow struct {
	Header     mvcc.VersionHeader
	Prev       mvcc.VersionPtr
	Src        uint64
	Dst        uint64
	Type       uint32
	Props      map[PropID]PropValue
	RowHash    uint64
	HasRowHash bool
	InlineHist []byte
}

// EncodeEdgeRow serializes row per spec.md §3's edge-row layout.
func EncodeEdgeRow(w *pager.WriteGuard, pageSize int, vs *pager.VStore, row EdgeRow, inlineValueMax, inlineBagMax int) ([]byte, error) {
	bag, err := EncodeBag(w, pageSize, vs, row.Props, inlineValueMax)
	if err != nil {
		return nil, err
	}

	hdr := row.Header.Encode()
	var out []byte
	out = append(out, hdr[:]...)
	out = appendU64(out, uint64(row.Prev))
	out = appendU64(out, row.Src)
	out = appendU64(out, row.Dst)
	out = appendU32(out, row.Type)

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

	hasInlineHist := row.Header.HasInlineHistory() && len(row.InlineHist) > 0

	var presence byte
	if row.HasRowHash {
		presence |= 1 << 0
	}
	if hasInlineHist {
		presence |= 1 << 1
	}
	out = append(out, presence)

	if row.HasRowHash {
		out = appendU64(out, row.RowHash)
	}
	if hasInlineHist {
		out = appendU32(out, uint32(len(row.InlineHist)))
		out = append(out, row.InlineHist...)
	}

	return out, nil
}

// DecodeEdgeRow parses bytes produced by EncodeEdgeRow.
func DecodeEdgeRow(src pageSource, pageSize int, vs *pager.VStore, buf []byte) (EdgeRow, error) {
	if len(buf) < mvcc.VersionHeaderLen {
		return EdgeRow{}, &pager.CorruptionError{Reason: "edge row truncated before version header"}
	}
	hdr, err := mvcc.DecodeVersionHeader(buf)
	if err != nil {
		return EdgeRow{}, err
	}
	rest := buf[mvcc.VersionHeaderLen:]

	prev, rest, err := readU64(rest)
	if err != nil {
		return EdgeRow{}, err
	}
	src64, rest, err := readU64(rest)
	if err != nil {
		return EdgeRow{}, err
	}
	dst, rest, err := readU64(rest)
	if err != nil {
		return EdgeRow{}, err
	}
	typ, rest, err := readU32(rest)
	if err != nil {
		return EdgeRow{}, err
	}

	if len(rest) < 1 {
		return EdgeRow{}, &pager.CorruptionError{Reason: "edge row truncated before property storage tag"}
	}
	storageTag := rest[0]
	rest = rest[1:]

	var bag []byte
	switch storageTag {
	case propStorageInline:
		var n uint16
		n, rest, err = readU16(rest)
		if err != nil {
			return EdgeRow{}, err
		}
		if uint16(len(rest)) < n {
			return EdgeRow{}, &pager.CorruptionError{Reason: "edge row truncated inline property bag"}
		}
		bag = rest[:n]
		rest = rest[n:]
	case propStorageOverflow:
		if len(rest) < pager.EncodedVRefSize {
			return EdgeRow{}, &pager.CorruptionError{Reason: "edge row truncated overflow vref"}
		}
		ref, err := pager.DecodeVRef(rest[:pager.EncodedVRefSize])
		if err != nil {
			return EdgeRow{}, err
		}
		rest = rest[pager.EncodedVRefSize:]
		if vs == nil {
			return EdgeRow{}, &pager.CorruptionError{Reason: "overflow property bag without a VStore to resolve it"}
		}
		bag, err = vs.Read(src, pageSize, ref)
		if err != nil {
			return EdgeRow{}, err
		}
	default:
		return EdgeRow{}, &pager.CorruptionError{Reason: "unknown edge row property storage tag"}
	}
	props, err := DecodeBag(src, pageSize, vs, bag)
	if err != nil {
		return EdgeRow{}, err
	}

	if len(rest) < 1 {
		return EdgeRow{}, &pager.CorruptionError{Reason: "edge row truncated before presence byte"}
	}
	presence := rest[0]
	rest = rest[1:]

	row := EdgeRow{
		Header: hdr,
		Prev:   mvcc.VersionPtr(prev),
		Src:    src64,
		Dst:    dst,
		Type:   typ,
		Props:  props,
	}

	if presence&(1<<0) != 0 {
		var h uint64
		h, rest, err = readU64(rest)
		if err != nil {
			return EdgeRow{}, err
		}
		row.RowHash = h
		row.HasRowHash = true
	}
	if presence&(1<<1) != 0 {
		var n uint32
		n, rest, err = readU32(rest)
		if err != nil {
			return EdgeRow{}, err
		}
		if uint32(len(rest)) < n {
			return EdgeRow{}, &pager.CorruptionError{Reason: "edge row truncated inline history"}
		}
		row.InlineHist = append([]byte(nil), rest[:n]...)
		rest = rest[n:]
	}

	return row, nil
}
