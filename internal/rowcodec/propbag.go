// Package rowcodec encodes and decodes node rows, edge rows, and the
// property bag they carry (spec.md §3 "Node row" / "Edge row" /
// "Property bag"), including the inline-vs-VStore-overflow discriminator
// applied both to whole bags and to individual oversized string/bytes
// values.
package rowcodec

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/sombradb/sombra/internal/pager"
)

// PropID identifies a property within a label's schema (spec.md §3 "Identifiers").
type PropID = uint32

// PropKind tags the dynamic type of a PropValue.
type PropKind uint8

const (
	KindNull PropKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindDate
	KindDateTime
)

// Date is a day count since the Unix epoch (spec.md §3 "date ... reuse
// integer encoding").
type Date int32

// DateTime is a microsecond count since the Unix epoch.
type DateTime int64

// PropValue is one property's dynamic value. Supported underlying Go
// types: nil, bool, int64, float64, string, []byte, Date, DateTime.
type PropValue any

func kindOf(v PropValue) (PropKind, bool) {
	switch v.(type) {
	case nil:
		return KindNull, true
	case bool:
		return KindBool, true
	case int64:
		return KindInt, true
	case float64:
		return KindFloat, true
	case string:
		return KindString, true
	case []byte:
		return KindBytes, true
	case Date:
		return KindDate, true
	case DateTime:
		return KindDateTime, true
	default:
		return 0, false
	}
}

// valueInline/valueOverflow discriminate an individual
// string/bytes property's storage mode (spec.md §3 "Strings and bytes
// carry an inline/overflow discriminator").
const (
	valueInline   byte = 0
	valueOverflow byte = 1
)

// defaultInlinePropValue is used when the caller passes inlineValueMax<=0.
const defaultInlinePropValue = 48

// EncodeBag serializes props as count(varint) + per-entry
// propid(varint) ∥ type_tag(u8) ∥ payload. Any string or []byte value
// longer than inlineValueMax spills to its own overflow chain via vs,
// embedding a 20-byte VRef instead of the raw bytes.
func EncodeBag(w *pager.WriteGuard, pageSize int, vs *pager.VStore, props map[PropID]PropValue, inlineValueMax int) ([]byte, error) {
	if inlineValueMax <= 0 {
		inlineValueMax = defaultInlinePropValue
	}
	ids := sortedPropIDs(props)

	var out []byte
	out = appendUvarint(out, uint64(len(ids)))
	for _, id := range ids {
		v := props[id]
		kind, ok := kindOf(v)
		if !ok {
			return nil, &pager.CorruptionError{Reason: "unsupported property value type"}
		}
		out = appendUvarint(out, uint64(id))
		out = append(out, byte(kind))
		switch kind {
		case KindNull:
		case KindBool:
			b := byte(0)
			if v.(bool) {
				b = 1
			}
			out = append(out, b)
		case KindInt:
			out = appendVarint(out, v.(int64))
		case KindFloat:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(v.(float64)))
			out = append(out, buf[:]...)
		case KindDate:
			out = appendVarint(out, int64(v.(Date)))
		case KindDateTime:
			out = appendVarint(out, int64(v.(DateTime)))
		case KindString, KindBytes:
			var raw []byte
			if kind == KindString {
				raw = []byte(v.(string))
			} else {
				raw = v.([]byte)
			}
			if len(raw) <= inlineValueMax || vs == nil || w == nil {
				out = append(out, valueInline)
				out = appendUvarint(out, uint64(len(raw)))
				out = append(out, raw...)
			} else {
				ref, err := vs.Write(w, pageSize, raw)
				if err != nil {
					return nil, err
				}
				encoded := ref.Encode()
				out = append(out, valueOverflow)
				out = append(out, encoded[:]...)
			}
		}
	}
	return out, nil
}

// pageSource is satisfied by pager.ReadGuard and pager.WriteGuard.
type pageSource interface {
	GetPage(pager.PageID) ([]byte, error)
}

// DecodeBag parses bytes produced by EncodeBag, resolving any overflow
// string/bytes values via vs.
func DecodeBag(src pageSource, pageSize int, vs *pager.VStore, buf []byte) (map[PropID]PropValue, error) {
	n, rest, err := readUvarint(buf)
	if err != nil {
		return nil, err
	}
	out := make(map[PropID]PropValue, n)
	for i := uint64(0); i < n; i++ {
		id, r, err := readUvarint(rest)
		if err != nil {
			return nil, err
		}
		rest = r
		if len(rest) < 1 {
			return nil, &pager.CorruptionError{Reason: "property bag truncated before type tag"}
		}
		kind := PropKind(rest[0])
		rest = rest[1:]

		var val PropValue
		switch kind {
		case KindNull:
			val = nil
		case KindBool:
			if len(rest) < 1 {
				return nil, &pager.CorruptionError{Reason: "property bag truncated bool"}
			}
			val = rest[0] != 0
			rest = rest[1:]
		case KindInt:
			iv, r, err := readVarint(rest)
			if err != nil {
				return nil, err
			}
			val, rest = iv, r
		case KindFloat:
			if len(rest) < 8 {
				return nil, &pager.CorruptionError{Reason: "property bag truncated float"}
			}
			val = math.Float64frombits(binary.BigEndian.Uint64(rest[:8]))
			rest = rest[8:]
		case KindDate:
			iv, r, err := readVarint(rest)
			if err != nil {
				return nil, err
			}
			val, rest = Date(iv), r
		case KindDateTime:
			iv, r, err := readVarint(rest)
			if err != nil {
				return nil, err
			}
			val, rest = DateTime(iv), r
		case KindString, KindBytes:
			if len(rest) < 1 {
				return nil, &pager.CorruptionError{Reason: "property bag truncated discriminator"}
			}
			disc := rest[0]
			rest = rest[1:]
			var raw []byte
			if disc == valueInline {
				ln, r, err := readUvarint(rest)
				if err != nil {
					return nil, err
				}
				if uint64(len(r)) < ln {
					return nil, &pager.CorruptionError{Reason: "property bag truncated inline value"}
				}
				raw = append([]byte(nil), r[:ln]...)
				rest = r[ln:]
			} else {
				if len(rest) < pager.EncodedVRefSize {
					return nil, &pager.CorruptionError{Reason: "property bag truncated vref"}
				}
				var fixed [pager.EncodedVRefSize]byte
				copy(fixed[:], rest[:pager.EncodedVRefSize])
				rest = rest[pager.EncodedVRefSize:]
				ref, err := pager.DecodeVRef(fixed[:])
				if err != nil {
					return nil, err
				}
				if vs == nil {
					return nil, &pager.CorruptionError{Reason: "overflow property without a VStore to resolve it"}
				}
				raw, err = vs.Read(src, pageSize, ref)
				if err != nil {
					return nil, err
				}
			}
			if kind == KindString {
				val = string(raw)
			} else {
				val = raw
			}
		default:
			return nil, &pager.CorruptionError{Reason: "unknown property type tag"}
		}
		out[PropID(id)] = val
	}
	return out, nil
}

func sortedPropIDs(props map[PropID]PropValue) []PropID {
	ids := make([]PropID, 0, len(props))
	for id := range props {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendVarint(buf []byte, v int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func readUvarint(buf []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, nil, &pager.CorruptionError{Reason: "malformed uvarint"}
	}
	return v, buf[n:], nil
}

func readVarint(buf []byte) (int64, []byte, error) {
	v, n := binary.Varint(buf)
	if n <= 0 {
		return 0, nil, &pager.CorruptionError{Reason: "malformed varint"}
	}
	return v, buf[n:], nil
}
