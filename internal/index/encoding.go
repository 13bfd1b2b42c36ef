package index

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sombradb/sombra/internal/rowcodec"
)

// EncodeValueKey produces the order-preserving byte encoding for v used as
// the prefix of a property-index key (spec.md §4.5 "Property index"):
// integers are XOR'ed with the sign bit so two's-complement ordering
// becomes lexicographic; floats are flipped depending on sign so IEEE 754
// bit patterns sort the same as their numeric values; strings/bytes are
// length-prefixed; date/datetime reuse the integer encoding. NaN is
// rejected since it has no well-defined position in a total order.
func EncodeValueKey(v rowcodec.PropValue) ([]byte, error) {
	switch x := v.(type) {
	case bool:
		if x {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case int64:
		return encodeOrderedInt(uint64(x) ^ (1 << 63)), nil
	case float64:
		if math.IsNaN(x) {
			return nil, fmt.Errorf("index: NaN has no defined sort order")
		}
		return encodeOrderedFloat(x), nil
	case string:
		return encodeLengthPrefixed([]byte(x)), nil
	case []byte:
		return encodeLengthPrefixed(x), nil
	case rowcodec.Date:
		return encodeOrderedInt(uint64(int64(x)) ^ (1 << 63)), nil
	case rowcodec.DateTime:
		return encodeOrderedInt(uint64(int64(x)) ^ (1 << 63)), nil
	case nil:
		return nil, fmt.Errorf("index: null has no indexable value")
	default:
		return nil, fmt.Errorf("index: unsupported property value type %T", v)
	}
}

func encodeOrderedInt(bits uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bits)
	return buf[:]
}

// encodeOrderedFloat maps an IEEE 754 double to a byte string that sorts
// the same as the float's numeric value: for non-negative floats, flip the
// sign bit; for negative floats, flip every bit (reversing their order).
func encodeOrderedFloat(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bits)
	return buf[:]
}

func encodeLengthPrefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(b)))
	copy(out[4:], b)
	return out
}
