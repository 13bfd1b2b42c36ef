package index

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeValueKeyIntegerOrderPreserving(t *testing.T) {
	values := []int64{math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64}
	var keys [][]byte
	for _, v := range values {
		k, err := EncodeValueKey(v)
		require.NoError(t, err)
		keys = append(keys, k)
	}
	require.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 }))
}

func TestEncodeValueKeyFloatOrderPreserving(t *testing.T) {
	values := []float64{-1e300, -1.5, -0.0001, 0, 0.0001, 1.5, 1e300}
	var keys [][]byte
	for _, v := range values {
		k, err := EncodeValueKey(v)
		require.NoError(t, err)
		keys = append(keys, k)
	}
	require.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 }))
}

func TestEncodeValueKeyRejectsNaN(t *testing.T) {
	_, err := EncodeValueKey(math.NaN())
	require.Error(t, err)
}

// Length-prefixing groups strings by length before content, so "b" sorts
// before "aa" even though "aa" < "b" lexicographically — equality scans
// are unaffected, and ordering within one fixed length is preserved.
func TestEncodeValueKeyStringOrderPreservingWithinLength(t *testing.T) {
	values := []string{"", "a", "b", "aa", "ab"}
	var keys [][]byte
	for _, v := range values {
		k, err := EncodeValueKey(v)
		require.NoError(t, err)
		keys = append(keys, k)
	}
	require.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 }))
}
