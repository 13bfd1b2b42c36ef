package mvcc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRowHashDeterministic(t *testing.T) {
	body := []byte("node:7:label=Person:prop=99")
	require.Equal(t, RowHash(body), RowHash(append([]byte(nil), body...)))
}

func TestRowHashDiffersOnChange(t *testing.T) {
	a := RowHash([]byte("prop=99"))
	b := RowHash([]byte("prop=100"))
	require.NotEqual(t, a, b)
}

func TestRowHashEmptyInput(t *testing.T) {
	require.NotPanics(t, func() { RowHash(nil) })
}

func TestRowHashVariousLengths(t *testing.T) {
	for n := 0; n < 32; n++ {
		body := make([]byte, n)
		for i := range body {
			body[i] = byte(i)
		}
		require.NotPanics(t, func() { RowHash(body) })
	}
}
