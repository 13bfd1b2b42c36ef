package btree

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/pager"
)

func newTestTree(t *testing.T, opts Options) (*pager.Pager, *Tree) {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(pager.Config{Path: filepath.Join(dir, "t.db"), PageSize: pager.MinPageSize, VerifyChecksum: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	ra := RootAccessor{
		Get: func(m *pager.Meta) pager.PageID { return m.NodeRoot },
		Set: func(m *pager.Meta, id pager.PageID) { m.NodeRoot = id },
	}
	tr := Open(p, ra, RawCodec{}, RawCodec{}, opts)
	return p, tr
}

func u64key(n int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func TestPutGetBasic(t *testing.T) {
	p, tr := newTestTree(t, Options{})
	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tr.Put(w, []byte("a"), []byte("1")))
	require.NoError(t, tr.Put(w, []byte("b"), []byte("2")))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	v, ok, err := tr.Get(r, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	_, ok, err = tr.Get(r, []byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpsertOverwritesValue(t *testing.T) {
	p, tr := newTestTree(t, Options{})
	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tr.Put(w, []byte("k"), []byte("v1")))
	require.NoError(t, tr.Put(w, []byte("k"), []byte("v2")))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	v, ok, err := tr.Get(r, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
}

func TestSplitPropagatesToRoot(t *testing.T) {
	p, tr := newTestTree(t, Options{})
	w, err := p.BeginWrite()
	require.NoError(t, err)
	const n = 400
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Put(w, u64key(i), []byte(fmt.Sprintf("value-%d", i))))
	}
	require.NoError(t, p.Commit(w))
	require.Greater(t, tr.StatsSnapshot().Splits, uint64(0))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	for i := 0; i < n; i++ {
		v, ok, err := tr.Get(r, u64key(i))
		require.NoError(t, err)
		require.True(t, ok, "missing key %d", i)
		require.Equal(t, []byte(fmt.Sprintf("value-%d", i)), v)
	}
}

func TestCursorAscendingRange(t *testing.T) {
	p, tr := newTestTree(t, Options{})
	w, err := p.BeginWrite()
	require.NoError(t, err)
	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Put(w, u64key(i), u64key(i)))
	}
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	c, err := tr.Cursor(r, u64key(25), u64key(28))
	require.NoError(t, err)
	var got []int
	for {
		k, _, ok, err := c.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, int(binary.BigEndian.Uint64(k.([]byte))))
	}
	require.Equal(t, []int{25, 26, 27}, got)
}

func TestDeleteTriggersMergeAndRootCollapse(t *testing.T) {
	p, tr := newTestTree(t, Options{})
	w, err := p.BeginWrite()
	require.NoError(t, err)
	const n = 300
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Put(w, u64key(i), u64key(i)))
	}
	require.NoError(t, p.Commit(w))
	require.Greater(t, tr.StatsSnapshot().Splits, uint64(0))

	w2, err := p.BeginWrite()
	require.NoError(t, err)
	for i := n / 2; i < n; i++ {
		ok, err := tr.Delete(w2, u64key(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, p.Commit(w2))
	require.Greater(t, tr.StatsSnapshot().Merges, uint64(0))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	for i := 0; i < n/2; i++ {
		_, ok, err := tr.Get(r, u64key(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := n / 2; i < n; i++ {
		_, ok, err := tr.Get(r, u64key(i))
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	p, tr := newTestTree(t, Options{})
	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, tr.Put(w, []byte("x"), []byte("y")))
	ok, err := tr.Delete(w, []byte("nope"))
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, p.Commit(w))
}
