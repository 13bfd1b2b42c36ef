package pager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestPager(t *testing.T) *Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := Open(Config{Path: filepath.Join(dir, "test.db"), PageSize: DefaultPageSize, VerifyChecksum: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func TestOpenCreatesMetaPage(t *testing.T) {
	p := openTestPager(t)
	m := p.Meta()
	require.Equal(t, uint32(DefaultPageSize), m.PageSize)
	require.EqualValues(t, 1, m.NextNodeID)
	require.EqualValues(t, 1, m.NextCommitID)
}

func TestWriteGuardCommitPersistsPages(t *testing.T) {
	p := openTestPager(t)

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id := w.AllocatePage()
	buf, err := w.PageMut(id)
	require.NoError(t, err)
	copy(buf[HeaderSize:], []byte("payload"))
	w.PutPage(id, buf)
	w.UpdateMeta(func(m *Meta) { m.NodeRoot = id })
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	got, err := r.GetPage(id)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got[HeaderSize:HeaderSize+7])
	require.Equal(t, id, p.Meta().NodeRoot)
}

func TestVStoreRoundTrip(t *testing.T) {
	p := openTestPager(t)
	payload := make([]byte, 3*overflowCapacity(p.PageSize())+17)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	w, err := p.BeginWrite()
	require.NoError(t, err)
	var vs VStore
	ref, err := vs.Write(w, p.PageSize(), payload)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	got, err := vs.Read(r, p.PageSize(), ref)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFreePageIsReused(t *testing.T) {
	p := openTestPager(t)

	w, err := p.BeginWrite()
	require.NoError(t, err)
	id := w.AllocatePage()
	_, err = w.PageMut(id)
	require.NoError(t, err)
	w.FreePage(id)
	require.NoError(t, p.Commit(w))

	w2, err := p.BeginWrite()
	require.NoError(t, err)
	reused := w2.AllocatePage()
	require.NoError(t, p.Commit(w2))
	require.Equal(t, id, reused)
}
