package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/rowcodec"
)

func TestCatalogCreateLookupDrop(t *testing.T) {
	p := openTestPager(t)
	cat := OpenCatalog(p, btree.Options{})

	w, err := p.BeginWrite()
	require.NoError(t, err)
	startEpoch := p.Meta().DDLEpoch
	require.NoError(t, cat.Create(w, IndexDef{Label: 1, Prop: 2, TypeTag: rowcodec.KindInt, Kind: KindProperty}))
	require.NoError(t, p.Commit(w))
	require.Equal(t, startEpoch+1, p.Meta().DDLEpoch)

	r, err := p.BeginRead()
	require.NoError(t, err)
	d, ok, err := cat.Lookup(r, 1, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, KindProperty, d.Kind)
	require.Equal(t, rowcodec.KindInt, d.TypeTag)
	r.Close()

	w, err = p.BeginWrite()
	require.NoError(t, err)
	found, err := cat.Drop(w, 1, 2)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, p.Commit(w))
	require.Equal(t, startEpoch+2, p.Meta().DDLEpoch)

	r, err = p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	_, ok, err = cat.Lookup(r, 1, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCatalogForLabel(t *testing.T) {
	p := openTestPager(t)
	cat := OpenCatalog(p, btree.Options{})

	w, err := p.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, cat.Create(w, IndexDef{Label: 1, Prop: 1, TypeTag: rowcodec.KindInt, Kind: KindProperty}))
	require.NoError(t, cat.Create(w, IndexDef{Label: 1, Prop: 2, TypeTag: rowcodec.KindString, Kind: KindProperty}))
	require.NoError(t, cat.Create(w, IndexDef{Label: 2, Prop: 1, TypeTag: rowcodec.KindInt, Kind: KindProperty}))
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	defs, err := cat.ForLabel(r, 1)
	require.NoError(t, err)
	require.Len(t, defs, 2)
}
