package rowcodec

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/pager"
)

func openTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(pager.Config{Path: filepath.Join(dir, "rows.db"), PageSize: pager.MinPageSize})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func TestEncodeDecodeBagScalarTypes(t *testing.T) {
	p := openTestPager(t)
	vs := &pager.VStore{}
	w, err := p.BeginWrite()
	require.NoError(t, err)

	props := map[PropID]PropValue{
		1: nil,
		2: true,
		3: int64(-42),
		4: 3.5,
		5: "short",
		6: []byte{1, 2, 3},
		7: Date(19723),
		8: DateTime(1700000000000000),
	}
	enc, err := EncodeBag(w, p.PageSize(), vs, props, 48)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	got, err := DecodeBag(r, p.PageSize(), vs, enc)
	require.NoError(t, err)
	require.Equal(t, props, got)
}

func TestEncodeDecodeBagOverflowString(t *testing.T) {
	p := openTestPager(t)
	vs := &pager.VStore{}
	w, err := p.BeginWrite()
	require.NoError(t, err)

	big := strings.Repeat("x", 200)
	props := map[PropID]PropValue{1: big}
	enc, err := EncodeBag(w, p.PageSize(), vs, props, 48)
	require.NoError(t, err)
	require.NoError(t, p.Commit(w))

	r, err := p.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	got, err := DecodeBag(r, p.PageSize(), vs, enc)
	require.NoError(t, err)
	require.Equal(t, big, got[1])
}

func TestEncodeBagRejectsUnsupportedType(t *testing.T) {
	props := map[PropID]PropValue{1: 7}
	_, err := EncodeBag(nil, 4096, nil, props, 48)
	require.Error(t, err)
}

func TestDecodeBagRejectsTruncatedInput(t *testing.T) {
	_, err := DecodeBag(nil, 4096, nil, []byte{0x05})
	require.Error(t, err)
}
