package adjacency

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/pager"
)

func openTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(pager.Config{Path: filepath.Join(dir, "adj.db"), PageSize: pager.MinPageSize, VerifyChecksum: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}
