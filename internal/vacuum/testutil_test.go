package vacuum

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/adjacency"
	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/index"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

func openTestDeps(t *testing.T) (*pager.Pager, *Deps) {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(pager.Config{Path: filepath.Join(dir, "vac.db"), PageSize: pager.MinPageSize, VerifyChecksum: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	deps := &Deps{
		Pager:    p,
		Commits:  mvcc.NewCommitTable(0),
		Log:      mvcc.OpenLog(p, btree.Options{}),
		Overflow: adjacency.OpenOverflowTree(p, btree.Options{}),
		Degree:   adjacency.OpenDegreeCache(p, btree.Options{}),
		Catalog:  index.OpenCatalog(p, btree.Options{}),
		Labels:   index.OpenLabelIndex(p, btree.Options{}),
		Props:    index.OpenPropertyIndex(p, btree.Options{}),
	}
	return p, deps
}
