package vacuum

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/adjacency"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// registerCommit records id as reserved, committed, and immediately
// released in deps' commit table, advancing the vacuum horizon to id —
// these tests care about horizon progression, not reader retention.
func registerCommit(t *testing.T, deps *Deps, id mvcc.CommitID) {
	t.Helper()
	require.NoError(t, deps.Commits.Reserve(id))
	require.NoError(t, deps.Commits.MarkCommitted(id))
	deps.Commits.ReleaseCommitted(id)
}

func TestPassPrunesExpiredLogEntries(t *testing.T) {
	_, deps := openTestDeps(t)

	w, err := deps.Pager.BeginWrite()
	require.NoError(t, err)
	id := w.ReserveCommitID()
	_, err = deps.Log.Append(w, mvcc.LogEntry{
		Space: mvcc.SpaceNode, LogicalID: 1,
		Header: mvcc.VersionHeader{Begin: 1, End: id},
	})
	require.NoError(t, err)
	liveLive, err := deps.Log.Append(w, mvcc.LogEntry{
		Space: mvcc.SpaceNode, LogicalID: 2,
		Header: mvcc.VersionHeader{Begin: 1, End: mvcc.CommitMax},
	})
	require.NoError(t, err)
	require.NoError(t, deps.Pager.Commit(w))
	registerCommit(t, deps, id)

	stats, err := Pass(deps, Config{Enabled: true, Retention: 0, IndexCleanup: true})
	require.NoError(t, err)
	require.Equal(t, 1, stats.LogEntriesPruned)

	r, err := deps.Pager.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	_, ok, err := deps.Log.Get(r, liveLive)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPassReclaimsOverflowSegmentHistory(t *testing.T) {
	_, deps := openTestDeps(t)
	pageSize := deps.Pager.PageSize()

	w, err := deps.Pager.BeginWrite()
	require.NoError(t, err)
	commitA := w.ReserveCommitID()
	seg1 := adjacency.NewAdjSegment(100, adjacency.DirOut, 9, commitA)
	seg1.Insert(adjacency.AdjEntry{Neighbor: 2, Edge: 20, Xmin: commitA})
	ptr1, err := adjacency.WriteSegment(w, pageSize, seg1)
	require.NoError(t, err)
	require.NoError(t, deps.Overflow.Set(w, 100, adjacency.DirOut, 9, ptr1))
	require.NoError(t, deps.Pager.Commit(w))
	registerCommit(t, deps, commitA)

	w, err = deps.Pager.BeginWrite()
	require.NoError(t, err)
	commitB := w.ReserveCommitID()
	old, err := adjacency.ReadSegment(w, pageSize, ptr1)
	require.NoError(t, err)
	seg2 := adjacency.CowClone(old, ptr1, commitB)
	seg2.Insert(adjacency.AdjEntry{Neighbor: 3, Edge: 21, Xmin: commitB})
	ptr2, err := adjacency.WriteSegment(w, pageSize, seg2)
	require.NoError(t, err)
	require.NoError(t, adjacency.MarkSegmentSuperseded(w, ptr1, commitB))
	require.NoError(t, deps.Overflow.Set(w, 100, adjacency.DirOut, 9, ptr2))
	require.NoError(t, deps.Pager.Commit(w))
	registerCommit(t, deps, commitB)

	stats, err := Pass(deps, Config{Enabled: true, Retention: 0})
	require.NoError(t, err)
	require.Equal(t, 1, stats.SegmentsFreed)

	r, err := deps.Pager.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	seg, err := adjacency.ReadSegment(r, pageSize, ptr2)
	require.NoError(t, err)
	require.Equal(t, pager.NullPageID, seg.Header.PrevVersion)
}

func TestPassPrunesStaleIndexPostings(t *testing.T) {
	_, deps := openTestDeps(t)

	w, err := deps.Pager.BeginWrite()
	require.NoError(t, err)
	id := w.ReserveCommitID()
	require.NoError(t, deps.Labels.Insert(w, 1, 42, mvcc.VersionHeader{Begin: 1, End: id}))
	require.NoError(t, deps.Pager.Commit(w))
	registerCommit(t, deps, id)

	stats, err := Pass(deps, Config{Enabled: true, Retention: 0, IndexCleanup: true})
	require.NoError(t, err)
	require.Equal(t, 1, stats.IndexPostingsPruned)

	r, err := deps.Pager.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	stream, err := deps.Labels.ScanEq(r, 1, 100)
	require.NoError(t, err)
	nodes, err := stream.Collect()
	require.NoError(t, err)
	require.Empty(t, nodes)
}
