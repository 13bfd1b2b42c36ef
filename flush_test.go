package sombra

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openDeferredTestGraph(t *testing.T) *Graph {
	t.Helper()
	dir := t.TempDir()
	g, err := Open(filepath.Join(dir, "deferred.db"), GraphOptions{
		DeferAdjacencyFlush: true,
		DeferIndexFlush:     true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })
	return g
}

func TestDeferredAdjacencyFlushCommitsVisibleNeighbors(t *testing.T) {
	g := openDeferredTestGraph(t)

	a, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	b, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	c, err := g.CreateNode(NewNode{})
	require.NoError(t, err)

	_, err = g.CreateEdge(NewEdge{Src: a, Dst: b, Type: 1})
	require.NoError(t, err)
	edgeAC, err := g.CreateEdge(NewEdge{Src: a, Dst: c, Type: 1})
	require.NoError(t, err)

	snap, err := g.BeginRead()
	require.NoError(t, err)
	defer snap.Close()

	out, err := g.Neighbors(snap, a, DirOut, NeighborOptions{})
	require.NoError(t, err)
	require.Len(t, out, 2)

	in, err := g.Neighbors(snap, c, DirIn, NeighborOptions{})
	require.NoError(t, err)
	require.Len(t, in, 1)
	require.Equal(t, a, in[0].Node)

	require.NoError(t, g.DeleteEdge(edgeAC))

	snap2, err := g.BeginRead()
	require.NoError(t, err)
	defer snap2.Close()

	out2, err := g.Neighbors(snap2, a, DirOut, NeighborOptions{})
	require.NoError(t, err)
	require.Len(t, out2, 1)
	require.Equal(t, b, out2[0].Node)
}

func TestDeferredIndexFlushCommitsVisiblePostings(t *testing.T) {
	g := openDeferredTestGraph(t)

	require.NoError(t, g.CreatePropertyIndex(LabelID(1), PropID(1), int64(0)))

	id, err := g.CreateNode(NewNode{Labels: []LabelID{1}, Props: map[PropID]PropValue{1: int64(9)}})
	require.NoError(t, err)

	snap, err := g.BeginRead()
	require.NoError(t, err)
	defer snap.Close()

	labeled, err := g.LabelScanStream(snap, LabelID(1))
	require.NoError(t, err)
	ids, err := labeled.Collect()
	require.NoError(t, err)
	require.Equal(t, []NodeID{id}, ids)

	eq, err := g.PropertyScanEq(snap, LabelID(1), PropID(1), int64(9))
	require.NoError(t, err)
	eqIDs, err := eq.Collect()
	require.NoError(t, err)
	require.Equal(t, []NodeID{id}, eqIDs)

	require.NoError(t, g.UpdateNode(id, NodePatch{RemoveProps: []PropID{1}}))

	snap2, err := g.BeginRead()
	require.NoError(t, err)
	defer snap2.Close()

	eq2, err := g.PropertyScanEq(snap2, LabelID(1), PropID(1), int64(9))
	require.NoError(t, err)
	eqIDs2, err := eq2.Collect()
	require.NoError(t, err)
	require.Empty(t, eqIDs2)
}
