package sombra

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateEdgeAppliesPropPatch(t *testing.T) {
	g := openTestGraph(t)

	a, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	b, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	edgeID, err := g.CreateEdge(NewEdge{Src: a, Dst: b, Type: 1, Props: map[PropID]PropValue{1: int64(1)}})
	require.NoError(t, err)

	require.NoError(t, g.UpdateEdge(edgeID, EdgePatch{
		SetProps:    map[PropID]PropValue{2: "x"},
		RemoveProps: []PropID{1},
	}))

	snap, err := g.BeginRead()
	require.NoError(t, err)
	defer snap.Close()

	e, err := g.GetEdge(snap, edgeID)
	require.NoError(t, err)
	require.Equal(t, "x", e.Props[2])
	_, hasOld := e.Props[1]
	require.False(t, hasOld)
}

func TestDeleteEdgeRemovesAdjacency(t *testing.T) {
	g := openTestGraph(t)

	a, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	b, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	edgeID, err := g.CreateEdge(NewEdge{Src: a, Dst: b, Type: 1})
	require.NoError(t, err)

	require.NoError(t, g.DeleteEdge(edgeID))

	snap, err := g.BeginRead()
	require.NoError(t, err)
	defer snap.Close()

	_, err = g.GetEdge(snap, edgeID)
	require.True(t, IsNotFound(err))

	nbs, err := g.Neighbors(snap, a, DirOut, NeighborOptions{})
	require.NoError(t, err)
	require.Empty(t, nbs)
}

func TestNeighborsNotVisibleBeforeEdgeCommit(t *testing.T) {
	g := openTestGraph(t)

	a, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	b, err := g.CreateNode(NewNode{})
	require.NoError(t, err)

	before, err := g.BeginRead()
	require.NoError(t, err)
	defer before.Close()

	_, err = g.CreateEdge(NewEdge{Src: a, Dst: b, Type: 1})
	require.NoError(t, err)

	after, err := g.BeginRead()
	require.NoError(t, err)
	defer after.Close()

	nbsBefore, err := g.Neighbors(before, a, DirOut, NeighborOptions{})
	require.NoError(t, err)
	require.Empty(t, nbsBefore, "a snapshot taken before the edge's commit must not see it as a neighbor")

	nbsAfter, err := g.Neighbors(after, a, DirOut, NeighborOptions{})
	require.NoError(t, err)
	require.Len(t, nbsAfter, 1)
	require.Equal(t, b, nbsAfter[0].Node)
}

func TestDegreeWithCacheEnabled(t *testing.T) {
	dir := t.TempDir()
	g, err := Open(dir+"/cache.db", GraphOptions{DegreeCache: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })

	a, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	b, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	c, err := g.CreateNode(NewNode{})
	require.NoError(t, err)
	_, err = g.CreateEdge(NewEdge{Src: a, Dst: b, Type: 1})
	require.NoError(t, err)
	_, err = g.CreateEdge(NewEdge{Src: a, Dst: c, Type: 1})
	require.NoError(t, err)

	snap, err := g.BeginRead()
	require.NoError(t, err)
	defer snap.Close()

	n, err := g.Degree(snap, a, DirOut, TypeID(1))
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}
