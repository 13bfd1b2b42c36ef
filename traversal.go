package sombra

import (
	"github.com/sombradb/sombra/internal/adjacency"
	"github.com/sombradb/sombra/internal/rowcodec"
)

// Direction selects which side of an edge a traversal walks relative to
// the starting node (spec.md §4.4 "neighbors(node, dir, type?, opts)").
type Direction int

const (
	DirOut Direction = iota
	DirIn
)

func (d Direction) internal() adjacency.Dir {
	if d == DirIn {
		return adjacency.DirIn
	}
	return adjacency.DirOut
}

// NeighborOptions configures Neighbors/BFS.
type NeighborOptions struct {
	// Type restricts the scan to one edge type; nil scans every type.
	Type *TypeID
	// Distinct dedupes results by neighbor node id. If nil, falls back
	// to GraphOptions.DistinctNeighborsDefault.
	Distinct *bool
}

func (g *Graph) resolveDistinct(opts NeighborOptions) bool {
	if opts.Distinct != nil {
		return *opts.Distinct
	}
	return g.opts.DistinctNeighborsDefault
}

// NeighborEdge is one (neighbor, edge, type) tuple returned by Neighbors.
type NeighborEdge struct {
	Node NodeID
	Edge EdgeID
	Type TypeID
}

// Neighbors enumerates node's neighbors in direction dir, optionally
// filtered by edge type, as visible at snap's snapshot (spec.md §4.4).
// It prefers the node's IFA page when one is recorded, falling back to
// the plain B+ tree adjacency path otherwise.
func (g *Graph) Neighbors(snap *Snapshot, node NodeID, dir Direction, opts NeighborOptions) ([]NeighborEdge, error) {
	const op = "neighbors"
	var typ *uint32
	if opts.Type != nil {
		t := uint32(*opts.Type)
		typ = &t
	}

	nbs, err := g.rawNeighbors(snap.guard, node, dir.internal(), typ, snap.CommitID())
	if err != nil {
		return nil, wrapErr(op, err)
	}

	out := make([]NeighborEdge, 0, len(nbs))
	seen := make(map[uint64]bool, len(nbs))
	distinct := g.resolveDistinct(opts)
	for _, nb := range nbs {
		if distinct {
			if seen[nb.Node] {
				continue
			}
			seen[nb.Node] = true
		}
		out = append(out, NeighborEdge{Node: NodeID(nb.Node), Edge: EdgeID(nb.Edge), Type: TypeID(nb.Type)})
	}
	return out, nil
}

// rawNeighbors is the undeduplicated IFA-or-tree lookup shared by
// Neighbors and Degree.
func (g *Graph) rawNeighbors(r interface {
	GetPage(PageID) ([]byte, error)
}, node NodeID, dir adjacency.Dir, typ *uint32, snapshot CommitID) ([]adjacency.Neighbor, error) {
	v, ok, err := g.nodes.Get(r, nodeKey(node))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFoundf("neighbors", "node %d not found", node)
	}
	row, err := rowcodec.DecodeNodeRow(r, g.p.PageSize(), &g.vstore, v.([]byte))
	if err != nil {
		return nil, err
	}
	if row.AdjPage != PageID(0) {
		page, err := adjacency.ReadNodeAdjPage(r, row.AdjPage)
		if err != nil {
			return nil, err
		}
		return g.adj.NeighborsIFA(r, page, dir, typ, snapshot)
	}
	return g.adj.Trees.Neighbors(r, dir, uint64(node), typ, snapshot)
}

// Degree reports node's cached degree for (dir, type) when the degree
// cache feature is enabled, or an authoritative count via a direct scan
// otherwise (spec.md §4.4 "degree(node, dir, type?)").
func (g *Graph) Degree(snap *Snapshot, node NodeID, dir Direction, typ TypeID) (uint64, error) {
	const op = "degree"
	if g.opts.DegreeCache {
		n, err := g.adj.Degree.Get(snap.guard, uint64(node), dir.internal(), uint32(typ))
		if err != nil {
			return 0, wrapErr(op, err)
		}
		return n, nil
	}
	t := uint32(typ)
	nbs, err := g.rawNeighbors(snap.guard, node, dir.internal(), &t, snap.CommitID())
	if err != nil {
		return 0, wrapErr(op, err)
	}
	return uint64(len(nbs)), nil
}

// BFSOptions bounds a breadth-first traversal.
type BFSOptions struct {
	Dir       Direction
	Type      *TypeID
	MaxDepth  int // 0 means unbounded
	MaxNodes  int // 0 means unbounded
}

// BFSResult is one node reached by BFS, with its distance from the start.
type BFSResult struct {
	Node  NodeID
	Depth int
}

// BFS walks the graph breadth-first from start (spec.md §4.4
// "bfs(start, opts)"), visiting each reachable node once.
func (g *Graph) BFS(snap *Snapshot, start NodeID, opts BFSOptions) ([]BFSResult, error) {
	const op = "bfs"
	visited := map[NodeID]bool{start: true}
	queue := []BFSResult{{Node: start, Depth: 0}}
	var out []BFSResult

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		if opts.MaxNodes > 0 && len(out) >= opts.MaxNodes {
			break
		}
		if opts.MaxDepth > 0 && cur.Depth >= opts.MaxDepth {
			continue
		}
		nbs, err := g.Neighbors(snap, cur.Node, opts.Dir, NeighborOptions{Type: opts.Type})
		if err != nil {
			return nil, wrapErr(op, err)
		}
		for _, nb := range nbs {
			if visited[nb.Node] {
				continue
			}
			visited[nb.Node] = true
			queue = append(queue, BFSResult{Node: nb.Node, Depth: cur.Depth + 1})
		}
	}
	return out, nil
}
