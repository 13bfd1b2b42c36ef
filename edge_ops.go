package sombra

import (
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
	"github.com/sombradb/sombra/internal/rowcodec"
)

// NewEdge is the caller-supplied content for CreateEdge.
type NewEdge struct {
	Src, Dst NodeID
	Type     TypeID
	Props    map[PropID]PropValue
}

// Edge is the decoded, publicly visible shape of one edge's current row.
type Edge struct {
	ID       EdgeID
	Src, Dst NodeID
	Type     TypeID
	Props    map[PropID]PropValue
}

// CreateEdge inserts a directed edge from Src to Dst and returns its
// allocated id (spec.md §4.4 "insert adjacency entries on edge create").
// New nodes carry no IFA page by default, so the edge is recorded on the
// plain B+ tree adjacency path, which every node supports unconditionally
// (see DESIGN.md on IFA promotion policy).
func (g *Graph) CreateEdge(n NewEdge) (EdgeID, error) {
	const op = "create_edge"
	w, err := g.beginWrite(op)
	if err != nil {
		return 0, err
	}

	if _, ok, err := g.nodes.Get(w, nodeKey(n.Src)); err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	} else if !ok {
		g.abort(w)
		return 0, notFoundf(op, "source node %d not found", n.Src)
	}
	if _, ok, err := g.nodes.Get(w, nodeKey(n.Dst)); err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	} else if !ok {
		g.abort(w)
		return 0, notFoundf(op, "destination node %d not found", n.Dst)
	}

	var id EdgeID
	w.UpdateMeta(func(m *pager.Meta) {
		id = EdgeID(m.NextEdgeID)
		m.NextEdgeID++
	})

	commitID := w.ReserveCommitID()
	if err := g.commits.Reserve(commitID); err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}

	hdr := mvcc.VersionHeader{Begin: commitID, End: mvcc.CommitMax}
	row := rowcodec.EdgeRow{
		Header: hdr,
		Prev:   mvcc.NullVersionPtr,
		Src:    uint64(n.Src),
		Dst:    uint64(n.Dst),
		Type:   uint32(n.Type),
		Props:  n.Props,
	}
	buf, err := rowcodec.EncodeEdgeRow(w, g.p.PageSize(), &g.vstore, row, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}
	if err := g.edges.Put(w, edgeKey(id), buf); err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}

	adjHdr := mvcc.VersionHeader{Begin: commitID, End: mvcc.CommitMax}
	if err := g.stageOrInsertEdge(w, uint64(n.Src), uint32(n.Type), uint64(n.Dst), uint64(id), adjHdr); err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}

	if err := g.commits.MarkCommitted(commitID); err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}
	if err := g.commitWriteGuard(op, w); err != nil {
		return 0, err
	}
	return id, nil
}

// GetEdge resolves an edge by id as visible at snap (mirrors GetNode's
// visibility walk over the version log).
func (g *Graph) GetEdge(snap *Snapshot, id EdgeID) (Edge, error) {
	const op = "get_edge"
	v, ok, err := g.edges.Get(snap.guard, edgeKey(id))
	if err != nil {
		return Edge{}, wrapErr(op, err)
	}
	if !ok {
		return Edge{}, notFoundf(op, "edge %d not found", id)
	}
	row, err := rowcodec.DecodeEdgeRow(snap.guard, g.p.PageSize(), &g.vstore, v.([]byte))
	if err != nil {
		return Edge{}, wrapErr(op, err)
	}

	snapshot := snap.CommitID()
	for !row.Header.VisibleAt(snapshot) {
		if row.Prev.IsNull() {
			return Edge{}, notFoundf(op, "edge %d has no version visible at snapshot %d", id, snapshot)
		}
		entry, found, err := g.vlog.GetCached(snap.guard, row.Prev, g.vcache)
		if err != nil {
			return Edge{}, wrapErr(op, err)
		}
		if !found {
			return Edge{}, wrapErr(op, &pager.CorruptionError{Reason: "version log entry missing for live prev_ptr"})
		}
		row, err = rowcodec.DecodeEdgeRow(snap.guard, g.p.PageSize(), &g.vstore, entry.Payload)
		if err != nil {
			return Edge{}, wrapErr(op, err)
		}
		row.Prev = entry.Prev
	}
	if row.Header.IsTombstone() {
		return Edge{}, notFoundf(op, "edge %d is deleted as of snapshot %d", id, snapshot)
	}
	return Edge{ID: id, Src: NodeID(row.Src), Dst: NodeID(row.Dst), Type: TypeID(row.Type), Props: row.Props}, nil
}

// EdgePatch describes a partial update to an edge's properties.
type EdgePatch struct {
	SetProps    map[PropID]PropValue
	RemoveProps []PropID
}

// UpdateEdge applies patch to the current head version of edge id,
// archiving the prior version to the version log exactly as UpdateNode
// does.
func (g *Graph) UpdateEdge(id EdgeID, patch EdgePatch) error {
	const op = "update_edge"
	w, err := g.beginWrite(op)
	if err != nil {
		return err
	}

	v, ok, err := g.edges.Get(w, edgeKey(id))
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if !ok {
		g.abort(w)
		return notFoundf(op, "edge %d not found", id)
	}
	oldRow, err := rowcodec.DecodeEdgeRow(w, g.p.PageSize(), &g.vstore, v.([]byte))
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if oldRow.Header.IsTombstone() {
		g.abort(w)
		return notFoundf(op, "edge %d is deleted", id)
	}

	newProps := applyPropPatch(oldRow.Props, patch.SetProps, patch.RemoveProps)

	commitID := w.ReserveCommitID()
	if err := g.commits.Reserve(commitID); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	archived := oldRow
	archived.Header.End = commitID
	archivedBuf, err := rowcodec.EncodeEdgeRow(w, g.p.PageSize(), &g.vstore, archived, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	prevPtr, err := g.vlog.Append(w, mvcc.LogEntry{
		Space:     mvcc.SpaceEdge,
		LogicalID: uint64(id),
		Header:    archived.Header,
		Prev:      oldRow.Prev,
		Payload:   archivedBuf,
	})
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	newRow := rowcodec.EdgeRow{
		Header: mvcc.VersionHeader{Begin: commitID, End: mvcc.CommitMax},
		Prev:   prevPtr,
		Src:    oldRow.Src,
		Dst:    oldRow.Dst,
		Type:   oldRow.Type,
		Props:  newProps,
	}
	buf, err := rowcodec.EncodeEdgeRow(w, g.p.PageSize(), &g.vstore, newRow, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if err := g.edges.Put(w, edgeKey(id), buf); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	if err := g.commits.MarkCommitted(commitID); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	return g.commitWriteGuard(op, w)
}

// DeleteEdge tombstones edge id and removes its adjacency entries.
func (g *Graph) DeleteEdge(id EdgeID) error {
	const op = "delete_edge"
	w, err := g.beginWrite(op)
	if err != nil {
		return err
	}
	commitID := w.ReserveCommitID()
	if err := g.commits.Reserve(commitID); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if err := g.deleteEdgeLocked(w, commitID, id); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if err := g.commits.MarkCommitted(commitID); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	return g.commitWriteGuard(op, w)
}

// deleteEdgeLocked tombstones edge id within an already-open write
// transaction, using a commit id the caller already reserved. Shared by
// DeleteEdge and DeleteNode's cascade path.
func (g *Graph) deleteEdgeLocked(w *pager.WriteGuard, commitID CommitID, id EdgeID) error {
	v, ok, err := g.edges.Get(w, edgeKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return notFoundf("delete_edge", "edge %d not found", id)
	}
	oldRow, err := rowcodec.DecodeEdgeRow(w, g.p.PageSize(), &g.vstore, v.([]byte))
	if err != nil {
		return err
	}
	if oldRow.Header.IsTombstone() {
		return nil
	}

	archived := oldRow
	archived.Header.End = commitID
	archivedBuf, err := rowcodec.EncodeEdgeRow(w, g.p.PageSize(), &g.vstore, archived, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		return err
	}
	prevPtr, err := g.vlog.Append(w, mvcc.LogEntry{
		Space:     mvcc.SpaceEdge,
		LogicalID: uint64(id),
		Header:    archived.Header,
		Prev:      oldRow.Prev,
		Payload:   archivedBuf,
	})
	if err != nil {
		return err
	}

	tomb := rowcodec.EdgeRow{
		Header: mvcc.VersionHeader{Begin: commitID, End: mvcc.CommitMax, Flags: mvcc.FlagTombstone},
		Prev:   prevPtr,
		Src:    oldRow.Src,
		Dst:    oldRow.Dst,
		Type:   oldRow.Type,
	}
	buf, err := rowcodec.EncodeEdgeRow(w, g.p.PageSize(), &g.vstore, tomb, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		return err
	}
	if err := g.edges.Put(w, edgeKey(id), buf); err != nil {
		return err
	}

	if err := g.stageOrRemoveEdge(w, oldRow.Src, oldRow.Type, oldRow.Dst, uint64(id)); err != nil {
		return err
	}
	return nil
}

// ScanAllEdges streams every edge visible at snap's snapshot, in
// ascending id order.
func (g *Graph) ScanAllEdges(snap *Snapshot) ([]Edge, error) {
	const op = "scan_all_edges"
	cur, err := g.edges.Cursor(snap.guard, nil, nil)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	var out []Edge
	for {
		k, v, ok, err := cur.Next()
		if err != nil {
			return nil, wrapErr(op, err)
		}
		if !ok {
			break
		}
		row, err := rowcodec.DecodeEdgeRow(snap.guard, g.p.PageSize(), &g.vstore, v.([]byte))
		if err != nil {
			return nil, wrapErr(op, err)
		}
		if !row.Header.VisibleAt(snap.CommitID()) {
			// The head is newer than snap; an older version may still be
			// visible through the version log.
			e, err := g.GetEdge(snap, decodeEdgeKey(k.([]byte)))
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, e)
			continue
		}
		if row.Header.IsTombstone() {
			continue
		}
		out = append(out, Edge{
			ID:    decodeEdgeKey(k.([]byte)),
			Src:   NodeID(row.Src),
			Dst:   NodeID(row.Dst),
			Type:  TypeID(row.Type),
			Props: row.Props,
		})
	}
	return out, nil
}
