package sombra

import (
	"github.com/sombradb/sombra/internal/index"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
	"github.com/sombradb/sombra/internal/rowcodec"
)

const maxLabelsPerNode = 255

// NewNode is the caller-supplied content for CreateNode.
type NewNode struct {
	Labels []LabelID
	Props  map[PropID]PropValue
}

// Node is the decoded, publicly visible shape of one node's current row.
type Node struct {
	ID     NodeID
	Labels []LabelID
	Props  map[PropID]PropValue
}

func toUint32Labels(labels []LabelID) []uint32 {
	out := make([]uint32, len(labels))
	for i, l := range labels {
		out[i] = uint32(l)
	}
	return out
}

func toLabelIDs(labels []uint32) []LabelID {
	out := make([]LabelID, len(labels))
	for i, l := range labels {
		out[i] = LabelID(l)
	}
	return out
}

// CreateNode inserts a new node and returns its allocated id (spec.md §3
// "Create node"). The row is published with PENDING set, index postings
// are staged, and PENDING is cleared once they land — so a concurrent
// reader never observes a node whose label/property postings aren't
// caught up yet.
func (g *Graph) CreateNode(n NewNode) (NodeID, error) {
	const op = "create_node"
	if len(n.Labels) > maxLabelsPerNode {
		return 0, invalidf(op, "node carries %d labels, max is %d", len(n.Labels), maxLabelsPerNode)
	}

	w, err := g.beginWrite(op)
	if err != nil {
		return 0, err
	}

	var id NodeID
	w.UpdateMeta(func(m *pager.Meta) {
		id = NodeID(m.NextNodeID)
		m.NextNodeID++
	})

	commitID := w.ReserveCommitID()
	if err := g.commits.Reserve(commitID); err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}

	hdr := mvcc.VersionHeader{Begin: commitID, End: mvcc.CommitMax}.WithPending()
	row := rowcodec.NodeRow{
		Header:  hdr,
		Prev:    mvcc.NullVersionPtr,
		Labels:  toUint32Labels(n.Labels),
		Props:   n.Props,
		AdjPage: pager.NullPageID,
	}
	buf, err := rowcodec.EncodeNodeRow(w, g.p.PageSize(), &g.vstore, row, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}
	if err := g.nodes.Put(w, nodeKey(id), buf); err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}

	if err := g.stageLabelAndPropertyInserts(w, uint64(id), toUint32Labels(n.Labels), n.Props); err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}

	finalHdr := hdr.WithoutPending()
	row.Header = finalHdr
	buf, err = rowcodec.EncodeNodeRow(w, g.p.PageSize(), &g.vstore, row, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return 0, wrapErr(op, err)
	}
	if err := g.nodes.Put(w, nodeKey(id), buf); err != nil {
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

func (g *Graph) stageLabelAndPropertyInserts(w *pager.WriteGuard, node uint64, labels []uint32, props map[PropID]PropValue) error {
	hdr := mvcc.VersionHeader{Begin: 0, End: mvcc.CommitMax}
	for _, l := range labels {
		if err := g.stageOrInsertLabel(w, l, node, hdr); err != nil {
			return err
		}
		defs, err := g.indexDefsForLabel(w, l)
		if err != nil {
			return err
		}
		changes := index.DiffProperties(defs, l, node, nil, props)
		if err := g.stageOrApplyIndexChanges(w, changes); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) applyIndexChanges(w *pager.WriteGuard, changes []index.Change) error {
	hdr := mvcc.VersionHeader{Begin: 0, End: mvcc.CommitMax}
	for _, c := range changes {
		switch c.Kind {
		case index.ChangeInsert:
			if err := g.props.Insert(w, c.Value, c.Node, hdr); err != nil {
				return err
			}
		case index.ChangeRemove:
			if _, err := g.props.Remove(w, c.Value, c.Node); err != nil {
				return err
			}
		}
	}
	return nil
}

// commitWriteGuard is the shared commit path used by every mutating
// operation, timing the commit for the commit-latency metric.
func (g *Graph) commitWriteGuard(op string, w *pager.WriteGuard) error {
	started := nowForMetrics()
	return g.commit(op, w, started)
}

// GetNode resolves a node by id as visible at snap (spec.md §3 "Get
// node"). If the tree's current head row isn't visible to snap, the
// version-log chain is walked via prev_ptr until a visible version is
// found or the chain is exhausted.
func (g *Graph) GetNode(snap *Snapshot, id NodeID) (Node, error) {
	const op = "get_node"
	v, ok, err := g.nodes.Get(snap.guard, nodeKey(id))
	if err != nil {
		return Node{}, wrapErr(op, err)
	}
	if !ok {
		return Node{}, notFoundf(op, "node %d not found", id)
	}
	row, err := rowcodec.DecodeNodeRow(snap.guard, g.p.PageSize(), &g.vstore, v.([]byte))
	if err != nil {
		return Node{}, wrapErr(op, err)
	}

	snapshot := snap.CommitID()
	for !row.Header.VisibleAt(snapshot) || row.Header.IsPending() {
		if row.Prev.IsNull() {
			return Node{}, notFoundf(op, "node %d has no version visible at snapshot %d", id, snapshot)
		}
		entry, found, err := g.vlog.GetCached(snap.guard, row.Prev, g.vcache)
		if err != nil {
			return Node{}, wrapErr(op, err)
		}
		if !found {
			return Node{}, wrapErr(op, &pager.CorruptionError{Reason: "version log entry missing for live prev_ptr"})
		}
		row, err = rowcodec.DecodeNodeRow(snap.guard, g.p.PageSize(), &g.vstore, entry.Payload)
		if err != nil {
			return Node{}, wrapErr(op, err)
		}
		row.Prev = entry.Prev
	}
	if row.Header.IsTombstone() {
		return Node{}, notFoundf(op, "node %d is deleted as of snapshot %d", id, snapshot)
	}
	return Node{ID: id, Labels: toLabelIDs(row.Labels), Props: row.Props}, nil
}

// NodeExists reports whether id currently has a live, visible row.
func (g *Graph) NodeExists(snap *Snapshot, id NodeID) (bool, error) {
	_, err := g.GetNode(snap, id)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// NodePatch describes a partial update to a node's labels and properties.
// AddLabels/RemoveLabels are applied before SetProps/RemoveProps.
type NodePatch struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
	SetProps     map[PropID]PropValue
	RemoveProps  []PropID
}

// UpdateNode applies patch to the current head version of node id (spec.md
// §3 "Update node"): the old row is archived to the version log, a new
// head is published with PENDING set while index deltas are staged, then
// finalized.
func (g *Graph) UpdateNode(id NodeID, patch NodePatch) error {
	const op = "update_node"
	w, err := g.beginWrite(op)
	if err != nil {
		return err
	}

	v, ok, err := g.nodes.Get(w, nodeKey(id))
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if !ok {
		g.abort(w)
		return notFoundf(op, "node %d not found", id)
	}
	oldRow, err := rowcodec.DecodeNodeRow(w, g.p.PageSize(), &g.vstore, v.([]byte))
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if oldRow.Header.IsTombstone() {
		g.abort(w)
		return notFoundf(op, "node %d is deleted", id)
	}

	newLabels := applyLabelPatch(oldRow.Labels, patch.AddLabels, patch.RemoveLabels)
	if len(newLabels) > maxLabelsPerNode {
		g.abort(w)
		return invalidf(op, "node would carry %d labels, max is %d", len(newLabels), maxLabelsPerNode)
	}
	newProps := applyPropPatch(oldRow.Props, patch.SetProps, patch.RemoveProps)

	commitID := w.ReserveCommitID()
	if err := g.commits.Reserve(commitID); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	archived := oldRow
	archived.Header.End = commitID
	archivedBuf, err := rowcodec.EncodeNodeRow(w, g.p.PageSize(), &g.vstore, archived, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	prevPtr, err := g.vlog.Append(w, mvcc.LogEntry{
		Space:     mvcc.SpaceNode,
		LogicalID: uint64(id),
		Header:    archived.Header,
		Prev:      oldRow.Prev,
		Payload:   archivedBuf,
	})
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	newHdr := mvcc.VersionHeader{Begin: commitID, End: mvcc.CommitMax}.WithPending()
	newRow := rowcodec.NodeRow{
		Header:  newHdr,
		Prev:    prevPtr,
		Labels:  newLabels,
		Props:   newProps,
		AdjPage: oldRow.AdjPage,
	}
	buf, err := rowcodec.EncodeNodeRow(w, g.p.PageSize(), &g.vstore, newRow, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if err := g.nodes.Put(w, nodeKey(id), buf); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	if err := g.stageLabelAndPropertyDiff(w, uint64(id), oldRow.Labels, newLabels, oldRow.Props, newProps); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	newRow.Header = newHdr.WithoutPending()
	buf, err = rowcodec.EncodeNodeRow(w, g.p.PageSize(), &g.vstore, newRow, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if err := g.nodes.Put(w, nodeKey(id), buf); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	if err := g.commits.MarkCommitted(commitID); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	return g.commitWriteGuard(op, w)
}

func (g *Graph) stageLabelAndPropertyDiff(w *pager.WriteGuard, node uint64, oldLabels, newLabels []uint32, oldProps, newProps map[PropID]PropValue) error {
	inserts, removes := index.DiffLabels(node, oldLabels, newLabels)
	hdr := mvcc.VersionHeader{Begin: 0, End: mvcc.CommitMax}
	for _, l := range removes {
		if err := g.stageOrRemoveLabel(w, l, node); err != nil {
			return err
		}
	}
	for _, l := range inserts {
		if err := g.stageOrInsertLabel(w, l, node, hdr); err != nil {
			return err
		}
	}

	labelSet := make(map[uint32]bool, len(newLabels)+len(oldLabels))
	for _, l := range oldLabels {
		labelSet[l] = true
	}
	for _, l := range newLabels {
		labelSet[l] = true
	}
	for l := range labelSet {
		defs, err := g.indexDefsForLabel(w, l)
		if err != nil {
			return err
		}
		changes := index.DiffProperties(defs, l, node, oldProps, newProps)
		if err := g.stageOrApplyIndexChanges(w, changes); err != nil {
			return err
		}
	}
	return nil
}

func applyLabelPatch(current []uint32, add, remove []LabelID) []uint32 {
	set := make(map[uint32]bool, len(current))
	for _, l := range current {
		set[l] = true
	}
	for _, l := range remove {
		delete(set, uint32(l))
	}
	for _, l := range add {
		set[uint32(l)] = true
	}
	out := make([]uint32, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	return out
}

func applyPropPatch(current map[PropID]PropValue, set map[PropID]PropValue, remove []PropID) map[PropID]PropValue {
	out := make(map[PropID]PropValue, len(current)+len(set))
	for k, v := range current {
		out[k] = v
	}
	for _, k := range remove {
		delete(out, k)
	}
	for k, v := range set {
		out[k] = v
	}
	return out
}

// DeleteMode controls how DeleteNode handles incident edges.
type DeleteMode int

const (
	// DeleteRestrict fails the delete if the node has any incident edge.
	DeleteRestrict DeleteMode = iota
	// DeleteCascade also deletes every incident edge.
	DeleteCascade
)

// DeleteNode tombstones node id (spec.md §3 "Delete node"). Under
// DeleteRestrict, any incident edge aborts the whole operation; under
// DeleteCascade, incident edges are deleted first in the same
// transaction.
func (g *Graph) DeleteNode(id NodeID, mode DeleteMode) error {
	const op = "delete_node"
	w, err := g.beginWrite(op)
	if err != nil {
		return err
	}

	v, ok, err := g.nodes.Get(w, nodeKey(id))
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if !ok {
		g.abort(w)
		return notFoundf(op, "node %d not found", id)
	}
	oldRow, err := rowcodec.DecodeNodeRow(w, g.p.PageSize(), &g.vstore, v.([]byte))
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if oldRow.Header.IsTombstone() {
		g.abort(w)
		return notFoundf(op, "node %d is already deleted", id)
	}

	incident, err := g.incidentEdges(w, uint64(id))
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if len(incident) > 0 && mode == DeleteRestrict {
		g.abort(w)
		return invalidf(op, "node %d has %d incident edge(s); use DeleteCascade", id, len(incident))
	}

	commitID := w.ReserveCommitID()
	if err := g.commits.Reserve(commitID); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	if mode == DeleteCascade {
		for _, edgeID := range incident {
			if err := g.deleteEdgeLocked(w, commitID, edgeID); err != nil {
				g.abort(w)
				return wrapErr(op, err)
			}
		}
	}

	archived := oldRow
	archived.Header.End = commitID
	archivedBuf, err := rowcodec.EncodeNodeRow(w, g.p.PageSize(), &g.vstore, archived, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	prevPtr, err := g.vlog.Append(w, mvcc.LogEntry{
		Space:     mvcc.SpaceNode,
		LogicalID: uint64(id),
		Header:    archived.Header,
		Prev:      oldRow.Prev,
		Payload:   archivedBuf,
	})
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	tombHdr := mvcc.VersionHeader{Begin: commitID, End: mvcc.CommitMax, Flags: mvcc.FlagTombstone}
	tomb := rowcodec.NodeRow{Header: tombHdr, Prev: prevPtr, AdjPage: pager.NullPageID}
	buf, err := rowcodec.EncodeNodeRow(w, g.p.PageSize(), &g.vstore, tomb, g.inlineValueMax(), g.inlineBagMax())
	if err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if err := g.nodes.Put(w, nodeKey(id), buf); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}

	_, removes := index.DiffLabels(uint64(id), oldRow.Labels, nil)
	for _, l := range removes {
		if err := g.stageOrRemoveLabel(w, l, uint64(id)); err != nil {
			g.abort(w)
			return wrapErr(op, err)
		}
		defs, err := g.indexDefsForLabel(w, l)
		if err != nil {
			g.abort(w)
			return wrapErr(op, err)
		}
		changes := index.DiffProperties(defs, l, uint64(id), oldRow.Props, nil)
		if err := g.stageOrApplyIndexChanges(w, changes); err != nil {
			g.abort(w)
			return wrapErr(op, err)
		}
	}

	if err := g.commits.MarkCommitted(commitID); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	return g.commitWriteGuard(op, w)
}

// ScanAllNodes streams every node visible at snap's snapshot, in
// ascending id order.
func (g *Graph) ScanAllNodes(snap *Snapshot) ([]Node, error) {
	const op = "scan_all_nodes"
	cur, err := g.nodes.Cursor(snap.guard, nil, nil)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	var out []Node
	for {
		k, v, ok, err := cur.Next()
		if err != nil {
			return nil, wrapErr(op, err)
		}
		if !ok {
			break
		}
		row, err := rowcodec.DecodeNodeRow(snap.guard, g.p.PageSize(), &g.vstore, v.([]byte))
		if err != nil {
			return nil, wrapErr(op, err)
		}
		if !row.Header.VisibleAt(snap.CommitID()) || row.Header.IsPending() {
			// The head is newer than snap; an older version may still be
			// visible through the version log.
			n, err := g.GetNode(snap, decodeNodeKey(k.([]byte)))
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, n)
			continue
		}
		if row.Header.IsTombstone() {
			continue
		}
		out = append(out, Node{ID: decodeNodeKey(k.([]byte)), Labels: toLabelIDs(row.Labels), Props: row.Props})
	}
	return out, nil
}
