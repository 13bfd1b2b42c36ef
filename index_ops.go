package sombra

import (
	"bytes"

	"github.com/sombradb/sombra/internal/index"
	"github.com/sombradb/sombra/internal/rowcodec"
)

// propKindOf reports the PropKind tag a catalog entry should carry for a
// sample value, so range scans can later validate bound types against it.
func propKindOf(sample PropValue) rowcodec.PropKind {
	switch sample.(type) {
	case int64:
		return rowcodec.KindInt
	case float64:
		return rowcodec.KindFloat
	case string:
		return rowcodec.KindString
	case []byte:
		return rowcodec.KindBytes
	case bool:
		return rowcodec.KindBool
	case rowcodec.Date:
		return rowcodec.KindDate
	case rowcodec.DateTime:
		return rowcodec.KindDateTime
	default:
		return rowcodec.KindNull
	}
}

// CreatePropertyIndex installs a property index over (label, prop)
// (spec.md §6 "create_property_index"). sampleValue's dynamic type tags
// the value kind the index expects, so range-scan callers can catch a
// mismatched bound early; it does not itself constrain what future
// writes store.
func (g *Graph) CreatePropertyIndex(label LabelID, prop PropID, sampleValue PropValue) error {
	const op = "create_property_index"
	w, err := g.beginWrite(op)
	if err != nil {
		return err
	}
	def := index.IndexDef{Label: uint32(label), Prop: prop, TypeTag: propKindOf(sampleValue), Kind: index.KindProperty}
	if err := g.catalog.Create(w, def); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	return g.commitWriteGuard(op, w)
}

// DropPropertyIndex removes a property index over (label, prop). It does
// not eagerly delete the index's postings; a vacuum pass with
// IndexCleanup enabled reclaims entries whose catalog def has vanished.
func (g *Graph) DropPropertyIndex(label LabelID, prop PropID) (bool, error) {
	const op = "drop_property_index"
	w, err := g.beginWrite(op)
	if err != nil {
		return false, err
	}
	found, err := g.catalog.Drop(w, uint32(label), prop)
	if err != nil {
		g.abort(w)
		return false, wrapErr(op, err)
	}
	if err := g.commitWriteGuard(op, w); err != nil {
		return false, err
	}
	return found, nil
}

// CreateLabelIndex is a no-op that records a catalog entry for
// introspection only: every node's label postings are always maintained
// in g.labels regardless of any catalog entry (spec.md §4.5 "Label
// index" is unconditional bookkeeping, unlike the opt-in property
// index). LabelScanStream does not consult the catalog entry; it reads
// g.labels directly.
func (g *Graph) CreateLabelIndex(label LabelID) error {
	const op = "create_label_index"
	w, err := g.beginWrite(op)
	if err != nil {
		return err
	}
	def := index.IndexDef{Label: uint32(label), Kind: index.KindLabel}
	if err := g.catalog.Create(w, def); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	return g.commitWriteGuard(op, w)
}

// DropLabelIndex removes the catalog entry recorded by CreateLabelIndex.
// Existing label postings are unaffected; they are intrinsic to every
// labeled node, not index-specific state.
func (g *Graph) DropLabelIndex(label LabelID) (bool, error) {
	const op = "drop_label_index"
	w, err := g.beginWrite(op)
	if err != nil {
		return false, err
	}
	found, err := g.catalog.Drop(w, uint32(label), 0)
	if err != nil {
		g.abort(w)
		return false, wrapErr(op, err)
	}
	if err := g.commitWriteGuard(op, w); err != nil {
		return false, err
	}
	return found, nil
}

// NodeStream yields node ids one at a time and reports exhaustion. It
// wraps an index.PostingStream with the re-confirmation step spec.md
// §4.5 "Scans" requires: a posting that no longer matches the node's
// live row is skipped rather than surfaced.
type NodeStream struct {
	g      *Graph
	snap   *Snapshot
	verify func(Node) bool
	inner  *index.PostingStream
}

// Next returns the next matching, re-confirmed node id, or ok == false
// once the scan is exhausted.
func (s *NodeStream) Next() (NodeID, bool, error) {
	for {
		raw, ok, err := s.inner.Next()
		if err != nil {
			return 0, false, wrapErr("scan", err)
		}
		if !ok {
			return 0, false, nil
		}
		node, err := s.g.GetNode(s.snap, NodeID(raw))
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return 0, false, err
		}
		if s.verify != nil && !s.verify(node) {
			continue
		}
		return node.ID, true, nil
	}
}

// Collect drains the stream into a slice, in ascending node id order.
func (s *NodeStream) Collect() ([]NodeID, error) {
	var out []NodeID
	for {
		id, ok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, id)
	}
}

// LabelScanStream streams every node id carrying label, as visible at
// snap (spec.md §6 "label_scan_stream").
func (g *Graph) LabelScanStream(snap *Snapshot, label LabelID) (*NodeStream, error) {
	inner, err := g.labels.ScanEq(snap.guard, uint32(label), snap.CommitID())
	if err != nil {
		return nil, wrapErr("label_scan_stream", err)
	}
	return &NodeStream{g: g, snap: snap, inner: inner, verify: func(n Node) bool {
		return hasLabel(n, label)
	}}, nil
}

// propValuesEqual is the re-confirmation check scan streams use to drop
// stale postings (spec.md §4.5 "the filter rereads the row to verify").
func propValuesEqual(a, b PropValue) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok && bok {
		if len(ab) != len(bb) {
			return false
		}
		for i := range ab {
			if ab[i] != bb[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

// PropertyScanEq streams every node id whose prop value under label
// equals v, as visible at snap (spec.md §6 "property_scan_eq"). The
// stream re-reads each candidate's live row and drops it if the property
// no longer holds v, per spec.md §4.5's "filter rereads the row to
// verify".
func (g *Graph) PropertyScanEq(snap *Snapshot, label LabelID, prop PropID, v PropValue) (*NodeStream, error) {
	const op = "property_scan_eq"
	inner, err := g.props.ScanEq(snap.guard, v, snap.CommitID())
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return &NodeStream{g: g, snap: snap, inner: inner, verify: func(n Node) bool {
		if !hasLabel(n, label) {
			return false
		}
		cur, ok := n.Props[prop]
		return ok && propValuesEqual(cur, v)
	}}, nil
}

func hasLabel(n Node, label LabelID) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// PropertyScanRangeBounds streams every node id whose prop value under
// label falls within [startBound, endBound) of the property's
// order-preserving encoding, as visible at snap (spec.md §6
// "property_scan_range_bounds"). A nil bound is unbounded on that side.
func (g *Graph) PropertyScanRangeBounds(snap *Snapshot, label LabelID, prop PropID, startBound, endBound PropValue) (*NodeStream, error) {
	const op = "property_scan_range_bounds"
	inner, err := g.props.ScanRange(snap.guard, startBound, endBound, snap.CommitID())
	if err != nil {
		return nil, wrapErr(op, err)
	}
	var sk, ek []byte
	if startBound != nil {
		sk, _ = index.EncodeValueKey(startBound)
	}
	if endBound != nil {
		ek, _ = index.EncodeValueKey(endBound)
	}
	return &NodeStream{g: g, snap: snap, inner: inner, verify: func(n Node) bool {
		if !hasLabel(n, label) {
			return false
		}
		cur, ok := n.Props[prop]
		if !ok {
			return false
		}
		ck, err := index.EncodeValueKey(cur)
		if err != nil {
			return false
		}
		return (sk == nil || bytes.Compare(ck, sk) >= 0) && (ek == nil || bytes.Compare(ck, ek) < 0)
	}}, nil
}
