package sombra

import (
	"bytes"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sombradb/sombra/internal/adjacency"
	"github.com/sombradb/sombra/internal/index"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// rawOp is one staged tree mutation, keyed by the exact bytes the target
// B+ tree stores it under. val == nil means delete (spec.md §4.6 "stage
// in writer-local buffers, sort by encoded key, put_many at commit").
type rawOp struct {
	key []byte
	val []byte
}

// writeBatch accumulates the deferred adjacency and index mutations for
// the writer's current transaction. It lives on Graph, not on
// pager.WriteGuard, because the engine is single-writer: only one
// transaction's staging buffer is ever live at a time, so there is never
// a second writer to collide with (see DESIGN.md on deferred flush).
type writeBatch struct {
	fwd   []rawOp
	rev   []rawOp
	label []rawOp
	prop  []rawOp
}

func (b *writeBatch) reset() {
	b.fwd = b.fwd[:0]
	b.rev = b.rev[:0]
	b.label = b.label[:0]
	b.prop = b.prop[:0]
}

func (b *writeBatch) empty() bool {
	return len(b.fwd) == 0 && len(b.rev) == 0 && len(b.label) == 0 && len(b.prop) == 0
}

func sortOps(ops []rawOp) {
	sort.Slice(ops, func(i, j int) bool { return bytes.Compare(ops[i].key, ops[j].key) < 0 })
}

// applyOps replays a sorted batch of raw key/value puts and deletes
// against put/del, the tree's own Put/DeleteRawKey-shaped operations.
func applyOps(ops []rawOp, put func(key, val []byte) error, del func(key []byte) error) error {
	for _, op := range ops {
		if op.val == nil {
			if err := del(op.key); err != nil {
				return err
			}
			continue
		}
		if err := put(op.key, op.val); err != nil {
			return err
		}
	}
	return nil
}

// flushDeferred sorts and applies every batch staged on g.wbatch since
// the last flush, running the adjacency-forward, adjacency-reverse,
// label-index, and property-index batches concurrently (spec.md §4.6):
// the four batches touch disjoint page ranges (one tree each), so the
// only shared state is the WriteGuard's own bookkeeping, which its mutex
// now serializes. Canonical per-tree key order keeps the resulting page
// writes reproducible across runs (spec.md §5).
func (g *Graph) flushDeferred(w *pager.WriteGuard) error {
	b := g.wbatch
	if b.empty() {
		return nil
	}
	sortOps(b.fwd)
	sortOps(b.rev)
	sortOps(b.label)
	sortOps(b.prop)

	var eg errgroup.Group
	eg.Go(func() error {
		return applyOps(b.fwd,
			func(k, v []byte) error { return g.adj.Trees.Fwd.Put(w, k, v) },
			func(k []byte) error { _, err := g.adj.Trees.Fwd.Delete(w, k); return err })
	})
	eg.Go(func() error {
		return applyOps(b.rev,
			func(k, v []byte) error { return g.adj.Trees.Rev.Put(w, k, v) },
			func(k []byte) error { _, err := g.adj.Trees.Rev.Delete(w, k); return err })
	})
	eg.Go(func() error {
		return applyOps(b.label,
			func(k, v []byte) error { return g.labels.PutRawKey(w, k, v) },
			func(k []byte) error { _, err := g.labels.DeleteRawKey(w, k); return err })
	})
	eg.Go(func() error {
		return applyOps(b.prop,
			func(k, v []byte) error { return g.props.PutRawKey(w, k, v) },
			func(k []byte) error { _, err := g.props.DeleteRawKey(w, k); return err })
	})
	if err := eg.Wait(); err != nil {
		return err
	}
	b.reset()
	return nil
}

// stageOrInsertEdge applies one directed edge's adjacency entry
// immediately, or queues it for the commit-time flush when
// GraphOptions.DeferAdjacencyFlush is set. The degree cache is always
// updated immediately: it is non-authoritative bookkeeping, not part of
// the canonical-order guarantee deferred flushing exists to give the
// adjacency trees.
func (g *Graph) stageOrInsertEdge(w *pager.WriteGuard, src uint64, typ uint32, dst, edge uint64, hdr mvcc.VersionHeader) error {
	if !g.opts.DeferAdjacencyFlush {
		return g.adj.InsertTreeEdge(w, src, typ, dst, edge, hdr)
	}
	enc := hdr.Encode()
	val := append([]byte(nil), enc[:]...)
	g.wbatch.fwd = append(g.wbatch.fwd, rawOp{key: adjacency.EncodeFwdKey(src, typ, dst, edge), val: val})
	g.wbatch.rev = append(g.wbatch.rev, rawOp{key: adjacency.EncodeRevKey(dst, typ, src, edge), val: append([]byte(nil), val...)})
	if err := g.adj.Degree.Increment(w, src, adjacency.DirOut, typ); err != nil {
		return err
	}
	return g.adj.Degree.Increment(w, dst, adjacency.DirIn, typ)
}

// stageOrRemoveEdge is the removal counterpart to stageOrInsertEdge.
func (g *Graph) stageOrRemoveEdge(w *pager.WriteGuard, src uint64, typ uint32, dst, edge uint64) error {
	if !g.opts.DeferAdjacencyFlush {
		_, err := g.adj.RemoveTreeEdge(w, src, typ, dst, edge)
		return err
	}
	g.wbatch.fwd = append(g.wbatch.fwd, rawOp{key: adjacency.EncodeFwdKey(src, typ, dst, edge), val: nil})
	g.wbatch.rev = append(g.wbatch.rev, rawOp{key: adjacency.EncodeRevKey(dst, typ, src, edge), val: nil})
	if err := g.adj.Degree.Decrement(w, src, adjacency.DirOut, typ); err != nil {
		return err
	}
	return g.adj.Degree.Decrement(w, dst, adjacency.DirIn, typ)
}

// stageOrInsertLabel is the label-posting counterpart of
// stageOrInsertEdge, gated by GraphOptions.DeferIndexFlush.
func (g *Graph) stageOrInsertLabel(w *pager.WriteGuard, label uint32, node uint64, hdr mvcc.VersionHeader) error {
	if !g.opts.DeferIndexFlush {
		return g.labels.Insert(w, label, node, hdr)
	}
	enc := hdr.Encode()
	g.wbatch.label = append(g.wbatch.label, rawOp{key: index.LabelKey(label, node), val: append([]byte(nil), enc[:]...)})
	return nil
}

// stageOrRemoveLabel is the removal counterpart to stageOrInsertLabel.
func (g *Graph) stageOrRemoveLabel(w *pager.WriteGuard, label uint32, node uint64) error {
	if !g.opts.DeferIndexFlush {
		_, err := g.labels.Remove(w, label, node)
		return err
	}
	g.wbatch.label = append(g.wbatch.label, rawOp{key: index.LabelKey(label, node), val: nil})
	return nil
}

// stageOrApplyIndexChanges is the property-posting counterpart of
// stageOrInsertEdge: changes come from index.DiffProperties and are
// applied immediately unless GraphOptions.DeferIndexFlush defers them.
func (g *Graph) stageOrApplyIndexChanges(w *pager.WriteGuard, changes []index.Change) error {
	if !g.opts.DeferIndexFlush {
		return g.applyIndexChanges(w, changes)
	}
	hdr := mvcc.VersionHeader{Begin: 0, End: mvcc.CommitMax}
	enc := hdr.Encode()
	for _, c := range changes {
		vk, err := index.EncodeValueKey(c.Value)
		if err != nil {
			return err
		}
		key := index.PropKey(vk, c.Node)
		switch c.Kind {
		case index.ChangeInsert:
			g.wbatch.prop = append(g.wbatch.prop, rawOp{key: key, val: append([]byte(nil), enc[:]...)})
		case index.ChangeRemove:
			g.wbatch.prop = append(g.wbatch.prop, rawOp{key: key, val: nil})
		}
	}
	return nil
}
