package sombra

import (
	"encoding/binary"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sombradb/sombra/internal/adjacency"
	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/index"
	"github.com/sombradb/sombra/internal/metrics"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
	"github.com/sombradb/sombra/internal/rowcodec"
	"github.com/sombradb/sombra/internal/vacuum"
)

// Graph is the embedded property-graph storage engine (spec.md §1): a
// single-writer/many-reader facade over the node and edge B+ trees, the
// adjacency and index structures, and the MVCC layer that gives every
// reader a consistent snapshot.
type Graph struct {
	p    *pager.Pager
	opts GraphOptions
	log  *zap.Logger

	nodes *btree.Tree
	edges *btree.Tree
	adj   *adjacency.Adjacency

	catalog *index.Catalog
	labels  *index.LabelIndex
	props   *index.PropertyIndex

	commits *mvcc.CommitTable
	vlog    *mvcc.Log
	vcache  *mvcc.VersionCache
	vstore  pager.VStore

	metrics metrics.StorageMetrics
	vacuum  *vacuum.Scheduler
	pool    *snapshotPool

	// wbatch holds the current transaction's deferred adjacency/index
	// mutations (spec.md §4.6 "defer_adjacency_flush", "defer_index_flush").
	// A Graph field rather than WriteGuard state because the engine is
	// single-writer: exactly one transaction's batch is ever live.
	wbatch *writeBatch

	closeOnce sync.Once
}

const (
	nodeKeyLen = 8
	edgeKeyLen = 8
)

func nodeKey(id NodeID) []byte {
	b := make([]byte, nodeKeyLen)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func edgeKey(id EdgeID) []byte {
	b := make([]byte, edgeKeyLen)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func decodeNodeKey(b []byte) NodeID { return NodeID(binary.BigEndian.Uint64(b)) }
func decodeEdgeKey(b []byte) EdgeID { return EdgeID(binary.BigEndian.Uint64(b)) }

// Open opens (or creates) a graph database at path.
func Open(path string, opts GraphOptions) (*Graph, error) {
	opts.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := pager.Open(opts.pagerConfig(path))
	if err != nil {
		return nil, wrapErr("open", err)
	}

	if err := applyFeatureFlags(p, opts); err != nil {
		p.Close()
		return nil, wrapErr("open", err)
	}

	btOpts := btree.Options{ChecksumVerify: opts.VerifyChecksum, InPlace: opts.BTreeInPlace}

	g := &Graph{
		p:    p,
		opts: opts,
		log:  logger,

		nodes: btree.Open(p, btree.RootAccessor{
			Get: func(m *pager.Meta) pager.PageID { return m.NodeRoot },
			Set: func(m *pager.Meta, id pager.PageID) { m.NodeRoot = id },
		}, btree.RawCodec{}, btree.RawCodec{}, btOpts),

		edges: btree.Open(p, btree.RootAccessor{
			Get: func(m *pager.Meta) pager.PageID { return m.EdgeRoot },
			Set: func(m *pager.Meta, id pager.PageID) { m.EdgeRoot = id },
		}, btree.RawCodec{}, btree.RawCodec{}, btOpts),

		adj: adjacency.Open(p, p.PageSize(), btOpts),

		catalog: index.OpenCatalog(p, btOpts),
		labels:  index.OpenLabelIndex(p, btOpts),
		props:   index.OpenPropertyIndex(p, btOpts),

		commits: mvcc.NewCommitTable(mvcc.CommitID(p.Meta().NextCommitID)),
		vlog:    mvcc.OpenLog(p, btOpts),
		vcache:  mvcc.NewVersionCache(opts.VersionCacheCapacity, opts.VersionCacheShards),
		vstore:  pager.VStore{},

		metrics: metrics.Noop{},
		wbatch:  &writeBatch{},
	}

	g.pool = newSnapshotPool(g, opts.SnapshotPoolSize, opts.SnapshotPoolMaxAge)

	g.vacuum = vacuum.NewScheduler(&vacuum.Deps{
		Pager:    p,
		Commits:  g.commits,
		Log:      g.vlog,
		Overflow: g.adj.Overflow,
		Degree:   g.adj.Degree,
		Catalog:  g.catalog,
		Labels:   g.labels,
		Props:    g.props,
		Logger:   logger,
		Metrics:  g.metrics,
	}, opts.Vacuum.toConfig(), nil)
	if opts.Vacuum.Enabled {
		g.vacuum.Start()
	}

	logger.Info("graph opened", zap.String("path", path))
	return g, nil
}

// applyFeatureFlags persists any storage flags requested by opts that
// aren't already set in the meta page, so a reopen doesn't need to pass
// the same options again to stay consistent (spec.md §6 "persisted once
// at creation").
func applyFeatureFlags(p *pager.Pager, opts GraphOptions) error {
	want := opts.flags()
	cur := p.Meta()
	if cur.Flags&want == want && cur.InlinePropBlob == uint32(opts.InlinePropBlob) && cur.InlinePropValue == uint32(opts.InlinePropValue) {
		return nil
	}
	w, err := p.BeginWrite()
	if err != nil {
		return err
	}
	w.UpdateMeta(func(m *pager.Meta) {
		m.Flags |= want
		if m.InlinePropBlob == 0 {
			m.InlinePropBlob = uint32(opts.InlinePropBlob)
		}
		if m.InlinePropValue == 0 {
			m.InlinePropValue = uint32(opts.InlinePropValue)
		}
	})
	return p.Commit(w)
}

// Close stops the vacuum scheduler and closes the underlying pager.
func (g *Graph) Close() error {
	var err error
	g.closeOnce.Do(func() {
		if g.vacuum != nil {
			g.vacuum.Stop()
		}
		g.pool.closeAll()
		err = g.p.Close()
	})
	return err
}

// TriggerVacuum runs one retention pass immediately, outside its
// scheduled cadence (spec.md §4.7 "manual trigger").
func (g *Graph) TriggerVacuum() (vacuum.Stats, error) {
	return g.vacuum.TriggerNow()
}

func (g *Graph) inlineValueMax() int { return g.opts.InlinePropValue }
func (g *Graph) inlineBagMax() int   { return g.opts.InlinePropBlob }

// writerSnapshot returns a commit id high enough that VisibleAt treats
// every already-live (End == CommitMax) row as visible, letting a writer
// see its own transaction's uncommitted inserts when scanning adjacency
// within the same WriteGuard.
func (g *Graph) writerSnapshot() CommitID { return CommitID(^uint64(0)) }

func nowForMetrics() time.Time { return time.Now() }

// incidentEdges collects the distinct edge ids touching node across both
// the plain B+ tree adjacency path and, if present, the node's IFA page.
func (g *Graph) incidentEdges(w *pager.WriteGuard, node uint64) ([]EdgeID, error) {
	snap := g.writerSnapshot()
	seen := make(map[uint64]bool)
	var out []EdgeID
	add := func(edge uint64) {
		if !seen[edge] {
			seen[edge] = true
			out = append(out, EdgeID(edge))
		}
	}

	for _, dir := range []adjacency.Dir{adjacency.DirOut, adjacency.DirIn} {
		nbs, err := g.adj.Trees.Neighbors(w, dir, node, nil, snap)
		if err != nil {
			return nil, err
		}
		for _, nb := range nbs {
			add(nb.Edge)
		}
	}

	v, ok, err := g.nodes.Get(w, nodeKey(NodeID(node)))
	if err != nil || !ok {
		return out, err
	}
	row, err := rowcodec.DecodeNodeRow(w, g.p.PageSize(), &g.vstore, v.([]byte))
	if err != nil || row.AdjPage == pager.NullPageID {
		return out, err
	}
	page, err := adjacency.ReadNodeAdjPage(w, row.AdjPage)
	if err != nil {
		return nil, err
	}
	for _, dir := range []adjacency.Dir{adjacency.DirOut, adjacency.DirIn} {
		nbs, err := g.adj.NeighborsIFA(w, page, dir, nil, snap)
		if err != nil {
			return nil, err
		}
		for _, nb := range nbs {
			add(nb.Edge)
		}
	}
	return out, nil
}

func (g *Graph) beginWrite(op string) (*pager.WriteGuard, error) {
	w, err := g.p.BeginWrite()
	if err != nil {
		return nil, wrapErr(op, err)
	}
	g.wbatch.reset()
	return w, nil
}

func (g *Graph) abort(w *pager.WriteGuard) {
	g.wbatch.reset()
	if err := g.p.Abort(w); err != nil {
		g.log.Warn("abort failed", zap.Error(err))
	}
}

func (g *Graph) commit(op string, w *pager.WriteGuard, started time.Time) error {
	if err := g.flushDeferred(w); err != nil {
		g.abort(w)
		return wrapErr(op, err)
	}
	if err := g.p.Commit(w); err != nil {
		return wrapErr(op, err)
	}
	g.metrics.WriteCommitted(time.Since(started))
	return nil
}
