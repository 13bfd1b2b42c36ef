package sombra

import (
	"time"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/vacuum"
)

// TreeStats mirrors btree.Stats for one named component tree
// (spec.md §4.1 "Statistics").
type TreeStats = btree.Stats

// StorageStats is a point-in-time snapshot of every component tree's
// running counters, surfaced for diagnostics (spec.md §6 "stats").
type StorageStats struct {
	Nodes         TreeStats
	Edges         TreeStats
	AdjForward    TreeStats
	AdjReverse    TreeStats
	LabelIndex    TreeStats
	PropertyIndex TreeStats
	Catalog       TreeStats
	VersionLog    TreeStats
	CachedPages   int
}

// Stats returns a snapshot of every component tree's counters plus the
// pager's current buffer-pool occupancy.
func (g *Graph) Stats() StorageStats {
	return StorageStats{
		Nodes:         g.nodes.StatsSnapshot(),
		Edges:         g.edges.StatsSnapshot(),
		AdjForward:    g.adj.Trees.Fwd.StatsSnapshot(),
		AdjReverse:    g.adj.Trees.Rev.StatsSnapshot(),
		LabelIndex:    g.labels.StatsSnapshot(),
		PropertyIndex: g.props.StatsSnapshot(),
		Catalog:       g.catalog.StatsSnapshot(),
		VersionLog:    g.vlog.StatsSnapshot(),
		CachedPages:   g.p.CachedPages(),
	}
}

// PropertyStats reports how many live, visible nodes carry value v for
// prop, as of snap's snapshot — a diagnostic count, not a hot-path
// operation: it drains the full posting stream (spec.md §4.5 "Scans").
func (g *Graph) PropertyStats(snap *Snapshot, label LabelID, prop PropID, v PropValue) (int, error) {
	stream, err := g.PropertyScanEq(snap, label, prop, v)
	if err != nil {
		return 0, err
	}
	ids, err := stream.Collect()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// MVCCStatus returns a diagnostic view of the commit table: outstanding
// commit entries, active reader snapshots, and how far the reader
// horizon lags the latest commit (spec.md §6 "mvcc_status").
func (g *Graph) MVCCStatus() mvcc.CommitTableSnapshot {
	return g.commits.Snapshot()
}

// VacuumRetentionWindow reports the configured retention window and the
// oldest commit id vacuum is currently permitted to reclaim up to, given
// the active reader horizon (spec.md §4.7 "Horizon").
func (g *Graph) VacuumRetentionWindow() (window time.Duration, horizon CommitID) {
	window = g.opts.Vacuum.RetentionWindow
	horizon = g.commits.VacuumHorizon(window)
	return window, horizon
}

// VacuumCadence reports the scheduler's last-selected cadence tier
// (spec.md §4.7 "Scheduling").
func (g *Graph) VacuumCadence() vacuum.Cadence {
	return g.vacuum.CurrentCadence()
}

// LastVacuumResult returns the stats and error from the most recently
// completed vacuum pass, if any has run yet.
func (g *Graph) LastVacuumResult() (vacuum.Stats, error) {
	return g.vacuum.LastResult()
}
