package vacuum

import (
	"time"

	"go.uber.org/zap"

	"github.com/sombradb/sombra/internal/adjacency"
	"github.com/sombradb/sombra/internal/index"
	"github.com/sombradb/sombra/internal/metrics"
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
)

// Stats summarizes one completed pass (spec.md §4.7 step 6 "Emit stats").
type Stats struct {
	Horizon            mvcc.CommitID
	LogEntriesPruned   int
	SegmentsFreed      int
	IndexPostingsPruned int
	Duration           time.Duration
}

// Deps bundles every component a vacuum pass walks. Adjacency and index
// are optional (nil skips that step) so a pass can run against a store
// that hasn't opened every subsystem.
type Deps struct {
	Pager   *pager.Pager
	Commits *mvcc.CommitTable
	Log     *mvcc.Log

	Overflow *adjacency.OverflowTree
	Degree   *adjacency.DegreeCache

	Catalog  *index.Catalog
	Labels   *index.LabelIndex
	Props    *index.PropertyIndex

	Logger  *zap.Logger
	Metrics metrics.StorageMetrics
}

func (d *Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Deps) metrics() metrics.StorageMetrics {
	if d.Metrics == nil {
		return metrics.Noop{}
	}
	return d.Metrics
}

// Pass runs one budgeted retention-horizon maintenance pass
// (spec.md §4.7, six numbered steps).
func Pass(d *Deps, cfg Config) (Stats, error) {
	cfg.withDefaults()
	start := time.Now()

	horizon := d.Commits.VacuumHorizon(cfg.Retention)
	stats := Stats{Horizon: horizon}

	w, err := d.Pager.BeginWrite()
	if err != nil {
		return stats, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = d.Pager.Abort(w)
		}
	}()

	if d.Log != nil {
		pruned, err := pruneVersionLog(w, d.Log, horizon, cfg.MaxEntriesPerPass)
		if err != nil {
			return stats, err
		}
		stats.LogEntriesPruned = pruned
	}

	if d.Overflow != nil {
		freed, err := reclaimOverflowSegments(w, d.Pager.PageSize(), d.Overflow, horizon)
		if err != nil {
			return stats, err
		}
		stats.SegmentsFreed += freed
	}

	if cfg.IndexCleanup && d.Catalog != nil {
		pruned, err := pruneIndexPostings(w, d.Labels, d.Props, horizon)
		if err != nil {
			return stats, err
		}
		stats.IndexPostingsPruned = pruned
	}

	if err := d.Pager.Commit(w); err != nil {
		return stats, err
	}
	committed = true

	d.Commits.ReleaseCommitted(horizon)

	stats.Duration = time.Since(start)
	d.metrics().VacuumPass(stats.LogEntriesPruned, stats.SegmentsFreed, stats.IndexPostingsPruned, stats.Duration)
	d.logger().Info("vacuum pass complete",
		zap.Uint64("horizon", uint64(horizon)),
		zap.Int("log_entries_pruned", stats.LogEntriesPruned),
		zap.Int("segments_freed", stats.SegmentsFreed),
		zap.Int("index_postings_pruned", stats.IndexPostingsPruned),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// pruneVersionLog walks the version-log tree in ascending VersionPtr order
// and deletes every entry whose header has ended at or before horizon
// (spec.md §4.7 step 2), up to maxEntries for this pass.
func pruneVersionLog(w *pager.WriteGuard, log *mvcc.Log, horizon mvcc.CommitID, maxEntries int) (int, error) {
	cur, err := log.Cursor(w, mvcc.NullVersionPtr)
	if err != nil {
		return 0, err
	}
	var toDelete []mvcc.VersionPtr
	for len(toDelete) < maxEntries {
		k, v, ok, err := cur.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		ptr, err := mvcc.DecodeVersionPtr(k.([]byte))
		if err != nil {
			return 0, err
		}
		entry, err := decodeLogEntryHeader(v.([]byte))
		if err != nil {
			return 0, err
		}
		if entry.End != mvcc.CommitMax && entry.End <= horizon {
			toDelete = append(toDelete, ptr)
		}
	}
	pruned := 0
	for _, ptr := range toDelete {
		found, err := log.Delete(w, ptr, nil)
		if err != nil {
			return pruned, err
		}
		if found {
			pruned++
		}
	}
	return pruned, nil
}

// decodeLogEntryHeader reads just the version header prefix of an encoded
// LogEntry value without paying to decode its payload.
func decodeLogEntryHeader(b []byte) (mvcc.VersionHeader, error) {
	const spaceTagLen, logicalIDLen = 1, 8
	off := spaceTagLen + logicalIDLen
	if len(b) < off+mvcc.VersionHeaderLen {
		return mvcc.VersionHeader{}, &pager.CorruptionError{Reason: "version log entry truncated before header"}
	}
	return mvcc.DecodeVersionHeader(b[off : off+mvcc.VersionHeaderLen])
}

// reclaimOverflowSegments walks every (owner, dir, type) entry registered
// in the overflow tree and reclaims the superseded tail of its segment
// chain (spec.md §4.7 step 3, restricted to the enumerable overflow path —
// see DESIGN.md for the inline-bucket scope note).
func reclaimOverflowSegments(w *pager.WriteGuard, pageSize int, overflow *adjacency.OverflowTree, horizon mvcc.CommitID) (int, error) {
	heads, err := overflow.AllSegmentPointers(w)
	if err != nil {
		return 0, err
	}
	freed := 0
	for _, head := range heads {
		n, err := adjacency.ReclaimSegmentChain(w, pageSize, head, horizon)
		if err != nil {
			return freed, err
		}
		freed += n
	}
	return freed, nil
}

// pruneIndexPostings deletes label/property postings whose own version
// header ended at or before horizon (spec.md §4.7 step 4).
func pruneIndexPostings(w *pager.WriteGuard, labels *index.LabelIndex, props *index.PropertyIndex, horizon mvcc.CommitID) (int, error) {
	pruned := 0
	if labels != nil {
		keys, err := labels.StaleKeys(w, horizon)
		if err != nil {
			return pruned, err
		}
		for _, k := range keys {
			if ok, err := labels.DeleteRawKey(w, k); err != nil {
				return pruned, err
			} else if ok {
				pruned++
			}
		}
	}
	if props != nil {
		keys, err := props.StaleKeys(w, horizon)
		if err != nil {
			return pruned, err
		}
		for _, k := range keys {
			if ok, err := props.DeleteRawKey(w, k); err != nil {
				return pruned, err
			} else if ok {
				pruned++
			}
		}
	}
	return pruned, nil
}
