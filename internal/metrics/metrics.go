// Package metrics defines the storage engine's metrics-sink contract
// (spec.md §1 "StorageMetrics is an external collaborator") and a concrete
// Prometheus-backed implementation.
package metrics

import "time"

// StorageMetrics is the sink every storage-layer component reports through.
// A caller that doesn't want metrics wires in Noop; nothing in the engine
// depends on a concrete implementation.
type StorageMetrics interface {
	// TreeOp records one btree.Stats-shaped counter increment for a named
	// tree (e.g. "node", "edge", "label_index:3") — spec.md §4.1 "Statistics".
	TreeOp(tree, op string, n uint64)

	// CacheAccess records a buffer-pool or degree-cache lookup outcome.
	CacheAccess(cache string, hit bool)

	// VacuumPass records the outcome of one completed vacuum pass
	// (spec.md §4.7 step 6 "Emit stats").
	VacuumPass(logEntriesPruned, segmentsFreed, indexPostingsPruned int, duration time.Duration)

	// ReaderRegistered/ReaderReleased track active MVCC reader snapshots
	// (spec.md §4.2 "active reader count").
	ReaderRegistered()
	ReaderReleased(age time.Duration)

	// WriteCommitted records one completed write transaction's duration.
	WriteCommitted(duration time.Duration)
}

// Noop discards every observation. It is the zero value's natural default
// when a caller embeds StorageMetrics but doesn't wire one in.
type Noop struct{}

func (Noop) TreeOp(string, string, uint64)           {}
func (Noop) CacheAccess(string, bool)                {}
func (Noop) VacuumPass(int, int, int, time.Duration) {}
func (Noop) ReaderRegistered()                       {}
func (Noop) ReaderReleased(time.Duration)             {}
func (Noop) WriteCommitted(time.Duration)             {}

var _ StorageMetrics = Noop{}
