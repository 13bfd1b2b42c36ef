package sombra

import (
	"time"

	"go.uber.org/zap"

	"github.com/sombradb/sombra/internal/pager"
	"github.com/sombradb/sombra/internal/vacuum"
)

// VacuumOptions mirrors the "vacuum: { ... }" configuration block of
// spec.md §6.
type VacuumOptions struct {
	Enabled                       bool
	Interval                      time.Duration
	RetentionWindow               time.Duration
	LogHighWaterBytes             int64
	MaxEntriesPerPass             int
	MaxMillisPerPass              time.Duration
	IndexCleanup                  bool
	ReaderTimeout                 time.Duration
	ReaderTimeoutWarnThresholdPct int
}

func (v VacuumOptions) toConfig() vacuum.Config {
	return vacuum.Config{
		Enabled:                       v.Enabled,
		Interval:                      v.Interval,
		Retention:                     v.RetentionWindow,
		LogHighWaterBytes:             v.LogHighWaterBytes,
		MaxEntriesPerPass:             v.MaxEntriesPerPass,
		MaxDuration:                   v.MaxMillisPerPass,
		IndexCleanup:                  v.IndexCleanup,
		ReaderTimeout:                 v.ReaderTimeout,
		ReaderTimeoutWarnThresholdPct: v.ReaderTimeoutWarnThresholdPct,
	}
}

// GraphOptions configures an opened Graph, enumerating every tunable named
// in spec.md §6. A zero value is valid: every field falls back to the
// same default the spec documents.
type GraphOptions struct {
	PageSize       int
	MaxCachePages  int
	WALPath        string
	VerifyChecksum bool
	Logger         *zap.Logger

	// InlinePropBlob is the max property-bag size before it spills to
	// VStore (spec.md §6 "inline_prop_blob", default 128).
	InlinePropBlob int
	// InlinePropValue is the max individual string/bytes value before it
	// spills to VStore (spec.md §6 "inline_prop_value", default 48).
	InlinePropValue int

	// DegreeCache maintains the non-authoritative degree B+ tree
	// (spec.md §6 "degree_cache").
	DegreeCache bool
	// DistinctNeighborsDefault dedupes neighbor results by node id when a
	// traversal call doesn't ask otherwise (spec.md §6
	// "distinct_neighbors_default").
	DistinctNeighborsDefault bool
	// RowHashHeader appends a SipHash64 footer to rows, enabling the
	// update short-circuit (spec.md §6 "row_hash_header").
	RowHashHeader bool
	// BTreeInPlace permits in-place insert/delete fast paths in the B+
	// tree (spec.md §6 "btree_inplace").
	BTreeInPlace bool

	// InlineHistory embeds the newest historical version on the head row
	// when it fits InlineHistoryMaxBytes (spec.md §6 "inline_history").
	InlineHistory         bool
	InlineHistoryMaxBytes int

	// VersionCacheShards sets the number of independent LRU shards the
	// version cache splits across (spec.md §6 "version_cache_shards"),
	// so one hot lookup doesn't serialize every reader behind one lock.
	VersionCacheShards   int
	VersionCacheCapacity int

	// DeferAdjacencyFlush and DeferIndexFlush buffer adjacency/index
	// updates until commit and apply them sorted (spec.md §6
	// "defer_adjacency_flush", "defer_index_flush").
	DeferAdjacencyFlush bool
	DeferIndexFlush     bool

	// SnapshotPoolSize and SnapshotPoolMaxAge bound the read-guard reuse
	// pool (spec.md §6 "snapshot_pool_size", "snapshot_pool_max_age_ms").
	SnapshotPoolSize   int
	SnapshotPoolMaxAge time.Duration

	Vacuum VacuumOptions
}

const (
	defaultInlinePropBlob        = 128
	defaultInlinePropValue       = 48
	defaultInlineHistoryMaxBytes = 96
	defaultVersionCacheShards    = 16
	defaultVersionCacheCapacity  = 256
	defaultDeferredBatchCapacity = 64
	defaultSnapshotPoolSize      = 32
	defaultSnapshotPoolMaxAge    = 30 * time.Second
)

func (o *GraphOptions) withDefaults() {
	if o.InlinePropBlob <= 0 {
		o.InlinePropBlob = defaultInlinePropBlob
	}
	if o.InlinePropValue <= 0 {
		o.InlinePropValue = defaultInlinePropValue
	}
	if o.InlineHistory && o.InlineHistoryMaxBytes <= 0 {
		o.InlineHistoryMaxBytes = defaultInlineHistoryMaxBytes
	}
	if o.VersionCacheShards <= 0 {
		o.VersionCacheShards = defaultVersionCacheShards
	}
	if o.VersionCacheCapacity <= 0 {
		o.VersionCacheCapacity = defaultVersionCacheCapacity
	}
	if o.SnapshotPoolSize <= 0 {
		o.SnapshotPoolSize = defaultSnapshotPoolSize
	}
	if o.SnapshotPoolMaxAge <= 0 {
		o.SnapshotPoolMaxAge = defaultSnapshotPoolMaxAge
	}
}

// flags translates the boolean options into the on-disk FeatureFlag
// bitmask persisted in the meta page.
func (o GraphOptions) flags() pager.FeatureFlag {
	var f pager.FeatureFlag
	if o.DegreeCache {
		f |= pager.FeatureDegreeCache
	}
	if o.RowHashHeader {
		f |= pager.FeatureRowHash
	}
	if o.InlineHistory {
		f |= pager.FeatureInlineHistory
	}
	if o.BTreeInPlace {
		f |= pager.FeatureBTreeInPlace
	}
	if o.DeferAdjacencyFlush {
		f |= pager.FeatureDeferAdjacency
	}
	if o.DeferIndexFlush {
		f |= pager.FeatureDeferIndex
	}
	return f
}

func (o GraphOptions) pagerConfig(path string) pager.Config {
	return pager.Config{
		Path:           path,
		WALPath:        o.WALPath,
		PageSize:       o.PageSize,
		MaxCachePages:  o.MaxCachePages,
		VerifyChecksum: o.VerifyChecksum,
		Logger:         o.Logger,
	}
}
