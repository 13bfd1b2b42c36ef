package sombra

import (
	"github.com/sombradb/sombra/internal/mvcc"
	"github.com/sombradb/sombra/internal/pager"
	"github.com/sombradb/sombra/internal/rowcodec"
)

// NodeID and EdgeID identify graph entities; zero is never assigned since
// the id counters in the meta page start at 1 (spec.md §3).
type NodeID uint64

type EdgeID uint64

// TypeID, LabelID, and PropID name an edge type, a node label, and a
// property key respectively — all small dictionary-encoded integers
// resolved by whatever layer sits above this engine (spec.md §1 "the
// dictionary encoding that maps strings to these ids is out of scope").
type TypeID uint32
type LabelID uint32
type PropID = rowcodec.PropID

// PropValue is one stored property value (spec.md §3/§9's PropValue set).
type PropValue = rowcodec.PropValue

// CommitID is a committed write's identifier, also used as a reader
// snapshot label (spec.md §2 "Commit id").
type CommitID = mvcc.CommitID

// PageID addresses one on-disk page; the zero value is null.
type PageID = pager.PageID
