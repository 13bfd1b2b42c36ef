package mvcc

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// CommitStatus is the lifecycle state of a reserved commit id.
type CommitStatus uint8

const (
	CommitPending CommitStatus = iota
	CommitCommitted
)

func (s CommitStatus) String() string {
	if s == CommitCommitted {
		return "committed"
	}
	return "pending"
}

type commitEntry struct {
	id          CommitID
	status      CommitStatus
	readerRefs  uint32
	committedAt time.Time
}

// ReaderID identifies an active reader for diagnostics.
type ReaderID uint64

type readerSource uint8

const (
	sourceFloor readerSource = iota
	sourceEntry
)

// ReaderToken is returned by RegisterReader and must be passed back to
// ReleaseReader exactly once.
type ReaderToken struct {
	id     ReaderID
	commit CommitID
	source readerSource
}

// Commit returns the snapshot commit id this token pins.
func (t ReaderToken) Commit() CommitID { return t.commit }

type activeReader struct {
	snapshot CommitID
	begin    time.Time
}

const maxSlowReaderSamples = 4

// CommitTable coordinates writer commit ids with reader snapshots
// (spec.md §3 "Commit table", §4.2). It is process-local: an ordered
// queue of {id, status, reader_refs, committed_at} plus a map of active
// readers, exposing oldest_visible and vacuum_horizon to the vacuum
// scheduler.
type CommitTable struct {
	mu sync.Mutex

	releasedUpTo CommitID
	entries      []commitEntry // front = oldest, ordered by id
	readerFloor  map[CommitID]uint32
	readers      map[ReaderID]activeReader
	nextReaderID ReaderID
}

// NewCommitTable returns a table whose released-floor starts at startID;
// ids at or below it are assumed already durable and require no entry.
func NewCommitTable(startID CommitID) *CommitTable {
	return &CommitTable{
		releasedUpTo: startID,
		readerFloor:  make(map[CommitID]uint32),
		readers:      make(map[ReaderID]activeReader),
		nextReaderID: 1,
	}
}

// Reserve registers a freshly allocated commit id as pending. IDs must
// strictly increase and may not re-enter the released-up-to window
// (spec.md §4.2 "reserve(id)").
func (t *CommitTable) Reserve(id CommitID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == CommitMax {
		return fmt.Errorf("mvcc: commit id zero is reserved")
	}
	if id <= t.releasedUpTo {
		return fmt.Errorf("mvcc: commit id %d already released", id)
	}
	if n := len(t.entries); n > 0 && id <= t.entries[n-1].id {
		return fmt.Errorf("mvcc: commit id must increase monotonically")
	}
	t.entries = append(t.entries, commitEntry{id: id, status: CommitPending})
	return nil
}

// MarkCommitted transitions a previously reserved commit to committed.
func (t *CommitTable) MarkCommitted(id CommitID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("mvcc: unknown commit id %d", id)
	}
	if t.entries[idx].status == CommitCommitted {
		return fmt.Errorf("mvcc: commit %d already finalized", id)
	}
	t.entries[idx].status = CommitCommitted
	t.entries[idx].committedAt = time.Now()
	return nil
}

func (t *CommitTable) indexOf(id CommitID) int {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].id >= id })
	if i < len(t.entries) && t.entries[i].id == id {
		return i
	}
	return -1
}

// RegisterReader pins a reader at snapshot and returns a token to release
// it with. Snapshots at or below the released floor are tracked in a
// lightweight counter map rather than requiring a live entry.
func (t *CommitTable) RegisterReader(snapshot CommitID) (ReaderToken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextReaderID
	t.nextReaderID++

	if snapshot <= t.releasedUpTo {
		t.readerFloor[snapshot]++
		t.readers[id] = activeReader{snapshot: snapshot, begin: time.Now()}
		return ReaderToken{id: id, commit: snapshot, source: sourceFloor}, nil
	}

	idx := t.indexOf(snapshot)
	if idx < 0 {
		return ReaderToken{}, fmt.Errorf("mvcc: reader snapshot %d unknown", snapshot)
	}
	t.entries[idx].readerRefs++
	t.readers[id] = activeReader{snapshot: snapshot, begin: time.Now()}
	return ReaderToken{id: id, commit: snapshot, source: sourceEntry}, nil
}

// ReleaseReader releases a token previously returned by RegisterReader.
func (t *CommitTable) ReleaseReader(tok ReaderToken) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch tok.source {
	case sourceFloor:
		if n := t.readerFloor[tok.commit]; n > 1 {
			t.readerFloor[tok.commit] = n - 1
		} else {
			delete(t.readerFloor, tok.commit)
		}
	case sourceEntry:
		if idx := t.indexOf(tok.commit); idx >= 0 && t.entries[idx].readerRefs > 0 {
			t.entries[idx].readerRefs--
		}
	}
	delete(t.readers, tok.id)
}

// ReleaseCommitted advances the released floor past every committed,
// reader-free entry up to and including uptoID (spec.md §4.2
// "release_committed").
func (t *CommitTable) ReleaseCommitted(uptoID CommitID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := 0
	for i < len(t.entries) {
		e := t.entries[i]
		if e.id > uptoID || e.status != CommitCommitted || e.readerRefs > 0 {
			break
		}
		t.releasedUpTo = e.id
		i++
	}
	t.entries = t.entries[i:]
}

// OldestVisible returns the smallest commit id that must remain visible
// to some reader: the smallest reader-floor entry, else the oldest
// tracked entry, else the released floor (spec.md §4.2 "oldest_visible").
func (t *CommitTable) OldestVisible() CommitID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.oldestVisibleLocked()
}

func (t *CommitTable) oldestVisibleLocked() CommitID {
	min, ok := CommitID(0), false
	for commit := range t.readerFloor {
		if !ok || commit < min {
			min, ok = commit, true
		}
	}
	if ok {
		return min
	}
	if len(t.entries) > 0 {
		return t.entries[0].id
	}
	return t.releasedUpTo
}

// VacuumHorizon returns the maximum commit id eligible for history
// cleanup given a retention window: min(oldest_visible, the newest
// committed entry older than now-retention) (spec.md §4.2 "vacuum_horizon").
func (t *CommitTable) VacuumHorizon(retention time.Duration) CommitID {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-retention)
	floor := t.releasedUpTo
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.status != CommitCommitted {
			continue
		}
		if !e.committedAt.IsZero() && !e.committedAt.After(cutoff) {
			if e.id > floor {
				floor = e.id
			}
			break
		}
	}
	oldest := t.oldestVisibleLocked()
	if floor < oldest {
		return floor
	}
	return oldest
}

// ReaderSnapshotEntry describes one active reader for diagnostics.
type ReaderSnapshotEntry struct {
	ReaderID ReaderID
	Snapshot CommitID
	AgeMS    uint64
}

// ReaderSnapshot summarizes currently active readers.
type ReaderSnapshot struct {
	Active         uint64
	OldestSnapshot *CommitID
	NewestSnapshot *CommitID
	MaxAgeMS       uint64
	SlowReaders    []ReaderSnapshotEntry
}

// CommitEntrySnapshot summarizes one outstanding commit entry.
type CommitEntrySnapshot struct {
	ID             CommitID
	Status         CommitStatus
	ReaderRefs     uint32
	CommittedMSAgo *uint64
}

// CommitTableSnapshot is a diagnostic view of the whole table, surfaced
// by the graph facade's mvcc_status operation (spec.md §6).
type CommitTableSnapshot struct {
	ReleasedUpTo  CommitID
	OldestVisible CommitID
	Entries       []CommitEntrySnapshot
	Readers       ReaderSnapshot
}

// Snapshot captures a diagnostic view of the table's current state.
func (t *CommitTable) Snapshot() CommitTableSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()

	entries := make([]CommitEntrySnapshot, len(t.entries))
	for i, e := range t.entries {
		ces := CommitEntrySnapshot{ID: e.id, Status: e.status, ReaderRefs: e.readerRefs}
		if !e.committedAt.IsZero() {
			ms := uint64(now.Sub(e.committedAt).Milliseconds())
			ces.CommittedMSAgo = &ms
		}
		entries[i] = ces
	}

	var rs ReaderSnapshot
	if len(t.readers) > 0 {
		slow := make([]ReaderSnapshotEntry, 0, len(t.readers))
		for id, r := range t.readers {
			rs.Active++
			if rs.OldestSnapshot == nil || r.snapshot < *rs.OldestSnapshot {
				c := r.snapshot
				rs.OldestSnapshot = &c
			}
			if rs.NewestSnapshot == nil || r.snapshot > *rs.NewestSnapshot {
				c := r.snapshot
				rs.NewestSnapshot = &c
			}
			ageMS := uint64(now.Sub(r.begin).Milliseconds())
			if ageMS > rs.MaxAgeMS {
				rs.MaxAgeMS = ageMS
			}
			slow = append(slow, ReaderSnapshotEntry{ReaderID: id, Snapshot: r.snapshot, AgeMS: ageMS})
		}
		sort.Slice(slow, func(i, j int) bool { return slow[i].AgeMS > slow[j].AgeMS })
		if len(slow) > maxSlowReaderSamples {
			slow = slow[:maxSlowReaderSamples]
		}
		rs.SlowReaders = slow
	}

	return CommitTableSnapshot{
		ReleasedUpTo:  t.releasedUpTo,
		OldestVisible: t.oldestVisibleLocked(),
		Entries:       entries,
		Readers:       rs,
	}
}
