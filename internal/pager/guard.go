package pager

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ReadGuard is a reader's pinned view of the database, carrying the
// snapshot commit id (spec.md's "snapshot LSN") used for MVCC filtering.
type ReadGuard struct {
	p          *Pager
	snapshotID CommitID
	released   bool
	mu         sync.Once
}

// Snapshot returns the commit id this guard is pinned to.
func (g *ReadGuard) Snapshot() CommitID { return g.snapshotID }

// GetPage reads a page by id, verifying its checksum if enabled.
func (g *ReadGuard) GetPage(id PageID) ([]byte, error) {
	g.p.mu.RLock()
	defer g.p.mu.RUnlock()
	return g.p.readPageRaw(id)
}

// Close marks the guard released. Safe to call more than once.
func (g *ReadGuard) Close() {
	g.mu.Do(func() {
		g.released = true
	})
}

// BeginRead opens a read guard pinned at the current latest committed
// commit id. The shared lock is held only while the snapshot id is read
// (and again per GetPage), so an open read guard does not block a writer.
func (p *Pager) BeginRead() (*ReadGuard, error) {
	p.mu.RLock()
	snap := CommitID(p.meta.NextCommitID - 1)
	p.mu.RUnlock()
	return &ReadGuard{p: p, snapshotID: snap}, nil
}

// BeginLatestCommittedRead is an alias for BeginRead kept for symmetry with
// the pager contract in spec.md §6, where the two calls are distinguished
// only by intent at the call site, not by mechanism.
func (p *Pager) BeginLatestCommittedRead() (*ReadGuard, error) { return p.BeginRead() }

func (p *Pager) readDone() { p.mu.RUnlock() }

// WriteGuard is the single writer's exclusive view: it can allocate,
// mutate, and free pages, and stages them for atomic commit. The
// exclusivity is across transactions, not within one: a caller that
// fans a single transaction's work out across goroutines (e.g. the
// deferred adjacency/index flush in spec.md §4.6) must still serialize
// access to the guard's own state, which mu provides.
type WriteGuard struct {
	p  *Pager
	mu sync.Mutex

	dirty    map[PageID][]byte
	freed    []PageID
	allocd   []PageID
	metaCopy *Meta
	txID     TxID
	done     bool
}

// BeginWrite acquires the exclusive writer lock and returns a WriteGuard.
func (p *Pager) BeginWrite() (*WriteGuard, error) {
	p.mu.Lock()
	w := &WriteGuard{
		p:        p,
		dirty:    make(map[PageID][]byte),
		metaCopy: p.meta.Clone(),
		txID:     TxID(p.meta.NextCommitID),
	}
	if _, err := p.wal.appendRecord(&Record{Type: RecordBegin, TxID: w.txID}); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	return w, nil
}

// GetPage reads a page, preferring the write guard's dirty copy if present.
func (w *WriteGuard) GetPage(id PageID) ([]byte, error) {
	w.mu.Lock()
	buf, ok := w.dirty[id]
	w.mu.Unlock()
	if ok {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		return cp, nil
	}
	return w.p.readPageRaw(id)
}

// PageMut returns a mutable page buffer for id; changes must be followed
// by PutPage to stage them for commit. A page allocated past the last
// committed page has no on-disk image yet and starts out zeroed.
func (w *WriteGuard) PageMut(id PageID) ([]byte, error) {
	w.mu.Lock()
	if buf, ok := w.dirty[id]; ok {
		w.mu.Unlock()
		return buf, nil
	}
	w.mu.Unlock()
	var buf []byte
	if uint64(id) >= w.p.meta.NextPageID {
		buf = NewPage(w.p.pageSize, 0, id)
	} else {
		var err error
		buf, err = w.p.readPageRaw(id)
		if err != nil {
			return nil, err
		}
	}
	w.p.cache.pin(id)
	w.mu.Lock()
	w.dirty[id] = buf
	w.mu.Unlock()
	return buf, nil
}

// PutPage stages a freshly encoded page buffer for id (used after building
// a new page layout from scratch rather than mutating in place).
func (w *WriteGuard) PutPage(id PageID, buf []byte) {
	w.mu.Lock()
	_, already := w.dirty[id]
	w.dirty[id] = buf
	w.mu.Unlock()
	if !already {
		w.p.cache.pin(id)
	}
}

// AllocatePage reserves a fresh page id, preferring a recycled free page.
func (w *WriteGuard) AllocatePage() PageID {
	if id := w.p.free.pop(); id != NullPageID {
		w.mu.Lock()
		w.allocd = append(w.allocd, id)
		w.mu.Unlock()
		return id
	}
	w.mu.Lock()
	id := PageID(w.metaCopy.NextPageID)
	w.metaCopy.NextPageID++
	w.allocd = append(w.allocd, id)
	w.mu.Unlock()
	return id
}

// AllocateExtent reserves n contiguous fresh page ids when the allocator
// can offer them; falling back to individually allocated ids is always
// correct since nothing above assumes physical contiguity.
func (w *WriteGuard) AllocateExtent(n int) []PageID {
	ids := make([]PageID, n)
	for i := range ids {
		ids[i] = w.AllocatePage()
	}
	return ids
}

// FreePage returns a page to the free list, effective at commit.
func (w *WriteGuard) FreePage(id PageID) {
	w.mu.Lock()
	w.freed = append(w.freed, id)
	w.mu.Unlock()
}

// ReserveCommitID allocates the next monotonically increasing commit id
// for this write guard's transaction.
func (w *WriteGuard) ReserveCommitID() CommitID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := CommitID(w.metaCopy.NextCommitID)
	w.metaCopy.NextCommitID++
	return id
}

// UpdateMeta lets the caller mutate a scratch copy of the meta page; the
// mutation is only published when the guard commits. fn must not call
// back into the guard: mu is held for the duration of fn.
func (w *WriteGuard) UpdateMeta(fn func(*Meta)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.metaCopy)
}

// TakeExtension removes and returns any extension value previously stored
// with StoreExtension. The value is held on the Pager, so it carries over
// from one write transaction to the next.
func (w *WriteGuard) TakeExtension() any {
	p := w.p
	w.mu.Lock()
	defer w.mu.Unlock()
	v := p.extension
	p.extension = nil
	return v
}

// StoreExtension attaches an opaque extension value (e.g. a
// *mvcc.CommitTable handle or writer-local index cache) to the Pager; it
// survives commits until the next TakeExtension call.
func (w *WriteGuard) StoreExtension(v any) {
	p := w.p
	w.mu.Lock()
	defer w.mu.Unlock()
	p.extension = v
}

// Commit writes every staged page (WAL image, then the file), then the
// free-list chain, then the updated meta page, and finally appends the
// commit record, fsyncs the WAL and marks it durable.
func (p *Pager) Commit(w *WriteGuard) error {
	if w.done {
		return fmt.Errorf("pager: write guard already closed")
	}
	defer p.mu.Unlock()
	w.done = true

	for _, id := range w.freed {
		p.free.push(id)
	}

	for id, buf := range w.dirty {
		SetPageCRC(buf)
		if _, err := p.wal.appendRecord(&Record{Type: RecordPageImage, TxID: w.txID, PageID: id, Data: buf}); err != nil {
			return err
		}
		if err := p.writePageRaw(id, buf); err != nil {
			return err
		}
		p.cache.unpin(id, buf)
	}

	freshIDs := func(n int) []PageID {
		ids := make([]PageID, n)
		for i := range ids {
			ids[i] = PageID(w.metaCopy.NextPageID)
			w.metaCopy.NextPageID++
		}
		return ids
	}
	root, err := p.free.flushToDisk(p, freshIDs)
	if err != nil {
		return err
	}
	w.metaCopy.FreeListRoot = root

	metaBuf := w.metaCopy.Marshal(p.pageSize)
	if err := p.writePageRaw(PageID(0), metaBuf); err != nil {
		return err
	}

	lsn, err := p.wal.appendRecord(&Record{Type: RecordCommit, TxID: w.txID})
	if err != nil {
		return err
	}
	if err := p.wal.sync(); err != nil {
		return err
	}

	p.meta = w.metaCopy
	p.durableLSN = lsn
	p.log.Debug("commit", zap.Uint64("commit_id", uint64(w.txID)), zap.Int("dirty_pages", len(w.dirty)))
	return nil
}

// Abort discards every staged change without touching the database file.
func (p *Pager) Abort(w *WriteGuard) error {
	if w.done {
		return nil
	}
	defer p.mu.Unlock()
	w.done = true
	// Unpin without re-admitting: the dirty buffers here were never
	// persisted, so caching them would serve readers an image that
	// doesn't exist on disk.
	for id := range w.dirty {
		p.cache.unpinDiscard(id)
	}
	_, err := p.wal.appendRecord(&Record{Type: RecordAbort, TxID: w.txID})
	return err
}

// Checkpoint truncates the WAL once every page image in it is durable on
// the main file; called periodically, e.g. from the vacuum scheduler.
func (p *Pager) Checkpoint() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.wal.appendRecord(&Record{Type: RecordCheckpoint}); err != nil {
		return err
	}
	if err := p.wal.sync(); err != nil {
		return err
	}
	m := p.meta.Clone()
	m.CheckpointLSN = p.durableLSN
	if err := p.writePageRaw(PageID(0), m.Marshal(p.pageSize)); err != nil {
		return err
	}
	p.meta = m
	return p.wal.truncate()
}
