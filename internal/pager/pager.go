package pager

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Config configures an open database file.
type Config struct {
	Path           string
	WALPath        string
	PageSize       int
	MaxCachePages  int
	VerifyChecksum bool
	Logger         *zap.Logger
}

func (c *Config) withDefaults() {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.WALPath == "" {
		c.WALPath = c.Path + ".wal"
	}
	if c.MaxCachePages == 0 {
		c.MaxCachePages = 4096
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Pager is the page-based storage primitive described by spec.md §6: page
// read/write guards, allocation, extents, commit-id reservation, meta
// updates, durable-LSN queries, checkpointing, and crash recovery.
//
// Concurrency follows spec.md §5: a single RWMutex serializes the one
// writer against many concurrent readers.
type Pager struct {
	mu   sync.RWMutex
	file *os.File
	wal  *walFile
	log  *zap.Logger

	path     string
	pageSize int

	meta *Meta
	free *freeManager

	checksumVerify bool
	durableLSN     LSN
	extension      any

	cache *bufferPool
}

// Open opens an existing database file or creates a new one.
func Open(cfg Config) (*Pager, error) {
	cfg.withDefaults()

	exists := true
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		exists = false
	}
	f, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: open database file: %w", err)
	}

	wal, err := openWALFile(cfg.WALPath, cfg.PageSize)
	if err != nil {
		f.Close()
		return nil, err
	}

	p := &Pager{
		file:           f,
		wal:            wal,
		log:            cfg.Logger,
		path:           cfg.Path,
		pageSize:       cfg.PageSize,
		free:           newFreeManager(),
		checksumVerify: cfg.VerifyChecksum,
		cache:          newBufferPool(cfg.MaxCachePages),
	}

	if exists {
		if err := p.loadMeta(); err != nil {
			f.Close()
			wal.close()
			return nil, err
		}
		if err := recoverFromWAL(p); err != nil {
			f.Close()
			wal.close()
			return nil, err
		}
		if err := p.free.loadFromDisk(p, p.meta.FreeListRoot); err != nil {
			f.Close()
			wal.close()
			return nil, err
		}
	} else {
		p.meta = NewMeta(cfg.PageSize, rand.Uint64())
		if err := p.persistMeta(p.meta); err != nil {
			f.Close()
			wal.close()
			return nil, err
		}
	}

	p.log.Info("pager opened", zap.String("path", cfg.Path), zap.Int("page_size", p.pageSize))
	return p, nil
}

func (p *Pager) loadMeta() error {
	buf, err := p.readPageRaw(PageID(0))
	if err != nil {
		return err
	}
	m, err := UnmarshalMeta(buf)
	if err != nil {
		return err
	}
	p.meta = m
	p.pageSize = int(m.PageSize)
	return nil
}

func (p *Pager) persistMeta(m *Meta) error {
	return p.writePageRaw(PageID(0), m.Marshal(p.pageSize))
}

func (p *Pager) readPageRaw(id PageID) ([]byte, error) {
	if buf, ok := p.cache.get(id); ok {
		return buf, nil
	}
	buf := make([]byte, p.pageSize)
	off := int64(id) * int64(p.pageSize)
	n, err := p.file.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	if n < p.pageSize {
		return nil, &CorruptionError{Reason: fmt.Sprintf("short read on page %d", id)}
	}
	if p.checksumVerify {
		if err := VerifyPageCRC(buf); err != nil {
			return nil, err
		}
	}
	p.cache.put(id, buf)
	return buf, nil
}

func (p *Pager) writePageRaw(id PageID, buf []byte) error {
	off := int64(id) * int64(p.pageSize)
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("pager: write page %d: %w", id, err)
	}
	p.cache.put(id, buf)
	return nil
}

// PageSize returns the fixed page size for this database.
func (p *Pager) PageSize() int { return p.pageSize }

// CachedPages returns the number of pages currently resident in the buffer
// pool, for diagnostics.
func (p *Pager) CachedPages() int { return p.cache.len() }

// Salt returns the format salt recorded at database creation.
func (p *Pager) Salt() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meta.Salt
}

// Meta returns a snapshot copy of the current meta page contents.
func (p *Pager) Meta() *Meta {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meta.Clone()
}

// SetChecksumVerification toggles CRC32 verification on every page read.
func (p *Pager) SetChecksumVerification(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checksumVerify = v
}

// DurableLSN returns the highest LSN known to be fsynced, if any writes
// have committed yet.
func (p *Pager) DurableLSN() (LSN, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.durableLSN == 0 {
		return 0, false
	}
	return p.durableLSN, true
}

// Close closes the WAL and the database file; it neither flushes nor syncs them.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.wal.close(); err != nil {
		return err
	}
	return p.file.Close()
}

func (p *Pager) Path() string { return p.path }
