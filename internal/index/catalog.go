// Package index implements the label and property indexes and their
// shared (label, prop) catalog (spec.md §4.5).
package index

import (
	"encoding/binary"

	"github.com/sombradb/sombra/internal/btree"
	"github.com/sombradb/sombra/internal/pager"
	"github.com/sombradb/sombra/internal/rowcodec"
)

// pageReader is satisfied by both *pager.ReadGuard and *pager.WriteGuard.
type pageReader interface {
	GetPage(pager.PageID) ([]byte, error)
}

// Kind distinguishes what a catalog entry indexes.
type Kind uint8

const (
	KindLabel Kind = iota
	KindProperty
)

// IndexDef is one catalog entry: an index over (label, prop) of the given
// property kind (spec.md §4.5 "Catalog").
type IndexDef struct {
	Label   uint32
	Prop    rowcodec.PropID
	TypeTag rowcodec.PropKind
	Kind    Kind
}

const catalogKeyLen = 4 + 4
const indexDefLen = 4 + 4 + 1 + 1

func catalogKey(label uint32, prop rowcodec.PropID) []byte {
	buf := make([]byte, catalogKeyLen)
	binary.BigEndian.PutUint32(buf[0:4], label)
	binary.BigEndian.PutUint32(buf[4:8], uint32(prop))
	return buf
}

func encodeIndexDef(d IndexDef) []byte {
	buf := make([]byte, indexDefLen)
	binary.BigEndian.PutUint32(buf[0:4], d.Label)
	binary.BigEndian.PutUint32(buf[4:8], uint32(d.Prop))
	buf[8] = byte(d.TypeTag)
	buf[9] = byte(d.Kind)
	return buf
}

func decodeIndexDef(b []byte) (IndexDef, error) {
	if len(b) < indexDefLen {
		return IndexDef{}, &pager.CorruptionError{Reason: "index catalog record truncated"}
	}
	return IndexDef{
		Label:   binary.BigEndian.Uint32(b[0:4]),
		Prop:    rowcodec.PropID(binary.BigEndian.Uint32(b[4:8])),
		TypeTag: rowcodec.PropKind(b[8]),
		Kind:    Kind(b[9]),
	}, nil
}

// Catalog is the (label, prop) -> IndexDef tree (spec.md §4.5 "Catalog").
// Its values are fixed-layout binary records, not JSON — every other
// on-disk structure in this module is a fixed binary layout, and the
// catalog is small and append-mostly, so there is no benefit to a
// self-describing format here.
type Catalog struct {
	tree *btree.Tree
}

// OpenCatalog attaches the catalog to the root recorded in the meta page.
func OpenCatalog(p *pager.Pager, opts btree.Options) *Catalog {
	ra := btree.RootAccessor{
		Get: func(m *pager.Meta) pager.PageID { return m.IndexCatalogRoot },
		Set: func(m *pager.Meta, id pager.PageID) { m.IndexCatalogRoot = id },
	}
	return &Catalog{tree: btree.Open(p, ra, btree.RawCodec{}, btree.RawCodec{}, opts)}
}

// Create installs a new index definition and bumps the DDL epoch so
// writer-local plan caches invalidate (spec.md §4.5 "Catalog epoch").
func (c *Catalog) Create(w *pager.WriteGuard, d IndexDef) error {
	if err := c.tree.Put(w, catalogKey(d.Label, d.Prop), encodeIndexDef(d)); err != nil {
		return err
	}
	w.UpdateMeta(func(m *pager.Meta) { m.DDLEpoch++ })
	return nil
}

// Drop removes an index definition and bumps the DDL epoch.
func (c *Catalog) Drop(w *pager.WriteGuard, label uint32, prop rowcodec.PropID) (bool, error) {
	found, err := c.tree.Delete(w, catalogKey(label, prop))
	if err != nil || !found {
		return found, err
	}
	w.UpdateMeta(func(m *pager.Meta) { m.DDLEpoch++ })
	return true, nil
}

// Lookup returns the index definition for (label, prop), if one exists.
func (c *Catalog) Lookup(r pageReader, label uint32, prop rowcodec.PropID) (IndexDef, bool, error) {
	v, ok, err := c.tree.Get(r, catalogKey(label, prop))
	if err != nil || !ok {
		return IndexDef{}, false, err
	}
	d, err := decodeIndexDef(v.([]byte))
	return d, err == nil, err
}

// ForLabel returns every index definition covering the given label.
func (c *Catalog) ForLabel(r pageReader, label uint32) ([]IndexDef, error) {
	lower := catalogKey(label, 0)
	upper := catalogKey(label, rowcodec.PropID(^uint32(0)))
	cur, err := c.tree.Cursor(r, lower, upper)
	if err != nil {
		return nil, err
	}
	var out []IndexDef
	for {
		_, v, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		d, err := decodeIndexDef(v.([]byte))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// StatsSnapshot returns the underlying tree's running counters.
func (c *Catalog) StatsSnapshot() btree.Stats { return c.tree.StatsSnapshot() }
