package sombra

import (
	"github.com/sombradb/sombra/internal/index"
	"github.com/sombradb/sombra/internal/pager"
)

// graphTxnState is the writer-local cache attached to the pager via
// StoreExtension/TakeExtension (spec.md §4.5 "Catalog epoch": a writer
// caches a label's index definitions across many mutations in the same
// process, but must notice when a CreateIndex/DropIndex from elsewhere
// bumped the DDL epoch and refresh"). It lives for the lifetime of the
// Graph, not one transaction: the pager keeps the extension value across
// commits, and txnState stores it back after each TakeExtension clears it.
type graphTxnState struct {
	epoch   uint64
	byLabel map[uint32][]index.IndexDef
}

// txnState returns the writer's cached per-label index-def lookup table,
// refreshing it from the catalog if meta's DDLEpoch moved on since it was
// last built.
func (g *Graph) txnState(w *pager.WriteGuard) *graphTxnState {
	st, _ := w.TakeExtension().(*graphTxnState)
	var epoch uint64
	w.UpdateMeta(func(m *pager.Meta) { epoch = m.DDLEpoch })
	if st == nil || st.epoch != epoch {
		st = &graphTxnState{epoch: epoch, byLabel: make(map[uint32][]index.IndexDef)}
	}
	w.StoreExtension(st)
	return st
}

// indexDefsForLabel returns the index definitions covering label,
// consulting (and populating) the writer-local cache instead of
// hitting the catalog tree on every mutation.
func (g *Graph) indexDefsForLabel(w *pager.WriteGuard, label uint32) ([]index.IndexDef, error) {
	st := g.txnState(w)
	if defs, ok := st.byLabel[label]; ok {
		return defs, nil
	}
	defs, err := g.catalog.ForLabel(w, label)
	if err != nil {
		return nil, err
	}
	st.byLabel[label] = defs
	return defs, nil
}
