package index

import "github.com/sombradb/sombra/internal/rowcodec"

// Change is one staged index maintenance action produced by diffing a
// node's old and new property maps against the active catalog
// (spec.md §4.5 "Maintenance").
type Change struct {
	Def   IndexDef
	Value rowcodec.PropValue
	Node  uint64
	Kind  ChangeKind
}

// ChangeKind distinguishes a staged index insert from a staged removal.
type ChangeKind uint8

const (
	ChangeInsert ChangeKind = iota
	ChangeRemove
)

// DiffProperties compares oldProps against newProps for the property-kind
// defs covering label, and returns the insert/remove changes needed to
// keep the property index in step. A value present in both maps but
// unchanged produces no change; a changed value produces a remove of the
// old posting and an insert of the new one.
func DiffProperties(defs []IndexDef, label uint32, node uint64, oldProps, newProps map[rowcodec.PropID]rowcodec.PropValue) []Change {
	var out []Change
	for _, d := range defs {
		if d.Kind != KindProperty || d.Label != label {
			continue
		}
		oldVal, hadOld := oldProps[d.Prop]
		newVal, hasNew := newProps[d.Prop]
		if hadOld && hasNew && valuesEqual(oldVal, newVal) {
			continue
		}
		if hadOld {
			out = append(out, Change{Def: d, Value: oldVal, Node: node, Kind: ChangeRemove})
		}
		if hasNew {
			out = append(out, Change{Def: d, Value: newVal, Node: node, Kind: ChangeInsert})
		}
	}
	return out
}

// DiffLabels compares oldLabels against newLabels and returns the
// label-index insert/remove changes needed.
func DiffLabels(node uint64, oldLabels, newLabels []uint32) (inserts, removes []uint32) {
	oldSet := make(map[uint32]bool, len(oldLabels))
	for _, l := range oldLabels {
		oldSet[l] = true
	}
	newSet := make(map[uint32]bool, len(newLabels))
	for _, l := range newLabels {
		newSet[l] = true
		if !oldSet[l] {
			inserts = append(inserts, l)
		}
	}
	for _, l := range oldLabels {
		if !newSet[l] {
			removes = append(removes, l)
		}
	}
	return inserts, removes
}

func valuesEqual(a, b rowcodec.PropValue) bool {
	ka, err1 := EncodeValueKey(a)
	kb, err2 := EncodeValueKey(b)
	if err1 != nil || err2 != nil {
		return false
	}
	if len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}
