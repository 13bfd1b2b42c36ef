package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sombradb/sombra/internal/rowcodec"
)

func TestDiffPropertiesNoChange(t *testing.T) {
	defs := []IndexDef{{Label: 1, Prop: 5, TypeTag: rowcodec.KindInt, Kind: KindProperty}}
	old := map[rowcodec.PropID]rowcodec.PropValue{5: int64(42)}
	new_ := map[rowcodec.PropID]rowcodec.PropValue{5: int64(42)}
	changes := DiffProperties(defs, 1, 100, old, new_)
	require.Empty(t, changes)
}

func TestDiffPropertiesChangedValue(t *testing.T) {
	defs := []IndexDef{{Label: 1, Prop: 5, TypeTag: rowcodec.KindInt, Kind: KindProperty}}
	old := map[rowcodec.PropID]rowcodec.PropValue{5: int64(42)}
	new_ := map[rowcodec.PropID]rowcodec.PropValue{5: int64(43)}
	changes := DiffProperties(defs, 1, 100, old, new_)
	require.Len(t, changes, 2)
	require.Equal(t, ChangeRemove, changes[0].Kind)
	require.Equal(t, int64(42), changes[0].Value)
	require.Equal(t, ChangeInsert, changes[1].Kind)
	require.Equal(t, int64(43), changes[1].Value)
}

func TestDiffPropertiesAddedAndRemoved(t *testing.T) {
	defs := []IndexDef{
		{Label: 1, Prop: 5, TypeTag: rowcodec.KindInt, Kind: KindProperty},
		{Label: 1, Prop: 6, TypeTag: rowcodec.KindString, Kind: KindProperty},
	}
	old := map[rowcodec.PropID]rowcodec.PropValue{5: int64(42)}
	new_ := map[rowcodec.PropID]rowcodec.PropValue{6: "hi"}
	changes := DiffProperties(defs, 1, 100, old, new_)
	require.Len(t, changes, 2)
	require.Equal(t, ChangeRemove, changes[0].Kind)
	require.Equal(t, uint32(5), changes[0].Def.Prop)
	require.Equal(t, ChangeInsert, changes[1].Kind)
	require.Equal(t, uint32(6), changes[1].Def.Prop)
}

func TestDiffPropertiesIgnoresOtherLabelsAndKinds(t *testing.T) {
	defs := []IndexDef{
		{Label: 2, Prop: 5, TypeTag: rowcodec.KindInt, Kind: KindProperty},
		{Label: 1, Prop: 5, TypeTag: rowcodec.KindInt, Kind: KindLabel},
	}
	old := map[rowcodec.PropID]rowcodec.PropValue{}
	new_ := map[rowcodec.PropID]rowcodec.PropValue{5: int64(1)}
	changes := DiffProperties(defs, 1, 100, old, new_)
	require.Empty(t, changes)
}

func TestDiffLabelsAddedRemovedUnchanged(t *testing.T) {
	inserts, removes := DiffLabels(100, []uint32{1, 2, 3}, []uint32{2, 3, 4})
	require.Equal(t, []uint32{4}, inserts)
	require.Equal(t, []uint32{1}, removes)
}

func TestDiffLabelsNoChange(t *testing.T) {
	inserts, removes := DiffLabels(100, []uint32{1, 2}, []uint32{1, 2})
	require.Empty(t, inserts)
	require.Empty(t, removes)
}
