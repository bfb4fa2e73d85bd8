package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffects(t *testing.T) {
	f := NewFunction("f", Public, nil, nil)

	get := f.NewOp(OpGlobalGet, nil, []Type{Int}, map[string]Attribute{"global": SymbolRef("count")})
	effects := get.Effects()
	require.Len(t, effects, 1)
	assert.Equal(t, &GlobalEffect{Type: "read", Global: "count"}, effects[0])

	slot := f.NewOp(OpSetSlot, nil, nil, map[string]Attribute{"name": "weight"})
	assert.Equal(t, []Effect{&InstanceEffect{Type: "write", Slot: "weight"}}, slot.Effects())

	overwrite := f.NewOp(OpOverwrite, nil, nil, nil)
	assert.Equal(t, []Effect{&MemoryEffectOp{Type: MemoryEffectWrite, Operand: 1}}, overwrite.Effects())

	assert.Equal(t, "unknown", f.NewOp("vendor.opaque", nil, nil, nil).Effects()[0].EffectKind())
}

func TestIsRemovableIfUnused(t *testing.T) {
	RegisterOp(&OpInfo{Name: "test.view", ViewOf: 0})
	RegisterOp(&OpInfo{Name: "test.fill_", Mutates: []int{0}, ViewOf: -1})
	require.True(t, LookupOp("test.view").IsView())
	require.True(t, LookupOp("test.fill_").IsInPlace())

	tests := []struct {
		op   string
		want bool
	}{
		{OpConstInt, true},
		{OpGlobalGet, true},
		{OpGetSlot, true},
		{OpCopyToTensor, true},
		{OpCopyToVTensor, true},
		{"test.view", true},
		{OpGlobalSet, false},
		{OpSetSlot, false},
		{OpCall, false},
		{OpCallMethod, false},
		{OpOverwrite, false},
		{OpReturn, false},
		{OpObjectNew, false},
		{"test.fill_", false},
		{"vendor.opaque", false},
	}
	f := NewFunction("f", Public, nil, nil)
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			assert.Equal(t, tt.want, f.NewOp(tt.op, nil, nil, nil).IsRemovableIfUnused())
		})
	}
}

func TestRegisteredOpsSorted(t *testing.T) {
	names := RegisteredOps()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, OpReturn)
	assert.Nil(t, LookupOp("no.such_op"))
}
