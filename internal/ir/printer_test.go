package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintModule(t *testing.T) {
	m := NewModule("m")
	m.TypeBounds["input"] = NewTensor([]int64{2}, F32, true)
	m.Classes = []*ClassType{{
		Name: "C",
		Slots: []*SlotDecl{
			{Name: "w", Type: NewTensor([]int64{2}, F32, false)},
			{Name: "n", Type: Int, Mutable: true},
		},
		Methods: []*Method{{Name: "forward", Function: "fwd"}},
	}}

	zero := m.NewInitOp(OpConstInt, nil, []Type{Int}, map[string]Attribute{"value": int64(0)})
	m.Init.Append(zero)
	m.Globals = append(m.Globals, &GlobalSlot{Name: "count", Type: Int, Init: zero.Result(), Mutable: true})

	x := &Parameter{Name: "x", Type: NewTensor([]int64{2}, F32, true), BoundRef: "input"}
	f := NewFunction("fwd", Public, []*Parameter{x}, []Type{Int})
	get := f.NewOp(OpGlobalGet, nil, []Type{Int}, map[string]Attribute{"global": SymbolRef("count")})
	f.Body.Append(get, f.Return(get.Result()))
	m.AddFunction(f)

	expected := `module @m {
  bound @input = vtensor<[2],f32>
  class @C {
    slot w : tensor<[2],f32>
    slot mutable n : int
    method forward = @fwd
  }
  init {
    %0 = const.int {value = 0} : int
  }
  global mutable @count : int = %0
  func public @fwd(%x: vtensor<[2],f32> {bound = @input}) -> int {
    %0 = global.get {global = @count} : int
    func.return(%0)
  }
}
`
	assert.Equal(t, expected, Print(m))
}

func TestPrintFunctionRenamesParameters(t *testing.T) {
	f := NewFunction("g", "", []*Parameter{
		{Name: "0", Type: Int},
		{Name: "y", Type: Int},
		{Name: "y", Type: Float},
	}, []Type{Int, Float})
	pair := f.NewOp(OpTupleConstruct, []*Value{f.Params[0].Value, f.Params[2].Value}, []Type{&TupleType{Elements: []Type{Int, Float}}}, nil)
	f.Body.Append(pair, f.Return(f.Params[1].Value, f.Params[2].Value))

	expected := `func private @g(%arg0: int, %y: int, %arg2: float) -> (int, float) {
  %0 = tuple.construct(%arg0, %arg2) : tuple<int, float>
  func.return(%y, %arg2)
}
`
	assert.Equal(t, expected, PrintFunction(f))
}

func TestFormatAttribute(t *testing.T) {
	assert.Equal(t, "2.0", FormatAttribute(2.0))
	assert.Equal(t, "0.25", FormatAttribute(0.25))
	assert.Equal(t, `"a\"b"`, FormatAttribute(`a"b`))
	assert.Equal(t, "@count", FormatAttribute(SymbolRef("count")))
	assert.Equal(t, "[1, true, vtensor<*,f32>]", FormatAttribute([]Attribute{int64(1), true, UnrankedTensor(F32, true)}))
}
