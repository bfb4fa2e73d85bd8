package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/ir"
)

const demoSource = `// instance tree with one child
module @demo {
  bound @b0 = vtensor<[2,3],f32>
  class @Child {
    slot name : str
  }
  class @Root {
    slot mutable count : int
    slot child : !obj<"Child">
    method forward = @Root.forward
  }
  init {
    %0 = const.int {value = 0} : int
    %1 = const.str {value = "x"} : str
    %2 = obj.new(%1) {class = @Child, slots = ["name"]} : !obj<"Child">
    %3 = obj.new(%0, %2) {class = @Root, slots = ["count", "child"]} : !obj<"Root">
  }
  func private @Root.forward(%self: !obj<"Root">, %x: tensor<*,unk> {bound = @b0}) -> int {
    %0 = obj.get_slot(%self) {name = "count"} : int
    func.return(%0)
  }
}
`

func TestParseModule(t *testing.T) {
	m, errs := ParseSource("demo.sir", demoSource)
	require.Empty(t, errs, "Should have no parse errors")
	require.NotNil(t, m)

	assert.Equal(t, "demo", m.Name)
	assert.Len(t, m.Classes, 2)
	assert.Len(t, m.Init.Ops, 4)
	assert.Equal(t, "vtensor<[2,3],f32>", m.TypeBounds["b0"].String())

	require.Len(t, m.Objects, 2)
	root := m.Objects[1]
	assert.Equal(t, "Root", root.Class)
	assert.Equal(t, m.Objects[0], root.Slot("child").Child(), "child slot should hold the Child instance")
	assert.True(t, root.Slot("count").Mutable)
	assert.False(t, m.Objects[0].Slot("name").Mutable)

	fn := m.Function("Root.forward")
	require.NotNil(t, fn)
	assert.Equal(t, ir.Private, fn.Visibility)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, "b0", fn.Params[1].BoundRef)
	assert.Nil(t, fn.Params[1].Bound)
	assert.Equal(t, "(!obj<\"Root\">, tensor<*,unk>) -> (int)", fn.Signature())

	get := fn.Body.Ops[0]
	assert.Equal(t, ir.OpGetSlot, get.Name)
	assert.Equal(t, "count", get.StringAttr("name"))
	assert.Same(t, fn.Params[0].Value, get.Operands[0])
	assert.Equal(t, 19, get.Loc.Line)
}

func TestParseInlineBoundAndAttributes(t *testing.T) {
	source := `module @m {
  func public @f(%a: tensor<[?,4],unk> {bound = vtensor<[?,4],f32>}) -> (tensor<*,unk>, float) {
    %0 = const.float {value = 1.5} : float
    %1 = list.construct(%0, %0) {flags = [1, true, "s", @f]} : list<float>
    func.return(%a, %0)
  }
}`
	m, errs := ParseSource("m.sir", source)
	require.Empty(t, errs)

	fn := m.Function("f")
	require.NotNil(t, fn)
	assert.True(t, fn.IsPublic())
	assert.Equal(t, "vtensor<[?,4],f32>", fn.Params[0].Bound.String())
	assert.Len(t, fn.Results, 2)

	tt := fn.Params[0].Type.(*ir.TensorType)
	assert.Equal(t, []int64{ir.DynamicDim, 4}, tt.Sizes)
	assert.Equal(t, ir.DTypeUnknown, tt.DType)

	value, _ := fn.Body.Ops[0].Attr("value")
	assert.Equal(t, 1.5, value)
	flags, _ := fn.Body.Ops[1].Attr("flags")
	assert.Equal(t, []ir.Attribute{int64(1), true, "s", ir.SymbolRef("f")}, flags)
}

func TestPrintParseRoundTrip(t *testing.T) {
	m, errs := ParseSource("demo.sir", demoSource)
	require.Empty(t, errs)

	printed := ir.Print(m)
	again, errs := ParseSource("printed.sir", printed)
	require.Empty(t, errs, "printed module should parse:\n%s", printed)
	assert.Equal(t, printed, ir.Print(again))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name: "undefined value",
			source: `module @m {
  func @f() {
    func.return(%7)
  }
}`,
			want: "use of undefined value %7",
		},
		{
			name: "missing terminator",
			source: `module @m {
  func @f() {
    %0 = const.int {value = 1} : int
  }
}`,
			want: "must end with func.return",
		},
		{
			name: "result type count",
			source: `module @m {
  func @f() {
    %0, %1 = const.int {value = 1} : int
    func.return()
  }
}`,
			want: "declares 2 results but 1 result types",
		},
		{
			name: "undeclared class",
			source: `module @m {
  init {
    %0 = obj.new {class = @Missing, slots = []} : !obj<"Missing">
  }
}`,
			want: "undeclared class @Missing",
		},
		{
			name: "redefinition",
			source: `module @m {
  func @f() {
    %0 = const.int {value = 1} : int
    %0 = const.int {value = 2} : int
    func.return()
  }
}`,
			want: "redefinition of %0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, errs := ParseSource("bad.sir", tt.source)
			assert.Nil(t, m)
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0].Message, tt.want)
			assert.Greater(t, errs[0].Position.Line, 0)
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	m, errs := ParseSource("bad.sir", "module @m {\n  func @f( {\n}")
	assert.Nil(t, m)
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].Position.Line)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("vtensor<[2,?],f32>")
	require.NoError(t, err)
	tt, ok := typ.(*ir.TensorType)
	require.True(t, ok)
	assert.True(t, tt.ValueSemantics)
	assert.Equal(t, []int64{2, ir.DynamicDim}, tt.Sizes)

	typ, err = ParseType("tuple<int, list<float>>")
	require.NoError(t, err)
	assert.Equal(t, "tuple<int, list<float>>", typ.String())

	_, err = ParseType("tensor<[2],q8>")
	assert.Error(t, err)

	_, err = ParseType("matrix")
	assert.Error(t, err)
}
