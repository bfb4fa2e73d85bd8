package grammar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/grammar"
)

const source = `// a two-instance model
module @net {
  bound @input = vtensor<[2,?],f32>
  class @Net {
    slot mutable steps : int
    method forward = @Net.forward
  }
  init {
    %0 = const.int {value = -1} : int
    %1 = obj.new(%0) {class = @Net, slots = ["steps"]} : !obj<"Net">
  }
  global @scale : float = %0
  func private @Net.forward(%self: !obj<"Net">, %x: tensor<*,unk> {bound = @input}) -> (tensor<*,unk>, int) {
    %0 = obj.get_slot(%self) {name = "steps"} : int
    %1 = aten.relu(%x) : tensor<*,unk>
    func.return(%1, %0)
  }
}`

func TestParseString(t *testing.T) {
	file, err := grammar.ParseString("net.sir", source)
	require.NoError(t, err)

	m := file.Module
	assert.Equal(t, "@net", m.Name)
	require.Len(t, m.Items, 5)

	bound := m.Items[0].Bound
	require.NotNil(t, bound)
	assert.Equal(t, "@input", bound.Name)
	assert.Equal(t, "vtensor", bound.Type.Tensor.Kind)
	assert.Equal(t, []string{"2", "?"}, bound.Type.Tensor.Dims)

	class := m.Items[1].Class
	require.NotNil(t, class)
	require.Len(t, class.Members, 2)
	assert.True(t, class.Members[0].Slot.Mutable)
	assert.Equal(t, "@Net.forward", class.Members[1].Method.Function)

	init := m.Items[2].Init
	require.NotNil(t, init)
	require.Len(t, init.Ops, 2)
	assert.Equal(t, int64(-1), *init.Ops[0].Attrs[0].Value.Int)
	assert.Equal(t, "Net", *init.Ops[1].Types[0].Object, "strings are unquoted")
	assert.Len(t, init.Ops[1].Attrs[1].Value.List, 1)

	global := m.Items[3].Global
	require.NotNil(t, global)
	assert.Equal(t, "%0", *global.Init)

	fn := m.Items[4].Func
	require.NotNil(t, fn)
	assert.Equal(t, "private", fn.Visibility)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, "bound", fn.Params[1].Attrs[0].Key)
	assert.Len(t, fn.Results.List, 2)
	assert.Equal(t, "func.return", fn.Ops[2].Name)
	assert.Equal(t, []string{"%1", "%0"}, fn.Ops[2].Operands)
	assert.Equal(t, 14, fn.Ops[0].Pos.Line)
}

func TestParseType(t *testing.T) {
	typ, err := grammar.ParseType("tuple<vtensor<*,f32>, list<int>>")
	require.NoError(t, err)
	require.Len(t, typ.Tuple, 2)
	assert.True(t, typ.Tuple[0].Tensor.Unranked)
	assert.Equal(t, "int", typ.Tuple[1].List.Scalar)

	_, err = grammar.ParseType("tensor<[2]>")
	assert.Error(t, err)
}

func TestErrorPosition(t *testing.T) {
	_, err := grammar.ParseString("bad.sir", "module @m {\n  func @f(%x) {}\n}")
	require.Error(t, err)

	line, _, message, ok := grammar.ErrorPosition(err)
	assert.True(t, ok)
	assert.Equal(t, 2, line)
	assert.NotEmpty(t, message)
}

func TestTokens(t *testing.T) {
	tokens, err := grammar.Tokens("%0 = aten.add(%a, %b) // sum")
	require.NoError(t, err)

	var values []string
	for _, tok := range tokens {
		values = append(values, tok.Value)
	}
	assert.Equal(t, []string{"%0", "=", "aten.add", "(", "%a", ",", "%b", ")", "// sum"}, values)

	tokens, err = grammar.Tokens("%0 = $")
	assert.Error(t, err)
	assert.Len(t, tokens, 2, "tokens before the bad character are kept")
}
