package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/errors"
	"strata/internal/ir"
	"strata/internal/parser"
)

func parse(t *testing.T, source string) *ir.Module {
	t.Helper()
	m, errs := parser.ParseSource("test.sir", source)
	require.Empty(t, errs, "fixture should parse")
	return m
}

const conventions = `module @conv {
  bound @input = vtensor<[2,3],f32>
  func public @entry(%x: tensor<*,unk> {bound = @input}, %n: int {bound = int}) -> tuple<tensor<*,unk>, int> {
    %0 = func.call(%x) {callee = @log} : none
    %1 = func.call(%x, %n) {callee = @pair} : tuple<tensor<*,unk>, int>
    func.return(%1)
  }
  func private @log(%t: tensor<*,unk>) -> none {
    %0 = const.none : none
    func.return(%0)
  }
  func private @pair(%t: tensor<*,unk>, %n: int) -> tuple<tensor<*,unk>, int> {
    %0 = tuple.construct(%t, %n) : tuple<tensor<*,unk>, int>
    func.return(%0)
  }
}`

func TestAdjustMergesBounds(t *testing.T) {
	m := parse(t, conventions)
	require.NoError(t, Adjust(m))

	entry := m.Function("entry")
	require.NotNil(t, entry)
	x := entry.Params[0]
	assert.Equal(t, "vtensor<[2,3],f32>", x.Type.String())
	assert.Empty(t, x.BoundRef)
	assert.Nil(t, entry.Params[1].Bound)

	first := entry.Body.Ops[0]
	require.Equal(t, ir.OpCopyToTensor, first.Name, "a value bound on a non-value parameter needs an entry copy")
	assert.Same(t, x.Value, first.Operands[0])
	assert.Equal(t, "tensor<[2,3],f32>", first.Result().Type.String())

	for _, op := range entry.Body.Ops[1:] {
		for _, v := range op.Operands {
			assert.NotSame(t, x.Value, v, "uses must read the entry copy")
		}
	}
}

func TestAdjustDropsNoneResults(t *testing.T) {
	m := parse(t, conventions)
	require.NoError(t, Adjust(m))

	log := m.Function("log")
	assert.Empty(t, log.Results)
	assert.Empty(t, log.Body.Terminator().Operands)

	entry := m.Function("entry")
	var call *ir.Operation
	for i, op := range entry.Body.Ops {
		if op.Name == ir.OpCall && op.SymbolAttr("callee") == "log" {
			call = op
			assert.Empty(t, op.Results)
			assert.Equal(t, ir.OpConstNone, entry.Body.Ops[i+1].Name, "call result is replaced by a fresh none")
		}
	}
	require.NotNil(t, call)
}

func TestAdjustExpandsTupleResults(t *testing.T) {
	m := parse(t, conventions)
	require.NoError(t, Adjust(m))

	pair := m.Function("pair")
	require.Len(t, pair.Results, 2)
	ret := pair.Body.Terminator()
	assert.Equal(t, []*ir.Value{pair.Params[0].Value, pair.Params[1].Value}, ret.Operands,
		"return should reuse the tuple.construct operands")

	entry := m.Function("entry")
	require.Len(t, entry.Results, 2)
	assert.Equal(t, "tensor<*,unk>", entry.Results[0].String())

	var call *ir.Operation
	for _, op := range entry.Body.Ops {
		if op.Name == ir.OpCall && op.SymbolAttr("callee") == "pair" {
			call = op
		}
	}
	require.NotNil(t, call)
	require.Len(t, call.Results, 2)

	// The caller's own tuple return is fed by the re-packed call results
	ret = entry.Body.Terminator()
	require.Len(t, ret.Operands, 2)
	assert.Same(t, call.Results[0], ret.Operands[0])
	assert.Same(t, call.Results[1], ret.Operands[1])
}

func TestAdjustUnpacksOpaqueTuple(t *testing.T) {
	m := parse(t, `module @m {
  func public @f(%t: tuple<int, float>) -> tuple<int, float> {
    func.return(%t)
  }
}`)
	require.NoError(t, Adjust(m))

	fn := m.Function("f")
	require.Len(t, fn.Results, 2)
	ops := fn.Body.Ops
	require.Len(t, ops, 3)
	assert.Equal(t, ir.OpTupleIndex, ops[0].Name)
	assert.Equal(t, ir.OpTupleIndex, ops[1].Name)
	index, _ := ops[1].IntAttr("index")
	assert.Equal(t, int64(1), index)
	assert.Equal(t, []*ir.Value{ops[0].Result(), ops[1].Result()}, ops[2].Operands)
}

func TestAdjustIsIdempotent(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"conventions", conventions},
		{"tuple of none", `module @m {
  func public @f() -> tuple<none> {
    %0 = const.none : none
    %1 = tuple.construct(%0) : tuple<none>
    func.return(%1)
  }
}`},
		{"tuple with a none element", `module @m {
  func public @f(%n: int) -> tuple<int, none> {
    %0 = func.call(%n) {callee = @g} : tuple<int, none>
    func.return(%0)
  }
  func private @g(%n: int) -> tuple<int, none> {
    %0 = const.none : none
    %1 = tuple.construct(%n, %0) : tuple<int, none>
    func.return(%1)
  }
}`},
		{"nested tuple beside none", `module @m {
  func public @f(%t: tuple<int, float>) -> tuple<tuple<int, float>, none> {
    %0 = const.none : none
    %1 = tuple.construct(%t, %0) : tuple<tuple<int, float>, none>
    func.return(%1)
  }
}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parse(t, tt.source)
			require.NoError(t, Adjust(m))
			once := ir.Print(m)

			require.NoError(t, Adjust(m))
			assert.Equal(t, once, ir.Print(m))
		})
	}
}

func TestAdjustDropsNoneTupleElements(t *testing.T) {
	m := parse(t, `module @m {
  func public @f(%n: int) -> tuple<int, none> {
    %0 = func.call(%n) {callee = @g} : tuple<int, none>
    func.return(%0)
  }
  func private @g(%n: int) -> tuple<int, none> {
    %0 = const.none : none
    %1 = tuple.construct(%n, %0) : tuple<int, none>
    func.return(%1)
  }
}`)
	require.NoError(t, Adjust(m))

	g := m.Function("g")
	assert.Equal(t, []ir.Type{ir.Int}, g.Results)
	assert.Equal(t, []*ir.Value{g.Params[0].Value}, g.Body.Terminator().Operands)

	f := m.Function("f")
	assert.Equal(t, []ir.Type{ir.Int}, f.Results)
	call := f.Body.Ops[0]
	require.Equal(t, ir.OpCall, call.Name)
	require.Len(t, call.Results, 1)
	assert.Equal(t, ir.OpConstNone, f.Body.Ops[1].Name, "the none element is rebuilt at the call site")
	assert.Same(t, call.Results[0], f.Body.Terminator().Operands[0])
}

func TestAdjustRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name: "missing bound",
			source: `module @m {
  func public @f(%x: tensor<*,unk> {bound = @nope}) {
    func.return()
  }
}`,
			want: "references undefined bound @nope",
		},
		{
			name: "undefined callee",
			source: `module @m {
  func public @f() {
    func.call() {callee = @g}
    func.return()
  }
}`,
			want: "call to undefined function @g",
		},
		{
			name: "incompatible bound",
			source: `module @m {
  func public @f(%x: int {bound = vtensor<[1],f32>}) {
    func.return()
  }
}`,
			want: "does not fit parameter %x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parse(t, tt.source)
			before := ir.Print(m)

			err := Adjust(m)
			require.Error(t, err)
			list := errors.AsList(err)
			require.Len(t, list, 1)
			assert.Equal(t, errors.KindMalformedInput, list[0].Kind)
			assert.Contains(t, list[0].Message, tt.want)
			assert.Equal(t, before, ir.Print(m), "module must be untouched on failure")
		})
	}
}
