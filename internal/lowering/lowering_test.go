package lowering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/contract"
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

func opNames(fn *ir.Function) []string {
	names := make([]string, len(fn.Body.Ops))
	for i, op := range fn.Body.Ops {
		names[i] = op.Name
	}
	return names
}

func init() {
	ir.RegisterOp(&ir.OpInfo{Name: "test.slow", Pure: true, ValueSemantics: true, ViewOf: -1})
	ir.RegisterOp(&ir.OpInfo{Name: "test.fast", Pure: true, ValueSemantics: true, ViewOf: -1})
}

// stepDecomposer turns one test.slow into test.fast per call, so the number of unmet
// offenders shrinks by one each iteration
type stepDecomposer struct{}

func (stepDecomposer) CanDecompose(op string) bool { return op == "test.slow" }

func (stepDecomposer) Decompose(fn *ir.Function, legal map[string]bool) bool {
	for _, op := range fn.Body.Ops {
		if op.Name == "test.slow" && !legal[op.Name] {
			op.Name = "test.fast"
			return true
		}
	}
	return false
}

const slow = `module @m {
  func public @f(%x: vtensor<[2],f32>) -> vtensor<[2],f32> {
    %0 = test.slow(%x) : vtensor<[2],f32>
    %1 = test.slow(%0) : vtensor<[2],f32>
    %2 = test.slow(%1) : vtensor<[2],f32>
    func.return(%2)
  }
}`

func TestLowerConvergesWithinBudget(t *testing.T) {
	m := parse(t, slow)
	opts := DefaultOptions()
	opts.Decomposer = stepDecomposer{}

	result, err := Lower(context.Background(), m, opts)
	require.NoError(t, err)
	assert.Equal(t, Succeeded, result.Phase)
	assert.Equal(t, 3, result.Iterations)
	assert.True(t, result.Report.Satisfied())
	assert.NotContains(t, opNames(m.Functions[0]), "test.slow")
}

func TestLowerFailsExactlyAtBound(t *testing.T) {
	m := parse(t, slow)
	opts := DefaultOptions()
	opts.Decomposer = stepDecomposer{}
	opts.MaxIterations = 2

	result, err := Lower(context.Background(), m, opts)
	require.Error(t, err)
	assert.Equal(t, Failed, result.Phase)
	assert.Equal(t, 2, result.Iterations)

	list := errors.AsList(err)
	require.Len(t, list, 2, "a summary plus one diagnostic per unmet check")
	for _, d := range list {
		assert.Equal(t, errors.KindConvergenceFailure, d.Kind)
	}
	assert.Contains(t, list[0].Message, "after 2 iterations")
	assert.Contains(t, list[0].Notes[0], contract.CheckLegalOps)
	assert.Len(t, list[1].Notes, 1, "one test.slow is left")

	// No rollback: the module keeps the progress of the last iteration
	assert.Equal(t, []string{"test.fast", "test.fast", "test.slow", "func.return"}, opNames(m.Functions[0]))
}

func TestLowerLegalOpsAreKept(t *testing.T) {
	m := parse(t, slow)
	opts := DefaultOptions()
	opts.Decomposer = stepDecomposer{}
	opts.LegalOps = []string{"test.slow"}

	result, err := Lower(context.Background(), m, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, []string{"test.slow", "test.slow", "test.slow", "func.return"}, opNames(m.Functions[0]))
}

const network = `module @net {
  init {
    %0 = tensor.literal {value = [1.0]} : tensor<[4,3],f32>
  }
  global @w : tensor<[4,3],f32> = %0
  func public @forward(%x: vtensor<[2,3],f32>) -> tensor<*,unk> {
    %0 = tensor.copy_to_tensor(%x) : tensor<[2,3],f32>
    %1 = global.get {global = @w} : tensor<[4,3],f32>
    %2 = aten.linear(%0, %1) : tensor<*,unk>
    %3 = aten.relu_(%2) : tensor<*,unk>
    func.return(%3)
  }
}`

func TestLowerWithDefaultCatalog(t *testing.T) {
	m := parse(t, network)

	result, err := Lower(context.Background(), m, DefaultOptions())
	require.NoError(t, err, "module after lowering:\n%s", ir.Print(m))
	assert.Equal(t, Succeeded, result.Phase)

	assert.Empty(t, m.Globals)
	assert.Empty(t, m.Init.Ops)

	fn := m.Function("forward")
	require.NotNil(t, fn)
	assert.Equal(t, []string{"vtensor.literal", "aten.t", "aten.mm", "aten.relu", "func.return"}, opNames(fn))
	require.Len(t, fn.Results, 1)
	assert.Equal(t, "vtensor<[2,4],f32>", fn.Results[0].String())
}

func TestLowerFailsOnMutableState(t *testing.T) {
	m := parse(t, `module @m {
  init {
    %0 = const.int {value = 0} : int
  }
  global mutable @count : int = %0
  func public @tick() -> int {
    %0 = global.get {global = @count} : int
    %1 = const.int {value = 1} : int
    global.set(%1) {global = @count}
    func.return(%0)
  }
}`)
	opts := DefaultOptions()
	opts.MaxIterations = 3

	result, err := Lower(context.Background(), m, opts)
	require.Error(t, err)
	assert.Equal(t, 3, result.Iterations)
	assert.True(t, errors.AsList(err).HasKind(errors.KindConvergenceFailure))

	check, _ := result.Report.Check(contract.CheckNoGlobalSlots)
	assert.False(t, check.Satisfied)
	assert.Len(t, check.Offenders, 3)
}

func TestLowerRejectsInstances(t *testing.T) {
	m := parse(t, `module @m {
  class @C {
  }
  init {
    %0 = obj.new {class = @C, slots = []} : !obj<"C">
  }
}`)
	_, err := Lower(context.Background(), m, DefaultOptions())
	list := errors.AsList(err)
	require.Len(t, list, 1)
	assert.Equal(t, errors.KindMalformedInput, list[0].Kind)
}

func TestLowerHonorsCancellation(t *testing.T) {
	m := parse(t, slow)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Lower(ctx, m, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInlineGlobalSlots(t *testing.T) {
	m := parse(t, `module @m {
  init {
    %0 = const.int {value = 7} : int
    %1 = const.str {value = "s"} : str
  }
  global @seven : int = %0
  global mutable @name : str = %1
  func public @f() -> (int, str) {
    %0 = global.get {global = @seven} : int
    %1 = global.get {global = @name} : str
    global.set(%1) {global = @name}
    func.return(%0, %1)
  }
}`)

	require.True(t, InlineGlobalSlots(m))
	require.Len(t, m.Globals, 1, "a written cell stays")
	assert.Equal(t, "name", m.Globals[0].Name)
	assert.Len(t, m.Init.Ops, 1, "the dead initializer is removed")

	fn := m.Function("f")
	assert.Equal(t, []string{"const.int", "global.get", "global.set", "func.return"}, opNames(fn))
	value, _ := fn.Body.Ops[0].IntAttr("value")
	assert.Equal(t, int64(7), value)

	assert.False(t, InlineGlobalSlots(m), "nothing left to inline")
}

func TestInlineGlobalSlotsKeepsMutatedTensors(t *testing.T) {
	m := parse(t, `module @m {
  init {
    %0 = tensor.literal {value = [0.0]} : tensor<[2],f32>
  }
  global @buf : tensor<[2],f32> = %0
  func public @f(%v: vtensor<[2],f32>) {
    %0 = global.get {global = @buf} : tensor<[2],f32>
    tensor.overwrite(%v, %0)
    func.return()
  }
}`)

	assert.False(t, InlineGlobalSlots(m))
	assert.Len(t, m.Globals, 1)
}

func TestInlineGlobalSlotsInlinesConstantLists(t *testing.T) {
	m := parse(t, `module @m {
  init {
    %0 = const.int {value = 1} : int
    %1 = const.int {value = 2} : int
    %2 = list.construct(%0, %1) : list<int>
    %3 = tensor.literal {value = [0.0]} : tensor<[2],f32>
    %4 = list.construct(%3) : list<tensor<[2],f32>>
  }
  global @dims : list<int> = %2
  global @bufs : list<tensor<[2],f32>> = %4
  func public @f() -> list<int> {
    %0 = global.get {global = @dims} : list<int>
    %1 = global.get {global = @bufs} : list<tensor<[2],f32>>
    func.return(%0)
  }
}`)

	require.True(t, InlineGlobalSlots(m))
	require.Len(t, m.Globals, 1, "lists holding aliasing tensors stay")
	assert.Equal(t, "bufs", m.Globals[0].Name)

	fn := m.Function("f")
	assert.Equal(t, []string{"const.int", "const.int", "list.construct", "global.get", "func.return"}, opNames(fn))
	assert.Same(t, fn.Body.Ops[2].Result(), fn.Body.Terminator().Operands[0])
}

func TestLowerConvergesWithConstantListCell(t *testing.T) {
	m := parse(t, `module @m {
  init {
    %0 = const.int {value = 3} : int
    %1 = list.construct(%0) : list<int>
  }
  global @sizes : list<int> = %1
  func public @f() -> list<int> {
    %0 = global.get {global = @sizes} : list<int>
    func.return(%0)
  }
}`)

	result, err := Lower(context.Background(), m, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, Succeeded, result.Phase)
	assert.Empty(t, m.Globals)
}
