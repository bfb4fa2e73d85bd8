package passes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/errors"
	"strata/internal/ir"
	"strata/internal/lowering"
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

func TestParsePipeline(t *testing.T) {
	specs, err := ParsePipeline("a, b{k=v k2=x,y} ,c{}")
	require.NoError(t, err)
	require.Len(t, specs, 3)

	assert.Equal(t, "a", specs[0].Name)
	assert.Nil(t, specs[0].Options)
	assert.Equal(t, "b", specs[1].Name)
	assert.Equal(t, map[string]string{"k": "v", "k2": "x,y"}, specs[1].Options)
	assert.Equal(t, "c", specs[2].Name)
	assert.Empty(t, specs[2].Options)

	assert.Equal(t, "b{k=v k2=x,y}", specs[1].String())
}

func TestParsePipelineErrors(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
	}{
		{"empty", ""},
		{"unterminated options", "a{k=v"},
		{"unmatched brace", "a}"},
		{"nested braces", "a{b{k=v}}"},
		{"missing name", "a,{k=v}"},
		{"trailing comma", "a,"},
		{"option without value", "a{k}"},
		{"text after options", "a{k=v}x"},
		{"duplicate option", "a{k=1 k=2}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePipeline(tt.pipeline)
			list := errors.AsList(err)
			require.Len(t, list, 1)
			assert.Equal(t, errors.KindInvalidConfiguration, list[0].Kind)
			assert.Equal(t, errors.ErrorInvalidConfiguration, list[0].Code)
		})
	}
}

func TestRegistry(t *testing.T) {
	names := Names()
	for _, name := range []string{
		PrepareForGlobalize, GlobalizeObjectGraph, AdjustCallingConvention,
		MaximizeValueSemantics, InlineGlobalSlots, LowerToBackendContract, VerifyBackendContract,
	} {
		assert.Contains(t, names, name)
		require.NotNil(t, Lookup(name))
		assert.NotEmpty(t, Lookup(name).Description)
	}
	assert.Nil(t, Lookup("canonicalize"))

	assert.Panics(t, func() {
		Register(&Registration{Name: InlineGlobalSlots})
	})
}

func TestBuildRejectsBadPasses(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		message  string
	}{
		{"unknown pass", "globalize-object-graph,canonicalize", "unknown pass canonicalize"},
		{"unknown option", "lower-to-backend-contract{depth=2}", "has no option depth"},
		{"option on a plain pass", "inline-global-slots{x=1}", "has no option x"},
		{"bad integer", "lower-to-backend-contract{max-iterations=ten}", "not an integer"},
		{"bad boolean", "verify-backend-contract{assume-no-decompositions=maybe}", "not a boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.pipeline)
			list := errors.AsList(err)
			require.Len(t, list, 1)
			assert.Equal(t, errors.KindInvalidConfiguration, list[0].Kind)
			assert.Contains(t, list[0].Message, tt.message)
		})
	}
}

func TestBuildRejectsNonPositiveIterationBound(t *testing.T) {
	for _, bound := range []string{"0", "-3"} {
		t.Run(bound, func(t *testing.T) {
			_, err := Build("lower-to-backend-contract{max-iterations=" + bound + "}")
			list := errors.AsList(err)
			require.Len(t, list, 1)
			assert.Equal(t, errors.KindMalformedInput, list[0].Kind)
			assert.Contains(t, list[0].Message, "max-iterations must be at least 1, got "+bound)
		})
	}
}

func TestBuildLowerOptions(t *testing.T) {
	p, err := Build("lower-to-backend-contract{max-iterations=3 decompose=false legal-ops=aten.mm,aten.t}")
	require.NoError(t, err)
	require.Len(t, p.Passes(), 1)

	lower, ok := p.Passes()[0].(*LowerPass)
	require.True(t, ok)
	assert.Equal(t, 3, lower.Options.MaxIterations)
	assert.False(t, lower.Options.Decompose)
	assert.Equal(t, []string{"aten.mm", "aten.t"}, lower.Options.LegalOps)
	assert.Equal(t, "lower-to-backend-contract{decompose=false legal-ops=aten.mm,aten.t max-iterations=3}", p.String())

	p, err = Build(LowerToBackendContract)
	require.NoError(t, err)
	assert.Equal(t, lowering.DefaultOptions(), p.Passes()[0].(*LowerPass).Options)
}

const model = `module @model {
  bound @input = vtensor<[2,3],f32>
  class @Linear {
    slot weight : tensor<[4,3],f32>
  }
  class @Model {
    slot fc : !obj<"Linear">
    method forward = @Model.forward
  }
  init {
    %0 = tensor.literal {value = [0.5]} : tensor<[4,3],f32>
    %1 = obj.new(%0) {class = @Linear, slots = ["weight"]} : !obj<"Linear">
    %2 = obj.new(%1) {class = @Model, slots = ["fc"]} : !obj<"Model">
  }
  func private @Model.forward(%self: !obj<"Model">, %x: tensor<*,unk> {bound = @input}) -> tensor<*,unk> {
    %0 = obj.get_slot(%self) {name = "fc"} : !obj<"Linear">
    %1 = obj.get_slot(%0) {name = "weight"} : tensor<[4,3],f32>
    %2 = aten.linear(%x, %1) : tensor<*,unk>
    func.return(%2)
  }
}`

func TestDefaultPipeline(t *testing.T) {
	m := parse(t, model)
	p, err := Build(DefaultPipeline)
	require.NoError(t, err)
	require.Len(t, p.Passes(), 4)

	require.NoError(t, p.Run(context.Background(), m), "module after the pipeline:\n%s", ir.Print(m))

	assert.Empty(t, m.Classes)
	assert.Empty(t, m.Objects)
	assert.Empty(t, m.Globals)

	fn := m.Function("forward")
	require.NotNil(t, fn)
	assert.Equal(t, []string{"vtensor.literal", "aten.t", "aten.mm", "func.return"}, opNames(fn))
	require.Len(t, fn.Params, 1)
	assert.Equal(t, "vtensor<[2,3],f32>", fn.Params[0].Type.String())
	assert.Equal(t, "vtensor<[2,4],f32>", fn.Results[0].String())

	lower := p.Passes()[3].(*LowerPass)
	require.NotNil(t, lower.Result)
	assert.Equal(t, lowering.Succeeded, lower.Result.Phase)
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	m := parse(t, `module @m {
  func public @f(%x: tensor<*,f32>) -> tensor<*,f32> {
    %0 = aten.relu_(%x) : tensor<*,f32>
    func.return(%0)
  }
}`)
	p, err := Build("verify-backend-contract,inline-global-slots")
	require.NoError(t, err)

	err = p.Run(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), VerifyBackendContract)

	list := errors.AsList(err)
	assert.True(t, list.HasKind(errors.KindContractViolation))

	verify := p.Passes()[0].(*VerifyPass)
	require.NotNil(t, verify.Report)
	assert.False(t, verify.Report.Satisfied())
}

func TestMaximizeValueSemanticsPass(t *testing.T) {
	m := parse(t, `module @m {
  func public @f(%x: tensor<[2],f32>) -> tensor<[2],f32> {
    %0 = aten.tanh(%x) : tensor<[2],f32>
    func.return(%0)
  }
}`)
	p, err := Build(MaximizeValueSemantics)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), m))
	assert.Equal(t, []string{"tensor.copy_to_vtensor", "aten.tanh", "tensor.copy_to_tensor", "func.return"}, opNames(m.Functions[0]))
}

func TestPipelineHonorsCancellation(t *testing.T) {
	m := parse(t, model)
	p, err := Build(DefaultPipeline)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Run(ctx, m), context.Canceled)
	assert.NotEmpty(t, m.Classes, "no pass ran")
}
