package passes

import (
	"context"
	"fmt"

	"strata/internal/abi"
	"strata/internal/catalog"
	"strata/internal/contract"
	"strata/internal/errors"
	"strata/internal/globalize"
	"strata/internal/ir"
	"strata/internal/lowering"
	"strata/internal/valuesem"
)

// Names of the built-in passes
const (
	PrepareForGlobalize     = "prepare-for-globalize-object-graph"
	GlobalizeObjectGraph    = "globalize-object-graph"
	AdjustCallingConvention = "adjust-calling-conventions"
	MaximizeValueSemantics  = "maximize-value-semantics"
	InlineGlobalSlots       = "inline-global-slots"
	LowerToBackendContract  = "lower-to-backend-contract"
	VerifyBackendContract   = "verify-backend-contract"
)

// DefaultPipeline takes an object-graph module all the way to the backend contract
const DefaultPipeline = PrepareForGlobalize + "," + GlobalizeObjectGraph + "," +
	AdjustCallingConvention + "," + LowerToBackendContract

// funcPass adapts a plain function to the Pass interface
type funcPass struct {
	name        string
	description string
	run         func(ctx context.Context, m *ir.Module) error
}

func (p *funcPass) Name() string        { return p.name }
func (p *funcPass) Description() string { return p.description }

func (p *funcPass) Run(ctx context.Context, m *ir.Module) error {
	return p.run(ctx, m)
}

func simple(name, description string, run func(m *ir.Module) error) *Registration {
	return &Registration{
		Name:        name,
		Description: description,
		Factory: func(Options) (Pass, error) {
			return &funcPass{name: name, description: description, run: func(_ context.Context, m *ir.Module) error {
				return run(m)
			}}, nil
		},
	}
}

func init() {
	Register(simple(PrepareForGlobalize,
		"Resolve method calls on statically known instances to direct calls",
		globalize.Prepare))
	Register(simple(GlobalizeObjectGraph,
		"Flatten the instance tree into global cells and specialize functions per instance",
		globalize.Globalize))
	Register(simple(AdjustCallingConvention,
		"Merge parameter type bounds and drop none or expand tuple results",
		abi.Adjust))
	Register(simple(MaximizeValueSemantics,
		"Rewrite aliasing tensor code to value semantics where it is provably safe",
		func(m *ir.Module) error {
			for _, fn := range m.Functions {
				valuesem.Maximize(fn)
			}
			return nil
		}))
	Register(simple(InlineGlobalSlots,
		"Replace reads of never-written cells by their initial value",
		func(m *ir.Module) error {
			lowering.InlineGlobalSlots(m)
			return nil
		}))
	Register(&Registration{
		Name:        LowerToBackendContract,
		Description: "Iterate simplifications until the module satisfies the backend contract",
		Options:     []string{"max-iterations", "decompose", "legal-ops"},
		Factory:     newLowerPass,
	})
	Register(&Registration{
		Name:        VerifyBackendContract,
		Description: "Fail unless the module satisfies the backend contract",
		Options:     []string{"assume-no-decompositions", "legal-ops"},
		Factory:     newVerifyPass,
	})
}

// LowerPass runs the convergence driver and keeps the result of its last run
type LowerPass struct {
	Options lowering.Options
	Result  *lowering.Result
}

func newLowerPass(opts Options) (Pass, error) {
	lo := lowering.DefaultOptions()
	var err error
	if lo.MaxIterations, err = opts.Int("max-iterations", lo.MaxIterations); err != nil {
		return nil, err
	}
	if lo.MaxIterations < 1 {
		return nil, errors.NewDiagnostic(errors.KindMalformedInput,
			fmt.Sprintf("pass %s: max-iterations must be at least 1, got %d", LowerToBackendContract, lo.MaxIterations)).
			WithHelp(fmt.Sprintf("omit the option to use the default of %d", lowering.DefaultMaxIterations)).
			Build()
	}
	if lo.Decompose, err = opts.Bool("decompose", lo.Decompose); err != nil {
		return nil, err
	}
	lo.LegalOps = opts.List("legal-ops")
	return &LowerPass{Options: lo}, nil
}

func (p *LowerPass) Name() string { return LowerToBackendContract }

func (p *LowerPass) Description() string {
	return Lookup(LowerToBackendContract).Description
}

func (p *LowerPass) Run(ctx context.Context, m *ir.Module) error {
	result, err := lowering.Lower(ctx, m, p.Options)
	p.Result = result
	return err
}

// VerifyPass checks the backend contract without changing the module
type VerifyPass struct {
	Options contract.Options
	Report  *contract.Report
}

func newVerifyPass(opts Options) (Pass, error) {
	assume, err := opts.Bool("assume-no-decompositions", false)
	if err != nil {
		return nil, err
	}
	return &VerifyPass{Options: contract.Options{
		LegalOps:               opts.List("legal-ops"),
		AssumeNoDecompositions: assume,
		Catalog:                catalog.NewDecomposer(),
	}}, nil
}

func (p *VerifyPass) Name() string { return VerifyBackendContract }

func (p *VerifyPass) Description() string {
	return Lookup(VerifyBackendContract).Description
}

func (p *VerifyPass) Run(_ context.Context, m *ir.Module) error {
	p.Report = contract.Verify(m, p.Options)
	return p.Report.Err()
}
