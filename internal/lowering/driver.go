// Package lowering drives a globalized module to the backend contract by iterating local
// simplifications until the contract holds or the iteration budget runs out.
package lowering

import (
	"context"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"strata/internal/catalog"
	"strata/internal/contract"
	"strata/internal/errors"
	"strata/internal/ir"
	"strata/internal/valuesem"
)

var log = commonlog.GetLogger("strata.lowering")

// DefaultMaxIterations bounds the number of simplification rounds
const DefaultMaxIterations = 10

// Decomposer rewrites operations into more primitive ones, skipping legal operations
type Decomposer interface {
	contract.DecompositionCatalog
	Decompose(fn *ir.Function, legal map[string]bool) bool
}

// VariantReducer rewrites operation variants into their canonical value form
type VariantReducer interface {
	Reduce(fn *ir.Function) bool
}

// Refiner tightens the static types of values in a function
type Refiner interface {
	Refine(fn *ir.Function) bool
}

// ShapeSimplifier folds shape plumbing across the module
type ShapeSimplifier interface {
	Simplify(m *ir.Module) bool
}

// Options configure a lowering run. Nil collaborators fall back to the default catalog.
type Options struct {
	MaxIterations   int
	Decompose       bool
	LegalOps        []string
	Decomposer      Decomposer
	VariantReducer  VariantReducer
	Refiner         Refiner
	ShapeSimplifier ShapeSimplifier
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{MaxIterations: DefaultMaxIterations, Decompose: true}
}

// Phase of the driver state machine
type Phase int

const (
	Running Phase = iota
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Result is the final state of a lowering run
type Result struct {
	Phase      Phase
	Iterations int
	Report     *contract.Report
}

type driver struct {
	opts  Options
	legal map[string]bool

	phase       Phase
	iteration   int
	unsatisfied bool
}

// Lower runs the convergence loop on a globalized module. On ConvergenceFailure the
// module reflects the last iteration and the returned error lists every unmet check.
func Lower(ctx context.Context, m *ir.Module, opts Options) (*Result, error) {
	if len(m.Objects) > 0 || len(m.Classes) > 0 {
		return nil, errors.NewDiagnostic(errors.KindMalformedInput, "module must be globalized before lowering").
			At(m.Loc).
			WithHelp("run globalize-object-graph first").
			Build()
	}

	d := newDriver(opts)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("lowering abandoned after %d iterations: %w", d.iteration, err)
		}
		report, err := d.step(ctx, m)
		if err != nil {
			return nil, err
		}
		switch d.phase {
		case Succeeded:
			return &Result{Phase: d.phase, Iterations: d.iteration, Report: report}, nil
		case Failed:
			return &Result{Phase: d.phase, Iterations: d.iteration, Report: report}, d.failure(report)
		}
	}
}

func newDriver(opts Options) *driver {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Decomposer == nil {
		opts.Decomposer = catalog.NewDecomposer()
	}
	if opts.VariantReducer == nil {
		opts.VariantReducer = catalog.NewVariantReducer()
	}
	if opts.Refiner == nil {
		opts.Refiner = catalog.NewRefiner()
	}
	if opts.ShapeSimplifier == nil {
		opts.ShapeSimplifier = catalog.NewShapeSimplifier()
	}
	legal := make(map[string]bool, len(opts.LegalOps))
	for _, op := range opts.LegalOps {
		legal[op] = true
	}
	return &driver{opts: opts, legal: legal, phase: Running, unsatisfied: true}
}

// step runs one iteration and advances the state machine
func (d *driver) step(ctx context.Context, m *ir.Module) (*contract.Report, error) {
	d.iteration++

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range m.Functions {
		fn := fn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d.simplifyFunction(fn)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("lowering iteration %d: %w", d.iteration, err)
	}

	d.opts.ShapeSimplifier.Simplify(m)
	InlineGlobalSlots(m)

	report := contract.Verify(m, d.verifyOptions())
	d.unsatisfied = !report.Satisfied()
	log.Infof("iteration %d: %d unmet backend contract checks", d.iteration, report.UnmetCount())

	switch {
	case !d.unsatisfied:
		d.phase = Succeeded
	case d.iteration >= d.opts.MaxIterations:
		d.phase = Failed
	}
	return report, nil
}

// simplifyFunction runs the function-scoped steps in their fixed order
func (d *driver) simplifyFunction(fn *ir.Function) {
	changed := false
	if d.opts.Decompose {
		changed = d.opts.Decomposer.Decompose(fn, d.legal) || changed
	}
	changed = d.opts.VariantReducer.Reduce(fn) || changed
	changed = valuesem.Maximize(fn) || changed
	changed = d.opts.Refiner.Refine(fn) || changed
	if changed {
		log.Debugf("iteration %d: simplified @%s", d.iteration, fn.Name)
	}
}

func (d *driver) verifyOptions() contract.Options {
	return contract.Options{
		LegalOps:               d.opts.LegalOps,
		AssumeNoDecompositions: !d.opts.Decompose,
		Catalog:                d.opts.Decomposer,
	}
}

func (d *driver) failure(report *contract.Report) error {
	var unmet []string
	for _, c := range report.Checks {
		if !c.Satisfied {
			unmet = append(unmet, c.Name)
		}
	}
	list := errors.List{
		errors.NewDiagnostic(errors.KindConvergenceFailure,
			fmt.Sprintf("module did not satisfy the backend contract after %d iterations", d.iteration)).
			WithNote(fmt.Sprintf("unmet checks: %s", strings.Join(unmet, ", "))).
			WithHelp("raise max-iterations, add legal ops, or extend the decomposition catalog").
			Build(),
	}
	list.Add(report.Diagnostics(errors.KindConvergenceFailure)...)
	return list
}
