// Package contract checks whether a module satisfies the backend contract: value-only
// tensor data flow, known tensor types, no global state and a restricted operation set.
package contract

import (
	"fmt"
	"strings"

	"strata/internal/errors"
	"strata/internal/ir"
)

// Names of the individual checks
const (
	CheckValueSemantics = "value-semantics"
	CheckKnownTypes     = "known-types"
	CheckNoGlobalSlots  = "no-global-slots"
	CheckLegalOps       = "legal-ops"
)

// DecompositionCatalog tells the verifier which operations could still be decomposed
type DecompositionCatalog interface {
	CanDecompose(op string) bool
}

// Options configure the legal-ops check
type Options struct {
	LegalOps               []string
	AssumeNoDecompositions bool
	Catalog                DecompositionCatalog
}

// Offender is one place violating a check
type Offender struct {
	Function string // empty for module-level entities
	OpID     int
	Loc      ir.Location
	What     string
}

func (o Offender) String() string {
	var where string
	switch {
	case o.Function != "" && o.OpID > 0:
		where = fmt.Sprintf("@%s op #%d: ", o.Function, o.OpID)
	case o.Function != "":
		where = fmt.Sprintf("@%s: ", o.Function)
	}
	if o.Loc.IsKnown() {
		return fmt.Sprintf("%s%s (%s)", where, o.What, o.Loc)
	}
	return where + o.What
}

// CheckResult is the outcome of one named check
type CheckResult struct {
	Name      string
	Satisfied bool
	Offenders []Offender
}

// Report is the outcome of all checks, in fixed order
type Report struct {
	Checks []CheckResult
}

// Satisfied reports whether every check holds
func (r *Report) Satisfied() bool {
	return r.UnmetCount() == 0
}

// UnmetCount returns the number of checks that do not hold
func (r *Report) UnmetCount() int {
	n := 0
	for _, c := range r.Checks {
		if !c.Satisfied {
			n++
		}
	}
	return n
}

// Check returns the result of a named check
func (r *Report) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Diagnostics renders every unmet check as one diagnostic of the given kind, listing its
// offenders as notes
func (r *Report) Diagnostics(kind errors.Kind) errors.List {
	var list errors.List
	for _, c := range r.Checks {
		if c.Satisfied {
			continue
		}
		b := errors.NewDiagnostic(kind, fmt.Sprintf("backend contract check '%s' is not satisfied (%d offenders)", c.Name, len(c.Offenders)))
		for i, o := range c.Offenders {
			if i == 0 {
				b = b.InFunction(o.Function).At(o.Loc)
			}
			b = b.WithNote(o.String())
		}
		list.Add(b.Build())
	}
	return list
}

// Err returns nil when the contract holds, otherwise the ContractViolation diagnostics
func (r *Report) Err() error {
	return r.Diagnostics(errors.KindContractViolation).Err()
}

// Verify evaluates every check without modifying the module
func Verify(m *ir.Module, opts Options) *Report {
	v := &verifier{m: m, opts: opts, legal: make(map[string]bool)}
	for _, op := range opts.LegalOps {
		v.legal[op] = true
	}
	return &Report{Checks: []CheckResult{
		result(CheckValueSemantics, v.valueSemantics()),
		result(CheckKnownTypes, v.knownTypes()),
		result(CheckNoGlobalSlots, v.noGlobalSlots()),
		result(CheckLegalOps, v.legalOps()),
	}}
}

func result(name string, offenders []Offender) CheckResult {
	return CheckResult{Name: name, Satisfied: len(offenders) == 0, Offenders: offenders}
}

type verifier struct {
	m     *ir.Module
	opts  Options
	legal map[string]bool
}

// eachType visits every type in function signatures, op operands/results and cells
func (v *verifier) eachType(visit func(t ir.Type, at Offender)) {
	for _, g := range v.m.Globals {
		visit(g.Type, Offender{Loc: g.Loc, What: fmt.Sprintf("global @%s", g.Name)})
	}
	for _, fn := range v.m.Functions {
		for _, p := range fn.Params {
			visit(p.Type, Offender{Function: fn.Name, Loc: fn.Loc, What: fmt.Sprintf("parameter %%%s", p.Name)})
		}
		for i, r := range fn.Results {
			visit(r, Offender{Function: fn.Name, Loc: fn.Loc, What: fmt.Sprintf("result #%d", i)})
		}
		for _, op := range fn.Body.Ops {
			seen := make(map[*ir.Value]bool)
			for _, val := range append(append([]*ir.Value(nil), op.Operands...), op.Results...) {
				if seen[val] {
					continue
				}
				seen[val] = true
				visit(val.Type, Offender{Function: fn.Name, OpID: op.ID, Loc: op.Loc, What: fmt.Sprintf("%s value %%%s", op.Name, val.DisplayName())})
			}
		}
	}
}

func (v *verifier) valueSemantics() []Offender {
	var offenders []Offender
	v.eachType(func(t ir.Type, at Offender) {
		nonValue := false
		ir.WalkTensorTypes(t, func(tt *ir.TensorType) {
			if !tt.ValueSemantics {
				nonValue = true
			}
		})
		if nonValue {
			at.What = fmt.Sprintf("%s has non-value type %s", at.What, t)
			offenders = append(offenders, at)
		}
	})
	return offenders
}

func (v *verifier) knownTypes() []Offender {
	var offenders []Offender
	v.eachType(func(t ir.Type, at Offender) {
		unknown := false
		ir.WalkTensorTypes(t, func(tt *ir.TensorType) {
			if !tt.HasKnownRankAndDType() {
				unknown = true
			}
		})
		if unknown {
			at.What = fmt.Sprintf("%s has incompletely known type %s", at.What, t)
			offenders = append(offenders, at)
		}
	})
	return offenders
}

func (v *verifier) noGlobalSlots() []Offender {
	var offenders []Offender
	for _, g := range v.m.Globals {
		offenders = append(offenders, Offender{Loc: g.Loc, What: fmt.Sprintf("global slot @%s", g.Name)})
	}
	for _, fn := range v.m.Functions {
		for _, op := range fn.Body.Ops {
			if op.Name == ir.OpGlobalGet || op.Name == ir.OpGlobalSet {
				offenders = append(offenders, Offender{Function: fn.Name, OpID: op.ID, Loc: op.Loc,
					What: fmt.Sprintf("%s of @%s", op.Name, op.SymbolAttr("global"))})
			}
		}
	}
	return offenders
}

var plumbing = map[string]bool{
	ir.OpObjectNew:     true,
	ir.OpGetSlot:       true,
	ir.OpSetSlot:       true,
	ir.OpCallMethod:    true,
	ir.OpCopyToTensor:  true,
	ir.OpCopyToVTensor: true,
	ir.OpOverwrite:     true,
}

func (v *verifier) legalOps() []Offender {
	var offenders []Offender
	for _, fn := range v.m.Functions {
		for _, op := range fn.Body.Ops {
			if reason := v.illegal(op); reason != "" {
				offenders = append(offenders, Offender{Function: fn.Name, OpID: op.ID, Loc: op.Loc,
					What: fmt.Sprintf("%s %s", op.Name, reason)})
			}
		}
	}
	return offenders
}

func (v *verifier) illegal(op *ir.Operation) string {
	if op.Name == ir.OpGlobalGet || op.Name == ir.OpGlobalSet {
		return "" // reported by no-global-slots
	}
	if v.legal[op.Name] {
		return ""
	}
	if plumbing[op.Name] {
		return "must not survive lowering"
	}
	info := ir.LookupOp(op.Name)
	switch {
	case info == nil:
		return "is not a registered operation"
	case info.IsInPlace():
		return "mutates an operand in place"
	case info.IsView():
		return "aliases its operand"
	case v.opts.AssumeNoDecompositions || v.opts.Catalog == nil:
		return ""
	case v.opts.Catalog.CanDecompose(op.Name):
		return "can still be decomposed"
	}
	return ""
}

// Summary renders a one-line-per-check overview
func (r *Report) Summary() string {
	lines := make([]string, len(r.Checks))
	for i, c := range r.Checks {
		status := "ok"
		if !c.Satisfied {
			status = fmt.Sprintf("%d offenders", len(c.Offenders))
		}
		lines[i] = fmt.Sprintf("%-16s %s", c.Name, status)
	}
	return strings.Join(lines, "\n")
}
