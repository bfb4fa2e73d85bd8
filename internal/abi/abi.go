// Package abi adjusts function signatures to the calling convention the backend
// expects: merged parameter bounds, no none results and no tuple results.
package abi

import (
	"fmt"

	"github.com/tliron/commonlog"

	"strata/internal/errors"
	"strata/internal/ir"
)

var log = commonlog.GetLogger("strata.abi")

type resultPlan int

const (
	keepResults resultPlan = iota
	dropNone
	expandTuple
)

// Adjust rewrites every function of the module. Input errors are reported before anything
// is rewritten, so on failure the module is untouched. Running it twice is a no-op.
func Adjust(m *ir.Module) error {
	if err := validate(m); err != nil {
		return err
	}

	merged := 0
	for _, fn := range m.Functions {
		merged += mergeBounds(m, fn)
	}

	plans := make(map[string]resultPlan)
	for _, fn := range m.Functions {
		if p := planResults(fn); p != keepResults {
			plans[fn.Name] = p
		}
	}
	for _, fn := range m.Functions {
		rewriteCallSites(m, fn, plans)
	}
	for _, fn := range m.Functions {
		switch plans[fn.Name] {
		case dropNone:
			dropNoneResult(fn)
		case expandTuple:
			expandTupleResult(fn)
		}
	}

	log.Debugf("merged %d bounds, rewrote %d signatures", merged, len(plans))
	return nil
}

func validate(m *ir.Module) error {
	var errs errors.List
	names := make([]string, len(m.Functions))
	for i, fn := range m.Functions {
		names[i] = fn.Name
	}

	for _, fn := range m.Functions {
		for i, p := range fn.Params {
			bound := p.Bound
			if p.BoundRef != "" {
				b, ok := m.TypeBounds[p.BoundRef]
				if !ok {
					errs.Add(errors.MissingBound(p.BoundRef, fn.Name, paramName(p, i)))
					continue
				}
				bound = b
			}
			if bound != nil && !compatible(p.Type, bound) {
				errs.Add(errors.NewDiagnostic(errors.KindMalformedInput,
					fmt.Sprintf("bound %s does not fit parameter %%%s of type %s", bound, paramName(p, i), p.Type)).
					InFunction(fn.Name).At(fn.Loc).Build())
			}
		}

		for _, op := range fn.Body.Ops {
			switch op.Name {
			case ir.OpCall:
				callee := op.SymbolAttr("callee")
				target := m.Function(callee)
				if target == nil {
					errs.Add(errors.UndefinedFunction(callee, op, names))
					continue
				}
				if len(op.Results) != len(target.Results) {
					errs.Add(errors.NewDiagnostic(errors.KindMalformedInput,
						fmt.Sprintf("call to @%s expects %d results, callee returns %d", callee, len(op.Results), len(target.Results))).
						ForOp(op).Build())
				}
			case ir.OpReturn:
				if len(op.Operands) != len(fn.Results) {
					errs.Add(errors.NewDiagnostic(errors.KindMalformedInput,
						fmt.Sprintf("return of %d values from @%s, which declares %d results", len(op.Operands), fn.Name, len(fn.Results))).
						ForOp(op).Build())
				}
			}
		}
	}
	return errs.Err()
}

// compatible reports whether a bound may replace a parameter type: tensors accept any
// tensor bound, other types only themselves
func compatible(param, bound ir.Type) bool {
	_, pt := param.(*ir.TensorType)
	_, bt := bound.(*ir.TensorType)
	if pt || bt {
		return pt && bt
	}
	return ir.SameType(param, bound)
}

// mergeBounds folds type-bound annotations into parameter types
func mergeBounds(m *ir.Module, fn *ir.Function) int {
	merged := 0
	var entry []*ir.Operation
	for _, p := range fn.Params {
		bound := p.Bound
		if p.BoundRef != "" {
			bound = m.TypeBounds[p.BoundRef]
		}
		p.Bound = nil
		p.BoundRef = ""
		if bound == nil {
			continue
		}
		merged++

		old, isTensor := p.Type.(*ir.TensorType)
		bt, _ := bound.(*ir.TensorType)
		if !isTensor || bt == nil {
			continue
		}
		p.Type = bt
		p.Value.Type = bt
		if old.ValueSemantics || !bt.ValueSemantics {
			continue
		}

		// Uses inside the body keep seeing a non-value tensor
		copyOp := fn.NewOp(ir.OpCopyToTensor, []*ir.Value{p.Value}, []ir.Type{bt.WithValueSemantics(false)}, nil)
		copyOp.Loc = fn.Loc
		fn.Body.ReplaceAllUses(p.Value, copyOp.Result())
		entry = append(entry, copyOp)
	}
	if len(entry) > 0 {
		fn.Body.Ops = append(entry, fn.Body.Ops...)
		for _, op := range entry {
			op.Block = fn.Body
		}
	}
	return merged
}

func planResults(fn *ir.Function) resultPlan {
	if len(fn.Results) != 1 {
		return keepResults
	}
	switch t := fn.Results[0].(type) {
	case *ir.NoneType:
		return dropNone
	case *ir.TupleType:
		// none elements are dropped; a lone remaining tuple would unpack again on the next run
		if kept := valueElements(t); len(kept) == 1 {
			if _, nested := t.Elements[kept[0]].(*ir.TupleType); nested {
				return keepResults
			}
		}
		return expandTuple
	}
	return keepResults
}

// rewriteCallSites adapts calls in fn to the new signatures of their callees
func rewriteCallSites(m *ir.Module, fn *ir.Function, plans map[string]resultPlan) {
	ops := append([]*ir.Operation(nil), fn.Body.Ops...)
	for _, op := range ops {
		if op.Name != ir.OpCall {
			continue
		}
		callee := m.Function(op.SymbolAttr("callee"))
		switch plans[callee.Name] {
		case dropNone:
			old := op.Result()
			op.Results = nil
			none := fn.ConstNone()
			none.Loc = op.Loc
			fn.Body.InsertAfter(op, none)
			fn.Body.ReplaceAllUses(old, none.Result())

		case expandTuple:
			old := op.Result()
			tuple := callee.Results[0].(*ir.TupleType)
			op.Results = nil
			elements := make([]*ir.Value, len(tuple.Elements))
			var inserted []*ir.Operation
			for i, t := range tuple.Elements {
				if _, none := t.(*ir.NoneType); none {
					c := fn.ConstNone()
					c.Loc = op.Loc
					inserted = append(inserted, c)
					elements[i] = c.Result()
					continue
				}
				v := fn.NewValue(t)
				v.Def = op
				op.Results = append(op.Results, v)
				elements[i] = v
			}
			repack := fn.NewOp(ir.OpTupleConstruct, elements, []ir.Type{tuple}, nil)
			repack.Loc = op.Loc
			fn.Body.InsertAfter(op, append(inserted, repack)...)
			fn.Body.ReplaceAllUses(old, repack.Result())
		}
	}
}

func dropNoneResult(fn *ir.Function) {
	for _, op := range fn.Body.Ops {
		if op.Name == ir.OpReturn {
			op.Operands = nil
		}
	}
	fn.Results = nil
}

func expandTupleResult(fn *ir.Function) {
	tuple := fn.Results[0].(*ir.TupleType)
	kept := valueElements(tuple)
	ops := append([]*ir.Operation(nil), fn.Body.Ops...)
	for _, op := range ops {
		if op.Name != ir.OpReturn {
			continue
		}
		value := op.Operands[0]
		if def := value.Def; def != nil && def.Name == ir.OpTupleConstruct && len(def.Operands) == len(tuple.Elements) {
			operands := make([]*ir.Value, len(kept))
			for j, i := range kept {
				operands[j] = def.Operands[i]
			}
			op.Operands = operands
			continue
		}
		elements := make([]*ir.Value, len(kept))
		for j, i := range kept {
			index := fn.NewOp(ir.OpTupleIndex, []*ir.Value{value}, []ir.Type{tuple.Elements[i]}, map[string]ir.Attribute{"index": int64(i)})
			index.Loc = op.Loc
			fn.Body.InsertBefore(op, index)
			elements[j] = index.Result()
		}
		op.Operands = elements
	}
	results := make([]ir.Type, len(kept))
	for j, i := range kept {
		results[j] = tuple.Elements[i]
	}
	fn.Results = results
}

// valueElements lists the positions of tuple elements that are not none
func valueElements(t *ir.TupleType) []int {
	var kept []int
	for i, e := range t.Elements {
		if _, none := e.(*ir.NoneType); !none {
			kept = append(kept, i)
		}
	}
	return kept
}

func paramName(p *ir.Parameter, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("arg%d", i)
}
