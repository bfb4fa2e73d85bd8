package catalog

import (
	"strata/internal/ir"
)

// ShapeSimplifier folds shape plumbing left behind by refinement and publishes refined
// types on the signatures of public entry points
type ShapeSimplifier struct{}

// NewShapeSimplifier returns the default shape-calculation simplifier
func NewShapeSimplifier() *ShapeSimplifier {
	return &ShapeSimplifier{}
}

// Simplify runs over the whole module and reports whether anything changed
func (s *ShapeSimplifier) Simplify(m *ir.Module) bool {
	called := calledFunctions(m)
	changed := false
	for _, fn := range m.Functions {
		changed = foldStaticInfoCasts(fn) || changed
		changed = foldTupleIndex(fn) || changed
		if fn.IsPublic() && !called[fn.Name] {
			changed = refineReturn(fn) || changed
		}
		changed = fn.Body.EraseDeadOps() || changed
	}
	return changed
}

func calledFunctions(m *ir.Module) map[string]bool {
	called := make(map[string]bool)
	for _, fn := range m.Functions {
		for _, op := range fn.Body.Ops {
			if op.Name == ir.OpCall {
				called[op.SymbolAttr("callee")] = true
			}
		}
	}
	return called
}

// foldStaticInfoCasts drops casts whose operand already carries at least the cast's
// information
func foldStaticInfoCasts(fn *ir.Function) bool {
	changed := false
	for _, op := range append([]*ir.Operation(nil), fn.Body.Ops...) {
		if op.Name != ir.OpStaticInfoCast || len(op.Operands) != 1 || len(op.Results) != 1 {
			continue
		}
		from, ok1 := op.Operands[0].Type.(*ir.TensorType)
		to, ok2 := op.Result().Type.(*ir.TensorType)
		if !ok1 || !ok2 || from.ValueSemantics != to.ValueSemantics {
			continue
		}
		if !ir.SameType(from, to) && !from.IsMoreRefinedThan(to) {
			continue
		}
		fn.Body.ReplaceAllUses(op.Result(), op.Operands[0])
		fn.Body.Erase(op)
		changed = true
	}
	return changed
}

// foldTupleIndex forwards tuple.index(tuple.construct(...)) to the constructed element
func foldTupleIndex(fn *ir.Function) bool {
	changed := false
	for _, op := range append([]*ir.Operation(nil), fn.Body.Ops...) {
		if op.Name != ir.OpTupleIndex || len(op.Operands) != 1 {
			continue
		}
		def := op.Operands[0].Def
		idx, ok := op.IntAttr("index")
		if !ok || def == nil || def.Name != ir.OpTupleConstruct || idx < 0 || int(idx) >= len(def.Operands) {
			continue
		}
		fn.Body.ReplaceAllUses(op.Result(), def.Operands[idx])
		fn.Body.Erase(op)
		changed = true
	}
	return changed
}

// refineReturn makes an entry point return value tensors with the most refined type
// known at the return. Non-value results are snapshotted with a copy so that later
// coalescing can forward their contents.
func refineReturn(fn *ir.Function) bool {
	ret := fn.Body.Terminator()
	if ret == nil || len(ret.Operands) != len(fn.Results) {
		return false
	}
	changed := false
	for i, v := range ret.Operands {
		tt, ok := v.Type.(*ir.TensorType)
		if !ok {
			continue
		}
		if !tt.ValueSemantics {
			snapshot := fn.NewOp(ir.OpCopyToVTensor, []*ir.Value{v}, []ir.Type{tt.WithValueSemantics(true)}, nil)
			snapshot.Loc = ret.Loc
			fn.Body.InsertBefore(ret, snapshot)
			ret.Operands[i] = snapshot.Result()
			v = snapshot.Result()
			changed = true
		}
		if declared, ok := fn.Results[i].(*ir.TensorType); ok && !ir.SameType(declared, v.Type) && atLeastAsRefined(v.Type.(*ir.TensorType), declared) {
			fn.Results[i] = v.Type
			changed = true
		}
	}
	return changed
}

// atLeastAsRefined compares shape and element type information only
func atLeastAsRefined(t, than *ir.TensorType) bool {
	t = t.WithValueSemantics(than.ValueSemantics)
	return ir.SameType(t, than) || t.IsMoreRefinedThan(than)
}
