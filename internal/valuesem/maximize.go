package valuesem

import (
	"github.com/tliron/commonlog"

	"strata/internal/ir"
)

var log = commonlog.GetLogger("strata.valuesem")

// Maximize rewrites one function towards value semantics and reports whether anything
// changed. Ops the registry does not describe are left alone.
func Maximize(fn *ir.Function) bool {
	changed := rewriteLiterals(fn)
	changed = rewriteInPlace(fn) || changed
	changed = insertCopies(fn) || changed
	changed = coalesce(fn) || changed
	changed = foldRedundantCopies(fn) || changed

	if changed {
		aliasing := 0
		for _, s := range Analyze(fn) {
			if s == MayAlias {
				aliasing++
			}
		}
		log.Debugf("@%s: %d tensor values may still alias", fn.Name, aliasing)
	}
	return changed
}

// rewriteLiterals turns non-value tensor.literal into vtensor.literal plus a copy
func rewriteLiterals(fn *ir.Function) bool {
	changed := false
	for _, op := range snapshot(fn) {
		if op.Name != ir.OpTensorLiteral {
			continue
		}
		old := op.Result()
		tt, ok := old.Type.(*ir.TensorType)
		if !ok || tt.ValueSemantics {
			continue
		}
		lit := fn.NewOp(ir.OpVTensorLiteral, nil, []ir.Type{tt.WithValueSemantics(true)}, op.Attrs)
		lit.Loc = op.Loc
		cp := fn.NewOp(ir.OpCopyToTensor, []*ir.Value{lit.Result()}, []ir.Type{tt}, nil)
		cp.Loc = op.Loc
		fn.Body.InsertBefore(op, lit, cp)
		fn.Body.ReplaceAllUses(old, cp.Result())
		fn.Body.Erase(op)
		changed = true
	}
	return changed
}

// rewriteInPlace replaces in-place variants by their pure equivalent computed on value
// copies, followed by an overwrite of the mutated operand
func rewriteInPlace(fn *ir.Function) bool {
	changed := false
	state := Analyze(fn)
	for _, op := range snapshot(fn) {
		info := ir.LookupOp(op.Name)
		if info == nil || info.InPlaceOf == "" || ir.LookupOp(info.InPlaceOf) == nil {
			continue
		}
		if !mutatesOnlyNonValueTensors(op, info) {
			continue
		}

		operands := make([]*ir.Value, len(op.Operands))
		for i, v := range op.Operands {
			operands[i] = valueOf(fn, op, v, state)
		}
		types := make([]ir.Type, len(op.Results))
		for i, r := range op.Results {
			types[i] = asValueType(r.Type)
		}
		pure := fn.NewOp(info.InPlaceOf, operands, types, op.Attrs)
		pure.Loc = op.Loc
		fn.Body.InsertBefore(op, pure)

		dest := op.Operands[info.Mutates[0]]
		overwrite := fn.NewOp(ir.OpOverwrite, []*ir.Value{pure.Result(), dest}, nil, nil)
		overwrite.Loc = op.Loc
		fn.Body.InsertBefore(op, overwrite)

		// The in-place result is the mutated tensor itself
		if r := op.Result(); r != nil {
			fn.Body.ReplaceAllUses(r, dest)
		}
		fn.Body.Erase(op)
		changed = true
	}
	return changed
}

func mutatesOnlyNonValueTensors(op *ir.Operation, info *ir.OpInfo) bool {
	if len(info.Mutates) != 1 || len(op.Results) != 1 {
		return false
	}
	idx := info.Mutates[0]
	return idx < len(op.Operands) && ir.IsNonValueTensor(op.Operands[idx].Type)
}

// insertCopies makes value-semantic ops read and produce value tensors. Operands the
// analysis finds may alias, whatever their type, are read through copy_to_vtensor;
// non-value results are retyped and copied back for their existing users.
func insertCopies(fn *ir.Function) bool {
	changed := false
	state := Analyze(fn)
	for _, op := range snapshot(fn) {
		info := ir.LookupOp(op.Name)
		if info == nil || !info.ValueSemantics {
			continue
		}
		for i, v := range op.Operands {
			if needsCopy(state, v) {
				op.Operands[i] = valueOf(fn, op, v, state)
				changed = true
			}
		}
		for _, r := range op.Results {
			tt, ok := r.Type.(*ir.TensorType)
			if !ok || tt.ValueSemantics {
				continue
			}
			r.Type = tt.WithValueSemantics(true)
			back := fn.NewOp(ir.OpCopyToTensor, []*ir.Value{r}, []ir.Type{tt}, nil)
			back.Loc = op.Loc
			fn.Body.InsertAfter(op, back)
			fn.Body.ReplaceUsesAfter(back, r, back.Result())
			changed = true
		}
	}
	return changed
}

// coalesce forwards the contents of copied tensors that are only read and overwritten,
// erasing the copy plumbing around them
func coalesce(fn *ir.Function) bool {
	changed := false
	for _, op := range snapshot(fn) {
		if op.Name != ir.OpCopyToTensor || op.Block == nil {
			continue
		}
		if !ir.IsValueTensor(op.Operands[0].Type) {
			continue
		}
		tensor := op.Result()
		users := fn.Body.Uses(tensor)
		if !onlyReadsAndOverwrites(tensor, users) {
			continue
		}

		current := op.Operands[0]
		for _, user := range users {
			switch user.Name {
			case ir.OpCopyToVTensor:
				fn.Body.ReplaceAllUses(user.Result(), current)
			case ir.OpOverwrite:
				current = user.Operands[0]
			}
			fn.Body.Erase(user)
		}
		fn.Body.Erase(op)
		changed = true
	}
	return changed
}

func onlyReadsAndOverwrites(tensor *ir.Value, users []*ir.Operation) bool {
	for _, user := range users {
		switch {
		case user.Name == ir.OpCopyToVTensor && user.Operands[0] == tensor:
		case user.Name == ir.OpOverwrite && user.Operands[1] == tensor && user.Operands[0] != tensor:
		default:
			return false
		}
	}
	return true
}

// foldRedundantCopies drops copy_to_vtensor of values the analysis proves are already
// values, such as a view that variant reduction has since replaced
func foldRedundantCopies(fn *ir.Function) bool {
	changed := false
	state := Analyze(fn)
	for _, op := range snapshot(fn) {
		if op.Name != ir.OpCopyToVTensor || op.Block == nil {
			continue
		}
		src := op.Operands[0]
		if !ir.IsValueTensor(src.Type) || state[src] != HasValueSemantics {
			continue
		}
		fn.Body.ReplaceAllUses(op.Result(), src)
		fn.Body.Erase(op)
		changed = true
	}
	return changed
}

// needsCopy reports whether a value-semantic reader must see v through a copy. Values the
// analysis did not see, or produced by ops it cannot model, are taken at their type.
func needsCopy(state map[*ir.Value]Semantics, v *ir.Value) bool {
	tt, ok := v.Type.(*ir.TensorType)
	if !ok {
		return false
	}
	s, seen := state[v]
	if !seen || s == Unknown {
		return !tt.ValueSemantics
	}
	return s == MayAlias
}

// valueOf returns v as a value tensor readable by op, inserting a copy before op if needed
func valueOf(fn *ir.Function, op *ir.Operation, v *ir.Value, state map[*ir.Value]Semantics) *ir.Value {
	if !needsCopy(state, v) {
		return v
	}
	tt := v.Type.(*ir.TensorType)
	cp := fn.NewOp(ir.OpCopyToVTensor, []*ir.Value{v}, []ir.Type{tt.WithValueSemantics(true)}, nil)
	cp.Loc = op.Loc
	fn.Body.InsertBefore(op, cp)
	return cp.Result()
}

func asValueType(t ir.Type) ir.Type {
	if tt, ok := t.(*ir.TensorType); ok {
		return tt.WithValueSemantics(true)
	}
	return t
}

func snapshot(fn *ir.Function) []*ir.Operation {
	return append([]*ir.Operation(nil), fn.Body.Ops...)
}
