package catalog

import (
	"strata/internal/ir"
)

// VariantReducer replaces aliasing view variants with their value-producing equivalent
// when neither the view nor its source is written through
type VariantReducer struct {
	variants map[string]string
}

// NewVariantReducer returns the default variant table
func NewVariantReducer() *VariantReducer {
	return &VariantReducer{variants: map[string]string{
		OpView: OpReshape,
	}}
}

// Reduce rewrites every reducible view in fn
func (r *VariantReducer) Reduce(fn *ir.Function) bool {
	changed := false
	for _, op := range fn.Body.Ops {
		target, ok := r.variants[op.Name]
		if !ok || len(op.Operands) == 0 || len(op.Results) != 1 {
			continue
		}
		if !onlyRead(fn, op.Result()) || written(fn, op.Operands[0]) {
			continue
		}
		op.Name = target
		changed = true
	}
	return changed
}

// onlyRead reports whether every use of v reads it by value
func onlyRead(fn *ir.Function, v *ir.Value) bool {
	for _, user := range fn.Body.Uses(v) {
		if user.Name == ir.OpCopyToVTensor {
			continue
		}
		info := ir.LookupOp(user.Name)
		if info == nil || !info.ValueSemantics {
			return false
		}
	}
	return true
}

// written reports whether v may be mutated inside fn, directly or by a callee
func written(fn *ir.Function, v *ir.Value) bool {
	for _, user := range fn.Body.Uses(v) {
		if user.Name == ir.OpCall {
			return true
		}
		info := ir.LookupOp(user.Name)
		if info == nil {
			return true
		}
		for _, idx := range info.Mutates {
			if idx < len(user.Operands) && user.Operands[idx] == v {
				return true
			}
		}
		if info.IsView() && user.Operands[info.ViewOf] == v && !onlyRead(fn, user.Result()) {
			return true
		}
	}
	return false
}
