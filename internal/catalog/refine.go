package catalog

import (
	"strata/internal/ir"
)

// TransferFunc computes what is statically known about an operation's tensor results
// from its operands. A nil entry leaves the corresponding result untouched.
type TransferFunc func(op *ir.Operation) []*ir.TensorType

// Refiner propagates shape and element-type information forward through a function
type Refiner struct {
	transfers map[string]TransferFunc
}

// NewRefiner returns a refiner with the default transfer-function library
func NewRefiner() *Refiner {
	r := &Refiner{transfers: make(map[string]TransferFunc)}
	for _, name := range []string{OpAdd, OpSub, OpMul} {
		r.Register(name, elementwise)
	}
	for _, name := range []string{OpRelu, OpTanh, OpSquare, ir.OpCopyToTensor, ir.OpCopyToVTensor} {
		r.Register(name, sameAsOperand)
	}
	r.Register(OpMatmul, matmul)
	r.Register(OpT, transpose)
	r.Register(OpLinear, linear)
	r.Register(OpView, reshape)
	r.Register(OpReshape, reshape)
	r.Register(ir.OpTupleIndex, tupleIndex)
	return r
}

// Register adds or replaces the transfer function of an operation
func (r *Refiner) Register(op string, fn TransferFunc) {
	r.transfers[op] = fn
}

// Refine tightens result types in a single forward sweep. It never loosens a type and
// never fails; ops without a transfer function are skipped.
func (r *Refiner) Refine(fn *ir.Function) bool {
	changed := false
	for _, op := range fn.Body.Ops {
		transfer, ok := r.transfers[op.Name]
		if !ok {
			continue
		}
		known := transfer(op)
		for i, k := range known {
			if k == nil || i >= len(op.Results) {
				continue
			}
			res := op.Results[i]
			current, ok := res.Type.(*ir.TensorType)
			if !ok {
				continue
			}
			if refined := Meet(current, k); refined != nil && refined.IsMoreRefinedThan(current) {
				res.Type = refined
				changed = true
			}
		}
	}
	return changed
}

// Meet combines the information of two compatible tensor types, keeping the value
// semantics of current. It returns nil when the types contradict each other.
func Meet(current, known *ir.TensorType) *ir.TensorType {
	dtype := current.DType
	if dtype == ir.DTypeUnknown {
		dtype = known.DType
	} else if known.DType != ir.DTypeUnknown && known.DType != dtype {
		return nil
	}

	switch {
	case !current.Ranked && !known.Ranked:
		return ir.UnrankedTensor(dtype, current.ValueSemantics)
	case !current.Ranked:
		return ir.NewTensor(known.Sizes, dtype, current.ValueSemantics)
	case !known.Ranked:
		return ir.NewTensor(current.Sizes, dtype, current.ValueSemantics)
	}
	if len(current.Sizes) != len(known.Sizes) {
		return nil
	}
	sizes := make([]int64, len(current.Sizes))
	for i, d := range current.Sizes {
		k := known.Sizes[i]
		switch {
		case d == ir.DynamicDim:
			sizes[i] = k
		case k == ir.DynamicDim || k == d:
			sizes[i] = d
		default:
			return nil
		}
	}
	return ir.NewTensor(sizes, dtype, current.ValueSemantics)
}
