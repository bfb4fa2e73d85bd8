package catalog

import (
	"strata/internal/ir"
)

// Shape and dtype transfer functions of the default catalog

var dtypeRank = map[ir.DType]int{
	ir.I1:  1,
	ir.I32: 2,
	ir.I64: 3,
	ir.F32: 4,
	ir.F64: 5,
}

// promote returns the element type two operands compute in
func promote(a, b ir.DType) ir.DType {
	if a == ir.DTypeUnknown || b == ir.DTypeUnknown {
		return ir.DTypeUnknown
	}
	if dtypeRank[a] >= dtypeRank[b] {
		return a
	}
	return b
}

func tensorOperands(op *ir.Operation) []*ir.TensorType {
	var tensors []*ir.TensorType
	for _, v := range op.Operands {
		if tt, ok := v.Type.(*ir.TensorType); ok {
			tensors = append(tensors, tt)
		}
	}
	return tensors
}

func sameAsOperand(op *ir.Operation) []*ir.TensorType {
	tensors := tensorOperands(op)
	if len(tensors) == 0 {
		return nil
	}
	return []*ir.TensorType{tensors[0]}
}

// elementwise broadcasts tensor operands right-aligned; scalar operands do not
// contribute to the shape
func elementwise(op *ir.Operation) []*ir.TensorType {
	tensors := tensorOperands(op)
	if len(tensors) == 0 {
		return nil
	}
	result := tensors[0]
	for _, t := range tensors[1:] {
		result = broadcast(result, t)
	}
	return []*ir.TensorType{result}
}

func broadcast(a, b *ir.TensorType) *ir.TensorType {
	dtype := promote(a.DType, b.DType)
	if !a.Ranked || !b.Ranked {
		return ir.UnrankedTensor(dtype, false)
	}
	rank := max(len(a.Sizes), len(b.Sizes))
	sizes := make([]int64, rank)
	for i := range sizes {
		da := dimFromRight(a.Sizes, rank-1-i)
		db := dimFromRight(b.Sizes, rank-1-i)
		switch {
		case da == 1:
			sizes[i] = db
		case db == 1:
			sizes[i] = da
		case da == db:
			sizes[i] = da
		default:
			sizes[i] = ir.DynamicDim
		}
	}
	return ir.NewTensor(sizes, dtype, false)
}

// dimFromRight returns the size at offset k counted from the last dimension, with
// missing leading dimensions treated as 1
func dimFromRight(sizes []int64, k int) int64 {
	i := len(sizes) - 1 - k
	if i < 0 {
		return 1
	}
	return sizes[i]
}

func matmul(op *ir.Operation) []*ir.TensorType {
	tensors := tensorOperands(op)
	if len(tensors) != 2 {
		return nil
	}
	a, b := tensors[0], tensors[1]
	dtype := promote(a.DType, b.DType)
	if a.Rank() != 2 || b.Rank() != 2 {
		return []*ir.TensorType{ir.NewTensor([]int64{ir.DynamicDim, ir.DynamicDim}, dtype, false)}
	}
	return []*ir.TensorType{ir.NewTensor([]int64{a.Sizes[0], b.Sizes[1]}, dtype, false)}
}

func transpose(op *ir.Operation) []*ir.TensorType {
	tensors := tensorOperands(op)
	if len(tensors) != 1 {
		return nil
	}
	t := tensors[0]
	if !t.Ranked || t.Rank() > 2 {
		return []*ir.TensorType{ir.UnrankedTensor(t.DType, false)}
	}
	sizes := make([]int64, len(t.Sizes))
	for i, d := range t.Sizes {
		sizes[len(sizes)-1-i] = d
	}
	return []*ir.TensorType{ir.NewTensor(sizes, t.DType, false)}
}

// linear(x[..., k], w[n, k]) has shape [..., n]
func linear(op *ir.Operation) []*ir.TensorType {
	tensors := tensorOperands(op)
	if len(tensors) < 2 {
		return nil
	}
	x, w := tensors[0], tensors[1]
	dtype := promote(x.DType, w.DType)
	if !x.Ranked || x.Rank() == 0 {
		return []*ir.TensorType{ir.UnrankedTensor(dtype, false)}
	}
	sizes := append([]int64(nil), x.Sizes...)
	sizes[len(sizes)-1] = ir.DynamicDim
	if w.Rank() == 2 {
		sizes[len(sizes)-1] = w.Sizes[0]
	}
	return []*ir.TensorType{ir.NewTensor(sizes, dtype, false)}
}

// reshape reads the target shape from the "shape" attribute; -1 stays dynamic
func reshape(op *ir.Operation) []*ir.TensorType {
	tensors := tensorOperands(op)
	if len(tensors) == 0 {
		return nil
	}
	dtype := tensors[0].DType
	shape, ok := op.Attrs["shape"].([]ir.Attribute)
	if !ok {
		return []*ir.TensorType{ir.UnrankedTensor(dtype, false)}
	}
	sizes := make([]int64, len(shape))
	for i, a := range shape {
		n, ok := a.(int64)
		if !ok || n < 0 {
			n = ir.DynamicDim
		}
		sizes[i] = n
	}
	return []*ir.TensorType{ir.NewTensor(sizes, dtype, false)}
}

func tupleIndex(op *ir.Operation) []*ir.TensorType {
	if len(op.Operands) != 1 {
		return nil
	}
	idx, ok := op.IntAttr("index")
	if !ok || idx < 0 {
		return nil
	}
	var elem ir.Type
	if def := op.Operands[0].Def; def != nil && def.Name == ir.OpTupleConstruct && int(idx) < len(def.Operands) {
		elem = def.Operands[idx].Type
	} else if tt, ok := op.Operands[0].Type.(*ir.TupleType); ok && int(idx) < len(tt.Elements) {
		elem = tt.Elements[idx]
	}
	if t, ok := elem.(*ir.TensorType); ok {
		return []*ir.TensorType{t}
	}
	return nil
}
