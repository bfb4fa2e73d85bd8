// Package catalog holds the default collaborators of the lowering driver: the numeric
// operation registry, decompositions, variant reductions, shape and dtype transfer
// functions and the shape-calculation simplifier.
package catalog

import (
	"strata/internal/ir"
)

// Numeric operations known to the default catalog
const (
	OpAdd         = "aten.add"
	OpAddInPlace  = "aten.add_"
	OpSub         = "aten.sub"
	OpMul         = "aten.mul"
	OpMulInPlace  = "aten.mul_"
	OpRelu        = "aten.relu"
	OpReluInPlace = "aten.relu_"
	OpTanh        = "aten.tanh"
	OpSquare      = "aten.square"
	OpMatmul      = "aten.mm"
	OpT           = "aten.t"
	OpLinear      = "aten.linear"
	OpView        = "aten.view"
	OpReshape     = "aten.reshape"
)

func init() {
	for _, name := range []string{OpAdd, OpSub, OpMul, OpRelu, OpTanh, OpSquare, OpMatmul, OpT, OpLinear, OpReshape} {
		ir.RegisterOp(&ir.OpInfo{Name: name, Pure: true, ValueSemantics: true, ViewOf: -1})
	}

	ir.RegisterOp(&ir.OpInfo{Name: OpAddInPlace, Mutates: []int{0}, ViewOf: -1, InPlaceOf: OpAdd})
	ir.RegisterOp(&ir.OpInfo{Name: OpMulInPlace, Mutates: []int{0}, ViewOf: -1, InPlaceOf: OpMul})
	ir.RegisterOp(&ir.OpInfo{Name: OpReluInPlace, Mutates: []int{0}, ViewOf: -1, InPlaceOf: OpRelu})

	ir.RegisterOp(&ir.OpInfo{Name: OpView, Pure: true, ViewOf: 0})
}
