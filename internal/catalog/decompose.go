package catalog

import (
	"sort"

	"strata/internal/ir"
)

// DecompositionRule rewrites op into more primitive operations inserted before it and
// returns the value replacing op's result, or nil to decline
type DecompositionRule func(fn *ir.Function, op *ir.Operation) *ir.Value

// Decomposer rewrites operations into more primitive ones from a rule table
type Decomposer struct {
	rules map[string]DecompositionRule
}

// NewDecomposer returns the default decomposition catalog
func NewDecomposer() *Decomposer {
	d := &Decomposer{rules: make(map[string]DecompositionRule)}
	d.Register(OpSquare, decomposeSquare)
	d.Register(OpLinear, decomposeLinear)
	return d
}

// Register adds or replaces the rule for an operation
func (d *Decomposer) Register(op string, rule DecompositionRule) {
	d.rules[op] = rule
}

// CanDecompose reports whether the catalog has a rule for the operation
func (d *Decomposer) CanDecompose(op string) bool {
	_, ok := d.rules[op]
	return ok
}

// Decomposable lists the operations the catalog can decompose
func (d *Decomposer) Decomposable() []string {
	names := make([]string, 0, len(d.rules))
	for name := range d.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decompose applies the rules to every operation of fn that is not legal
func (d *Decomposer) Decompose(fn *ir.Function, legal map[string]bool) bool {
	changed := false
	for _, op := range append([]*ir.Operation(nil), fn.Body.Ops...) {
		rule, ok := d.rules[op.Name]
		if !ok || legal[op.Name] || len(op.Results) != 1 {
			continue
		}
		replacement := rule(fn, op)
		if replacement == nil {
			continue
		}
		fn.Body.ReplaceAllUses(op.Result(), replacement)
		fn.Body.Erase(op)
		changed = true
	}
	return changed
}

// square(x) = mul(x, x)
func decomposeSquare(fn *ir.Function, op *ir.Operation) *ir.Value {
	if len(op.Operands) != 1 {
		return nil
	}
	x := op.Operands[0]
	return emit(fn, op, OpMul, []*ir.Value{x, x}, op.Result().Type)
}

// linear(x, w[, b]) = mm(x, t(w)) [+ b]
func decomposeLinear(fn *ir.Function, op *ir.Operation) *ir.Value {
	if len(op.Operands) != 2 && len(op.Operands) != 3 {
		return nil
	}
	x, w := op.Operands[0], op.Operands[1]
	result := op.Result().Type
	wt := emit(fn, op, OpT, []*ir.Value{w}, intermediate(w.Type, result))
	if len(op.Operands) == 2 {
		return emit(fn, op, OpMatmul, []*ir.Value{x, wt}, result)
	}
	mm := emit(fn, op, OpMatmul, []*ir.Value{x, wt}, intermediate(x.Type, result))
	return emit(fn, op, OpAdd, []*ir.Value{mm, op.Operands[2]}, result)
}

func emit(fn *ir.Function, anchor *ir.Operation, name string, operands []*ir.Value, result ir.Type) *ir.Value {
	op := fn.NewOp(name, operands, []ir.Type{result}, nil)
	op.Loc = anchor.Loc
	fn.Body.InsertBefore(anchor, op)
	return op.Result()
}

// intermediate types carry the element type of their source and the value semantics of
// the decomposed result; shapes are left to refinement
func intermediate(source, result ir.Type) ir.Type {
	dtype := ir.DTypeUnknown
	if st, ok := source.(*ir.TensorType); ok {
		dtype = st.DType
	}
	valueSemantics := ir.IsValueTensor(result)
	return ir.UnrankedTensor(dtype, valueSemantics)
}
