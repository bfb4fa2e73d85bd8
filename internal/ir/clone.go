package ir

// ValueMap maps values of a cloned region to their copies
type ValueMap map[*Value]*Value

// Lookup returns the mapped value, or v itself when unmapped
func (vm ValueMap) Lookup(v *Value) *Value {
	if m, ok := vm[v]; ok {
		return m
	}
	return v
}

// CloneOp copies op into function f, remapping operands through vm and recording
// the new results in vm. The copy is detached.
func (f *Function) CloneOp(op *Operation, vm ValueMap) *Operation {
	operands := make([]*Value, len(op.Operands))
	for i, v := range op.Operands {
		operands[i] = vm.Lookup(v)
	}
	types := make([]Type, len(op.Results))
	for i, r := range op.Results {
		types[i] = r.Type
	}
	c := f.NewOp(op.Name, operands, types, cloneAttrs(op.Attrs))
	c.Loc = op.Loc
	for i, r := range op.Results {
		c.Results[i].Name = r.Name
		c.Results[i].Object = r.Object
		vm[r] = c.Results[i]
	}
	return c
}

// Clone deep-copies the function under a new name. The returned map relates the
// original values to the copies.
func (f *Function) Clone(name string) (*Function, ValueMap) {
	vm := make(ValueMap)
	params := make([]*Parameter, len(f.Params))
	for i, p := range f.Params {
		params[i] = &Parameter{Name: p.Name, Type: p.Type, Bound: p.Bound, BoundRef: p.BoundRef}
	}
	results := append([]Type(nil), f.Results...)
	c := NewFunction(name, f.Visibility, params, results)
	c.Loc = f.Loc
	for i, p := range f.Params {
		vm[p.Value] = c.Params[i].Value
	}
	for _, op := range f.Body.Ops {
		c.Body.Append(c.CloneOp(op, vm))
	}
	return c, vm
}

// Materialize clones the computation producing an initializer value into f right
// before anchor and returns the copy of v. Only operations flagged Constant in the
// registry can be materialized; ok is false otherwise.
func (f *Function) Materialize(v *Value, anchor *Operation) (*Value, bool) {
	var ops []*Operation
	if !collectConstantTree(v, make(map[*Operation]bool), &ops) {
		return nil, false
	}
	vm := make(ValueMap)
	for _, op := range ops {
		anchor.Block.InsertBefore(anchor, f.CloneOp(op, vm))
	}
	return vm[v], true
}

func collectConstantTree(v *Value, seen map[*Operation]bool, ops *[]*Operation) bool {
	def := v.Def
	if def == nil {
		return false
	}
	if seen[def] {
		return true
	}
	info := LookupOp(def.Name)
	if info == nil || !info.Constant {
		return false
	}
	for _, operand := range def.Operands {
		if !collectConstantTree(operand, seen, ops) {
			return false
		}
	}
	seen[def] = true
	*ops = append(*ops, def)
	return true
}

func cloneAttrs(attrs map[string]Attribute) map[string]Attribute {
	if attrs == nil {
		return nil
	}
	c := make(map[string]Attribute, len(attrs))
	for k, v := range attrs {
		if list, ok := v.([]Attribute); ok {
			v = append([]Attribute(nil), list...)
		}
		c[k] = v
	}
	return c
}
