package globalize

import (
	"github.com/tliron/commonlog"

	"strata/internal/ir"
)

var log = commonlog.GetLogger("strata.globalize")

// Globalize proves the instance graph can be flattened and replaces it with global cells
// and specialized functions. On failure the module is left untouched and the returned
// error is an errors.List holding every violation found.
func Globalize(m *ir.Module) error {
	a, err := Analyze(m)
	if err != nil {
		return err
	}
	if err := CheckAliasFreedom(m, a); err != nil {
		return err
	}
	Flatten(m, a)
	return nil
}

type flattener struct {
	m     *ir.Module
	a     *Analysis
	cells map[*ir.Slot]*ir.GlobalSlot
}

// Flatten rewrites the module according to a successful analysis: one cell per data
// slot, one function per specialization, and no classes, instances or instance ops.
func Flatten(m *ir.Module, a *Analysis) {
	f := &flattener{m: m, a: a, cells: make(map[*ir.Slot]*ir.GlobalSlot)}

	for _, c := range a.Cells {
		g := &ir.GlobalSlot{
			Name:    c.Name,
			Type:    c.Slot.Type,
			Init:    c.Slot.Init,
			Mutable: c.Slot.Mutable,
			Loc:     objectLoc(c.Object),
		}
		m.Globals = append(m.Globals, g)
		f.cells[c.Slot] = g
	}

	bySource := make(map[*ir.Function][]*ir.Function)
	for _, spec := range a.Specializations {
		bySource[spec.Function] = append(bySource[spec.Function], f.specialize(spec))
	}

	// Specializations take the place of the function they were cloned from
	var functions []*ir.Function
	for _, fn := range m.Functions {
		if !hasInstanceTypes(fn) {
			functions = append(functions, fn)
			continue
		}
		functions = append(functions, bySource[fn]...)
	}
	m.Functions = functions

	for _, obj := range m.Objects {
		if obj.Op != nil {
			m.Init.Erase(obj.Op)
		}
	}
	m.Objects = nil
	m.Classes = nil
	m.EraseDeadInitOps()

	log.Infof("flattened %d instances into %d cells and %d functions",
		len(a.Instances), len(a.Cells), len(a.Specializations))
}

func (f *flattener) specialize(spec *Specialization) *ir.Function {
	fn := spec.Function

	var params []*ir.Parameter
	for _, p := range fn.Params {
		if ir.IsObject(p.Type) {
			continue
		}
		params = append(params, &ir.Parameter{Name: p.Name, Type: p.Type, Bound: p.Bound, BoundRef: p.BoundRef})
	}
	var results []ir.Type
	for _, r := range fn.Results {
		if !ir.IsObject(r) {
			results = append(results, r)
		}
	}

	visibility := fn.Visibility
	if spec.Self != nil {
		visibility = ir.Private
		if spec.Public {
			visibility = ir.Public
		}
	}

	out := ir.NewFunction(spec.Name, visibility, params, results)
	out.Loc = fn.Loc

	vm := make(ir.ValueMap)
	k := 0
	for _, p := range fn.Params {
		if ir.IsObject(p.Type) {
			continue
		}
		vm[p.Value] = out.Params[k].Value
		k++
	}

	for _, op := range fn.Body.Ops {
		if c := f.rewrite(spec, out, op, vm); c != nil {
			c.Loc = op.Loc
			out.Body.Append(c)
		}
	}
	return out
}

// rewrite produces the flattened form of one operation, or nil when the operation only
// manipulated instances
func (f *flattener) rewrite(spec *Specialization, out *ir.Function, op *ir.Operation, vm ir.ValueMap) *ir.Operation {
	switch op.Name {
	case ir.OpGetSlot:
		res := op.Result()
		if res == nil || ir.IsObject(res.Type) {
			return nil
		}
		get := out.NewOp(ir.OpGlobalGet, nil, []ir.Type{res.Type}, map[string]ir.Attribute{
			"global": ir.SymbolRef(f.cell(spec, op).Name),
		})
		get.Results[0].Name = res.Name
		vm[res] = get.Results[0]
		return get

	case ir.OpSetSlot:
		return out.NewOp(ir.OpGlobalSet, []*ir.Value{vm.Lookup(op.Operands[1])}, nil, map[string]ir.Attribute{
			"global": ir.SymbolRef(f.cell(spec, op).Name),
		})

	case ir.OpCall, ir.OpCallMethod:
		callee, ok := spec.Callee(op)
		if !ok {
			return out.CloneOp(op, vm)
		}
		var args []*ir.Value
		for i, v := range op.Operands {
			if !ir.IsObject(callee.Function.Params[i].Type) {
				args = append(args, vm.Lookup(v))
			}
		}
		var types []ir.Type
		for _, r := range op.Results {
			if !ir.IsObject(r.Type) {
				types = append(types, r.Type)
			}
		}
		call := out.NewOp(ir.OpCall, args, types, map[string]ir.Attribute{
			"callee": ir.SymbolRef(callee.Name),
		})
		k := 0
		for _, r := range op.Results {
			if ir.IsObject(r.Type) {
				continue
			}
			call.Results[k].Name = r.Name
			vm[r] = call.Results[k]
			k++
		}
		return call

	case ir.OpReturn:
		var values []*ir.Value
		for _, v := range op.Operands {
			if !ir.IsObject(v.Type) {
				values = append(values, vm.Lookup(v))
			}
		}
		return out.Return(values...)
	}
	return out.CloneOp(op, vm)
}

func (f *flattener) cell(spec *Specialization, op *ir.Operation) *ir.GlobalSlot {
	inst := spec.Instance(op.Operands[0])
	return f.cells[inst.Slot(op.StringAttr("name"))]
}
