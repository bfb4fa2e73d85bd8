package lowering

import (
	"strata/internal/ir"
)

// InlineGlobalSlots replaces reads of cells that are never written with a fresh copy of
// the cell's initial value, then removes the cells and their dead initializers. A cell
// is only inlined when its initial value is rematerializable, owned by that cell alone,
// and every read of it is by value.
func InlineGlobalSlots(m *ir.Module) bool {
	written := make(map[string]bool)
	reads := make(map[string][]*ir.Operation)
	for _, fn := range m.Functions {
		for _, op := range fn.Body.Ops {
			switch op.Name {
			case ir.OpGlobalSet:
				written[op.SymbolAttr("global")] = true
			case ir.OpGlobalGet:
				name := op.SymbolAttr("global")
				reads[name] = append(reads[name], op)
			}
		}
	}
	owners := make(map[*ir.Value]int)
	for _, g := range m.Globals {
		if g.Init != nil {
			owners[g.Init]++
		}
	}

	inlined := 0
	for _, g := range append([]*ir.GlobalSlot(nil), m.Globals...) {
		if written[g.Name] || g.Init == nil || owners[g.Init] > 1 || !inlinable(g, reads[g.Name]) {
			continue
		}
		for _, get := range reads[g.Name] {
			fn := get.Function()
			v, _ := fn.Materialize(g.Init, get)
			fn.Body.ReplaceAllUses(get.Result(), v)
			fn.Body.Erase(get)
		}
		m.RemoveGlobal(g.Name)
		inlined++
	}
	if inlined == 0 {
		return false
	}
	m.EraseDeadInitOps()
	log.Debugf("inlined %d global slots", inlined)
	return true
}

func inlinable(g *ir.GlobalSlot, reads []*ir.Operation) bool {
	if !rematerializable(g.Init) {
		return false
	}
	switch t := g.Type.(type) {
	case *ir.TensorType:
		if t.ValueSemantics {
			return true
		}
		for _, get := range reads {
			if !readByValue(get.Function(), get.Result()) {
				return false
			}
		}
		return true
	case *ir.ListType, *ir.TupleType:
		return immutableElements(t)
	}
	return ir.IsPrimitive(g.Type)
}

// immutableElements reports whether nothing reachable from a value of type t can be
// written or aliased: primitives, value tensors and lists or tuples of those
func immutableElements(t ir.Type) bool {
	switch tt := t.(type) {
	case *ir.TensorType:
		return tt.ValueSemantics
	case *ir.ListType:
		return immutableElements(tt.Elem)
	case *ir.TupleType:
		for _, e := range tt.Elements {
			if !immutableElements(e) {
				return false
			}
		}
		return true
	}
	return ir.IsPrimitive(t)
}

// rematerializable reports whether the initializer computation consists of constant ops only
func rematerializable(v *ir.Value) bool {
	def := v.Def
	if def == nil {
		return false
	}
	info := ir.LookupOp(def.Name)
	if info == nil || !info.Constant {
		return false
	}
	for _, operand := range def.Operands {
		if !rematerializable(operand) {
			return false
		}
	}
	return true
}

func readByValue(fn *ir.Function, v *ir.Value) bool {
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
