package ir

// Use-def utilities. Values do not keep use lists; uses are recomputed by walking
// the owning block, which keeps every rewrite a plain slice edit.

// Uses returns the operations in block that read v, in block order
func (b *Block) Uses(v *Value) []*Operation {
	var users []*Operation
	for _, op := range b.Ops {
		for _, o := range op.Operands {
			if o == v {
				users = append(users, op)
				break
			}
		}
	}
	return users
}

// HasUses reports whether any operation in block reads v
func (b *Block) HasUses(v *Value) bool {
	for _, op := range b.Ops {
		for _, o := range op.Operands {
			if o == v {
				return true
			}
		}
	}
	return false
}

// ReplaceAllUses rewrites every operand equal to old into replacement
func (b *Block) ReplaceAllUses(old, replacement *Value) bool {
	changed := false
	for _, op := range b.Ops {
		if op.ReplaceOperand(old, replacement) {
			changed = true
		}
	}
	return changed
}

// ReplaceUsesAfter rewrites uses of old located strictly after anchor
func (b *Block) ReplaceUsesAfter(anchor *Operation, old, replacement *Value) {
	start := b.Index(anchor) + 1
	for _, op := range b.Ops[start:] {
		op.ReplaceOperand(old, replacement)
	}
}

// ReplaceOperand rewrites operands equal to old
func (o *Operation) ReplaceOperand(old, replacement *Value) bool {
	changed := false
	for i, v := range o.Operands {
		if v == old {
			o.Operands[i] = replacement
			changed = true
		}
	}
	return changed
}

// EraseDeadOps removes operations whose results are unused and which have no effects
// that must be preserved. Runs to a fixed point.
func (b *Block) EraseDeadOps() bool {
	return b.eraseDead(nil)
}

// EraseDeadInitOps removes initializer operations whose results feed neither a global
// cell, an instance nor another live initializer operation
func (m *Module) EraseDeadInitOps() bool {
	roots := make(map[*Value]bool)
	for _, g := range m.Globals {
		if g.Init != nil {
			roots[g.Init] = true
		}
	}
	for _, obj := range m.Objects {
		if obj.Handle != nil {
			roots[obj.Handle] = true
		}
	}
	return m.Init.eraseDead(roots)
}

func (b *Block) eraseDead(roots map[*Value]bool) bool {
	changed := false
	for {
		used := make(map[*Value]bool, len(roots))
		for v := range roots {
			used[v] = true
		}
		for _, op := range b.Ops {
			for _, v := range op.Operands {
				used[v] = true
			}
		}
		kept := make([]*Operation, 0, len(b.Ops))
		removed := false
		for _, op := range b.Ops {
			if op.IsRemovableIfUnused() && !anyUsed(op.Results, used) {
				op.Block = nil
				removed = true
				continue
			}
			kept = append(kept, op)
		}
		b.Ops = kept
		if !removed {
			return changed
		}
		changed = true
	}
}

func anyUsed(values []*Value, used map[*Value]bool) bool {
	for _, v := range values {
		if used[v] {
			return true
		}
	}
	return false
}

// Walk calls fn for every operation of every function in the module, then for the
// initializer region
func (m *Module) Walk(fn func(*Function, *Operation)) {
	for _, f := range m.Functions {
		for _, op := range f.Body.Ops {
			fn(f, op)
		}
	}
	for _, op := range m.Init.Ops {
		fn(nil, op)
	}
}
