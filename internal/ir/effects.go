package ir

// Effects describe what an operation does besides producing its results.
// They are derived from the operation registry plus the operation's attributes.

// Effect represents one side effect of an operation
type Effect interface {
	EffectKind() string
}

// GlobalEffect is a read or write of a module-level cell ("" = any cell)
type GlobalEffect struct {
	Type   string // "read" or "write"
	Global string
}

func (g *GlobalEffect) EffectKind() string { return "global" }

// MemoryEffectType categorizes tensor memory access patterns
type MemoryEffectType string

const (
	MemoryEffectRead  MemoryEffectType = "read"
	MemoryEffectWrite MemoryEffectType = "write"
	MemoryEffectAlias MemoryEffectType = "alias"
)

// MemoryEffectOp is an access to the storage behind a tensor operand
type MemoryEffectOp struct {
	Type    MemoryEffectType
	Operand int
}

func (m *MemoryEffectOp) EffectKind() string { return "memory" }

// InstanceEffect is an access to instance state before globalization
type InstanceEffect struct {
	Type string
	Slot string
}

func (i *InstanceEffect) EffectKind() string { return "instance" }

// UnknownEffect is used for operations the registry does not describe
type UnknownEffect struct{}

func (u *UnknownEffect) EffectKind() string { return "unknown" }

// PureEffect indicates no side effects
type PureEffect struct{}

func (p *PureEffect) EffectKind() string { return "pure" }

// Effects returns the side effects of the operation
func (o *Operation) Effects() []Effect {
	switch o.Name {
	case OpGlobalGet:
		return []Effect{&GlobalEffect{Type: "read", Global: o.SymbolAttr("global")}}
	case OpGlobalSet:
		return []Effect{&GlobalEffect{Type: "write", Global: o.SymbolAttr("global")}}
	case OpGetSlot:
		return []Effect{&InstanceEffect{Type: "read", Slot: o.StringAttr("name")}}
	case OpSetSlot:
		return []Effect{&InstanceEffect{Type: "write", Slot: o.StringAttr("name")}}
	case OpCall, OpCallMethod:
		// Calls may touch any cell
		return []Effect{&GlobalEffect{Type: "read"}, &GlobalEffect{Type: "write"}}
	case OpReturn:
		return []Effect{&PureEffect{}}
	}

	info := LookupOp(o.Name)
	if info == nil {
		return []Effect{&UnknownEffect{}}
	}
	var effects []Effect
	for _, idx := range info.Mutates {
		effects = append(effects, &MemoryEffectOp{Type: MemoryEffectWrite, Operand: idx})
	}
	if info.IsView() {
		effects = append(effects, &MemoryEffectOp{Type: MemoryEffectAlias, Operand: info.ViewOf})
	}
	if o.Name == OpCopyToVTensor {
		effects = append(effects, &MemoryEffectOp{Type: MemoryEffectRead, Operand: 0})
	}
	if len(effects) == 0 {
		if info.Pure || info.ValueSemantics {
			return []Effect{&PureEffect{}}
		}
		return []Effect{&UnknownEffect{}}
	}
	return effects
}

// IsRemovableIfUnused reports whether the operation can be deleted once its results are dead
func (o *Operation) IsRemovableIfUnused() bool {
	if o.Name == OpReturn {
		return false
	}
	for _, e := range o.Effects() {
		switch eff := e.(type) {
		case *PureEffect:
		case *GlobalEffect:
			if eff.Type != "read" {
				return false
			}
		case *InstanceEffect:
			if eff.Type != "read" {
				return false
			}
		case *MemoryEffectOp:
			if eff.Type == MemoryEffectWrite {
				return false
			}
		default:
			return false
		}
	}
	return true
}
