// Package valuesem converts tensor data flow from aliasing tensors to value tensors
// wherever that is provably safe.
package valuesem

import (
	"strata/internal/ir"
)

// Semantics is the lattice element tracked per tensor value
type Semantics int

const (
	// Unknown values were produced by ops the registry does not describe
	Unknown Semantics = iota
	// HasValueSemantics values can never be observed through another name
	HasValueSemantics
	// MayAlias values may share storage with another tensor
	MayAlias
)

func (s Semantics) String() string {
	switch s {
	case HasValueSemantics:
		return "value"
	case MayAlias:
		return "may-alias"
	}
	return "unknown"
}

// Join is the lattice join; MayAlias absorbs everything
func (s Semantics) Join(other Semantics) Semantics {
	if s > other {
		return s
	}
	return other
}

// Analyze seeds the lattice for every tensor value of fn from its type and the registry
// entry of its defining operation
func Analyze(fn *ir.Function) map[*ir.Value]Semantics {
	state := make(map[*ir.Value]Semantics)
	for _, p := range fn.Params {
		if _, ok := p.Type.(*ir.TensorType); ok {
			state[p.Value] = seedType(p.Type)
		}
	}
	for _, op := range fn.Body.Ops {
		info := ir.LookupOp(op.Name)
		for i, r := range op.Results {
			if _, ok := r.Type.(*ir.TensorType); !ok {
				continue
			}
			s := seedType(r.Type)
			switch {
			case op.Name == ir.OpGlobalGet:
				s = s.Join(MayAlias)
			case info == nil:
				s = Unknown
			case info.IsView() && i == 0, info.IsInPlace():
				s = MayAlias
			}
			state[r] = s
		}
	}
	return state
}

func seedType(t ir.Type) Semantics {
	if ir.IsValueTensor(t) {
		return HasValueSemantics
	}
	return MayAlias
}
