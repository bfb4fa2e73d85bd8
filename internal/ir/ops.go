package ir

import "sort"

// Operation names owned by the IR core. Numeric operations are registered by the
// operation catalog.
const (
	OpReturn     = "func.return"
	OpCall       = "func.call"
	OpCallMethod = "call.method"

	OpObjectNew = "obj.new"
	OpGetSlot   = "obj.get_slot"
	OpSetSlot   = "obj.set_slot"

	OpGlobalGet = "global.get"
	OpGlobalSet = "global.set"

	OpConstInt       = "const.int"
	OpConstFloat     = "const.float"
	OpConstBool      = "const.bool"
	OpConstStr       = "const.str"
	OpConstNone      = "const.none"
	OpTensorLiteral  = "tensor.literal"
	OpVTensorLiteral = "vtensor.literal"
	OpListConstruct  = "list.construct"
	OpTupleConstruct = "tuple.construct"
	OpTupleIndex     = "tuple.index"

	OpCopyToTensor   = "tensor.copy_to_tensor"
	OpCopyToVTensor  = "tensor.copy_to_vtensor"
	OpOverwrite      = "tensor.overwrite"
	OpStaticInfoCast = "tensor.static_info_cast"
)

// OpInfo describes the signature-level behavior of an operation
type OpInfo struct {
	Name string
	// Pure operations have no effect beyond producing their results
	Pure bool
	// ValueSemantics marks operations that read tensor operands by value and produce
	// value tensors
	ValueSemantics bool
	// Mutates lists operand indices written in place
	Mutates []int
	// ViewOf is the operand index the first result aliases, or -1
	ViewOf int
	// InPlaceOf names the pure equivalent of an in-place variant
	InPlaceOf string
	// Constant marks operations that can be rematerialized at any use site
	Constant bool
}

var registry = map[string]*OpInfo{}

// RegisterOp adds or replaces an operation description
func RegisterOp(info *OpInfo) {
	registry[info.Name] = info
}

// LookupOp returns the description of an operation, or nil when unknown
func LookupOp(name string) *OpInfo {
	return registry[name]
}

// RegisteredOps lists registered operation names in sorted order
func RegisteredOps() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsInPlace reports whether the operation mutates one of its operands
func (i *OpInfo) IsInPlace() bool { return len(i.Mutates) > 0 }

// IsView reports whether the operation's result aliases an operand
func (i *OpInfo) IsView() bool { return i.ViewOf >= 0 }

func init() {
	for _, name := range []string{OpConstInt, OpConstFloat, OpConstBool, OpConstStr, OpConstNone, OpVTensorLiteral} {
		RegisterOp(&OpInfo{Name: name, Pure: true, ViewOf: -1, Constant: true})
	}
	// tensor.literal produces a fresh non-value tensor; it is rematerializable but not pure data flow
	RegisterOp(&OpInfo{Name: OpTensorLiteral, Pure: true, ViewOf: -1, Constant: true})
	RegisterOp(&OpInfo{Name: OpListConstruct, Pure: true, ViewOf: -1, Constant: true})
	RegisterOp(&OpInfo{Name: OpTupleConstruct, Pure: true, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpTupleIndex, Pure: true, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpReturn, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpCall, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpCallMethod, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpObjectNew, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpGetSlot, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpSetSlot, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpGlobalGet, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpGlobalSet, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpCopyToTensor, Pure: true, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpCopyToVTensor, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpOverwrite, Mutates: []int{1}, ViewOf: -1})
	RegisterOp(&OpInfo{Name: OpStaticInfoCast, Pure: true, ViewOf: -1})
}
