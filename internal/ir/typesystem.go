package ir

import (
	"fmt"
	"strings"
)

// Type is the type of an IR value
type Type interface {
	String() string
}

type IntType struct{}

type FloatType struct{}

type BoolType struct{}

type StringType struct{}

type NoneType struct{}

// ObjectType is the type of an instance handle
type ObjectType struct {
	Class string
}

type ListType struct {
	Elem Type
}

type TupleType struct {
	Elements []Type
}

// DynamicDim marks a dimension whose size is not known statically
const DynamicDim int64 = -1

// DType is a tensor element type. The empty DType is unknown.
type DType string

const (
	DTypeUnknown DType = ""
	F32          DType = "f32"
	F64          DType = "f64"
	I32          DType = "i32"
	I64          DType = "i64"
	I1           DType = "i1"
)

// TensorType describes a tensor. Non-value tensors may alias other tensors;
// value tensors behave as immutable values.
type TensorType struct {
	Sizes          []int64
	Ranked         bool
	DType          DType
	ValueSemantics bool
}

func (i *IntType) String() string    { return "int" }
func (f *FloatType) String() string  { return "float" }
func (b *BoolType) String() string   { return "bool" }
func (s *StringType) String() string { return "str" }
func (n *NoneType) String() string   { return "none" }
func (o *ObjectType) String() string { return fmt.Sprintf("!obj<%q>", o.Class) }
func (l *ListType) String() string   { return fmt.Sprintf("list<%s>", l.Elem) }

func (t *TupleType) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		parts[i] = e.String()
	}
	return fmt.Sprintf("tuple<%s>", strings.Join(parts, ", "))
}

func (t *TensorType) String() string {
	kind := "tensor"
	if t.ValueSemantics {
		kind = "vtensor"
	}
	shape := "*"
	if t.Ranked {
		dims := make([]string, len(t.Sizes))
		for i, d := range t.Sizes {
			if d == DynamicDim {
				dims[i] = "?"
			} else {
				dims[i] = fmt.Sprintf("%d", d)
			}
		}
		shape = "[" + strings.Join(dims, ",") + "]"
	}
	dtype := string(t.DType)
	if dtype == "" {
		dtype = "unk"
	}
	return fmt.Sprintf("%s<%s,%s>", kind, shape, dtype)
}

// Convenience singletons for the scalar types
var (
	Int    = &IntType{}
	Float  = &FloatType{}
	Bool   = &BoolType{}
	String = &StringType{}
	None   = &NoneType{}
)

// NewTensor builds a ranked tensor type
func NewTensor(sizes []int64, dtype DType, valueSemantics bool) *TensorType {
	return &TensorType{Sizes: append([]int64(nil), sizes...), Ranked: true, DType: dtype, ValueSemantics: valueSemantics}
}

// UnrankedTensor builds a tensor type of unknown rank
func UnrankedTensor(dtype DType, valueSemantics bool) *TensorType {
	return &TensorType{DType: dtype, ValueSemantics: valueSemantics}
}

// Rank returns the tensor rank, or -1 if unknown
func (t *TensorType) Rank() int {
	if !t.Ranked {
		return -1
	}
	return len(t.Sizes)
}

// WithValueSemantics returns a copy with the value-semantics flag set as given
func (t *TensorType) WithValueSemantics(v bool) *TensorType {
	c := *t
	c.Sizes = append([]int64(nil), t.Sizes...)
	c.ValueSemantics = v
	return &c
}

// HasKnownRankAndDType reports whether rank and element type are both known
func (t *TensorType) HasKnownRankAndDType() bool {
	return t.Ranked && t.DType != DTypeUnknown
}

// IsMoreRefinedThan reports whether t carries strictly more static information than other
// while being compatible with it.
func (t *TensorType) IsMoreRefinedThan(other *TensorType) bool {
	if t.ValueSemantics != other.ValueSemantics {
		return false
	}
	if other.DType != DTypeUnknown && t.DType != other.DType {
		return false
	}
	if other.Ranked {
		if !t.Ranked || len(t.Sizes) != len(other.Sizes) {
			return false
		}
		for i, d := range other.Sizes {
			if d != DynamicDim && t.Sizes[i] != d {
				return false
			}
		}
	}
	return !SameType(t, other)
}

// SameType reports structural type equality
func SameType(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// IsPrimitive reports whether values of the type are plain scalars
func IsPrimitive(t Type) bool {
	switch t.(type) {
	case *IntType, *FloatType, *BoolType, *StringType, *NoneType:
		return true
	}
	return false
}

// IsObject reports whether t is an instance type
func IsObject(t Type) bool {
	_, ok := t.(*ObjectType)
	return ok
}

// IsNonValueTensor reports whether t is a tensor that may alias
func IsNonValueTensor(t Type) bool {
	tt, ok := t.(*TensorType)
	return ok && !tt.ValueSemantics
}

// IsValueTensor reports whether t is a tensor with value semantics
func IsValueTensor(t Type) bool {
	tt, ok := t.(*TensorType)
	return ok && tt.ValueSemantics
}

// ContainsObject reports whether t is or contains an instance type
func ContainsObject(t Type) bool {
	switch tt := t.(type) {
	case *ObjectType:
		return true
	case *ListType:
		return ContainsObject(tt.Elem)
	case *TupleType:
		for _, e := range tt.Elements {
			if ContainsObject(e) {
				return true
			}
		}
	}
	return false
}

// WalkTensorTypes calls fn for every tensor type nested in t
func WalkTensorTypes(t Type, fn func(*TensorType)) {
	switch tt := t.(type) {
	case *TensorType:
		fn(tt)
	case *ListType:
		WalkTensorTypes(tt.Elem, fn)
	case *TupleType:
		for _, e := range tt.Elements {
			WalkTensorTypes(e, fn)
		}
	}
}
