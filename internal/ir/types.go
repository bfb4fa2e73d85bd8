package ir

import (
	"fmt"
	"strings"
)

// IR structures for the object-graph lowering pipeline.
// A Module starts out holding class types and an arena of instances created in its
// initializer region; globalization replaces them with global cells and plain functions.

// Module is the unit every pass operates on
type Module struct {
	Name       string
	Classes    []*ClassType
	Objects    []*Object // instance arena, Objects[i].ID == i
	Init       *Block    // module initializer region
	Globals    []*GlobalSlot
	Functions  []*Function
	TypeBounds map[string]Type // externally supplied parameter type bounds
	Loc        Location
	nextID     int
}

// ClassType declares the slots and methods shared by all instances of a class
type ClassType struct {
	Name    string
	Slots   []*SlotDecl
	Methods []*Method
	Loc     Location
}

// SlotDecl is a slot declaration on a class
type SlotDecl struct {
	Name    string
	Type    Type
	Mutable bool
}

// Method binds a method name to the function implementing it
type Method struct {
	Name     string
	Function string
}

// Object is a node of the instance graph. Identity is the arena ID.
type Object struct {
	ID     int
	Class  string
	Slots  []*Slot
	Handle *Value     // the instance value produced by the obj.new operation
	Op     *Operation // defining obj.new in the initializer region
}

// Slot is a named storage location owned by one instance
type Slot struct {
	Name    string
	Type    Type
	Init    *Value // initial value; nil when absent
	Mutable bool
}

// Child returns the instance held by the slot, or nil for data slots
func (s *Slot) Child() *Object {
	if s.Init == nil {
		return nil
	}
	return s.Init.Object
}

// GlobalSlot is a module-level storage cell produced by flattening
type GlobalSlot struct {
	Name    string
	Type    Type
	Init    *Value // value defined in the module initializer region
	Mutable bool
	Loc     Location
}

// Visibility of a function
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Function is a named procedure with a single body block terminated by func.return
type Function struct {
	Name       string
	Visibility Visibility
	Params     []*Parameter
	Results    []Type
	Body       *Block
	Loc        Location
	nextID     int
}

// Parameter is a function parameter. Bound/BoundRef carry a type-bound annotation that the
// calling-convention adjuster merges into Type.
type Parameter struct {
	Name     string
	Type     Type
	Value    *Value
	Bound    Type
	BoundRef string
}

// Block is an ordered list of operations
type Block struct {
	Ops    []*Operation
	Parent *Function // nil for the module initializer region
}

// Value is an SSA value. Each value has exactly one definition: an operation result or
// a function parameter.
type Value struct {
	ID     int
	Name   string
	Type   Type
	Def    *Operation
	Object *Object // set on instance handles
}

// Operation is a generic IR operation identified by name
type Operation struct {
	ID       int
	Name     string
	Operands []*Value
	Results  []*Value
	Attrs    map[string]Attribute
	Block    *Block
	Loc      Location
}

// Attribute is an operation attribute. Concrete kinds are int64, float64, string, bool,
// SymbolRef, Type and []Attribute.
type Attribute interface{}

// SymbolRef names a module-level symbol (function, global, class, bound)
type SymbolRef string

// Location points back into the source the module was parsed from
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) IsKnown() bool { return l.Line > 0 }

func (l Location) String() string {
	if !l.IsKnown() {
		return "<unknown>"
	}
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Result returns the single result of the operation, or nil
func (o *Operation) Result() *Value {
	if len(o.Results) == 0 {
		return nil
	}
	return o.Results[0]
}

func (o *Operation) Attr(name string) (Attribute, bool) {
	a, ok := o.Attrs[name]
	return a, ok
}

func (o *Operation) SetAttr(name string, value Attribute) {
	if o.Attrs == nil {
		o.Attrs = make(map[string]Attribute)
	}
	o.Attrs[name] = value
}

func (o *Operation) StringAttr(name string) string {
	if s, ok := o.Attrs[name].(string); ok {
		return s
	}
	return ""
}

func (o *Operation) SymbolAttr(name string) string {
	switch s := o.Attrs[name].(type) {
	case SymbolRef:
		return string(s)
	case string:
		return s
	}
	return ""
}

func (o *Operation) IntAttr(name string) (int64, bool) {
	i, ok := o.Attrs[name].(int64)
	return i, ok
}

// Function returns the function owning the operation, or nil for initializer ops
func (o *Operation) Function() *Function {
	if o.Block == nil {
		return nil
	}
	return o.Block.Parent
}

func (o *Operation) String() string {
	var b strings.Builder
	for i, r := range o.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("%" + r.DisplayName())
	}
	if len(o.Results) > 0 {
		b.WriteString(" = ")
	}
	b.WriteString(o.Name)
	b.WriteString("(")
	for i, v := range o.Operands {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("%" + v.DisplayName())
	}
	b.WriteString(")")
	return b.String()
}

// DisplayName is the name used in diagnostics when the printer has not numbered the value
func (v *Value) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("v%d", v.ID)
}

// Class looks up a class type by name
func (m *Module) Class(name string) *ClassType {
	for _, c := range m.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Function looks up a function by name
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Global looks up a global cell by name
func (m *Module) Global(name string) *GlobalSlot {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// RemoveFunction deletes a function from the module
func (m *Module) RemoveFunction(name string) {
	kept := m.Functions[:0]
	for _, f := range m.Functions {
		if f.Name != name {
			kept = append(kept, f)
		}
	}
	m.Functions = kept
}

// RemoveGlobal deletes a global cell from the module
func (m *Module) RemoveGlobal(name string) {
	kept := m.Globals[:0]
	for _, g := range m.Globals {
		if g.Name != name {
			kept = append(kept, g)
		}
	}
	m.Globals = kept
}

// Method looks up a method's function symbol on a class
func (c *ClassType) Method(name string) (string, bool) {
	for _, m := range c.Methods {
		if m.Name == name {
			return m.Function, true
		}
	}
	return "", false
}

// Slot looks up a slot declaration on a class
func (c *ClassType) Slot(name string) *SlotDecl {
	for _, s := range c.Slots {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Slot looks up an instance slot by name
func (o *Object) Slot(name string) *Slot {
	for _, s := range o.Slots {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// IsPublic reports whether the function is an entry point
func (f *Function) IsPublic() bool { return f.Visibility == Public }

// ParamTypes returns the parameter types in order
func (f *Function) ParamTypes() []Type {
	types := make([]Type, len(f.Params))
	for i, p := range f.Params {
		types[i] = p.Type
	}
	return types
}

// Signature renders the function type for diagnostics
func (f *Function) Signature() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type.String()
	}
	results := make([]string, len(f.Results))
	for i, r := range f.Results {
		results[i] = r.String()
	}
	return fmt.Sprintf("(%s) -> (%s)", strings.Join(params, ", "), strings.Join(results, ", "))
}
