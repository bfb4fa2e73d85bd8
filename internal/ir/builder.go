package ir

// Construction helpers used by the parser and by every rewriting pass.
// IDs are allocated per function so that function-scoped passes can run in parallel
// without sharing a counter.

// NewModule creates an empty module with an empty initializer region
func NewModule(name string) *Module {
	return &Module{
		Name:       name,
		Init:       &Block{},
		TypeBounds: make(map[string]Type),
	}
}

// NewFunction creates a function with the given signature and an empty body.
// Parameter values are created immediately.
func NewFunction(name string, visibility Visibility, params []*Parameter, results []Type) *Function {
	fn := &Function{
		Name:       name,
		Visibility: visibility,
		Params:     params,
		Results:    results,
	}
	fn.Body = &Block{Parent: fn}
	for _, p := range params {
		if p.Value == nil {
			p.Value = fn.NewValue(p.Type)
			p.Value.Name = p.Name
		}
	}
	return fn
}

// AddFunction appends a function to the module
func (m *Module) AddFunction(fn *Function) {
	m.Functions = append(m.Functions, fn)
}

// NewValue allocates a value owned by the function
func (f *Function) NewValue(t Type) *Value {
	f.nextID++
	return &Value{ID: f.nextID, Type: t}
}

// NextOpID allocates an operation ID
func (f *Function) NextOpID() int {
	f.nextID++
	return f.nextID
}

// AddParam appends a parameter to the signature
func (f *Function) AddParam(name string, t Type) *Parameter {
	p := &Parameter{Name: name, Type: t}
	p.Value = f.NewValue(t)
	p.Value.Name = name
	f.Params = append(f.Params, p)
	return p
}

// NewOp creates a detached operation whose results have the given types
func (f *Function) NewOp(name string, operands []*Value, resultTypes []Type, attrs map[string]Attribute) *Operation {
	op := &Operation{
		ID:       f.NextOpID(),
		Name:     name,
		Operands: operands,
		Attrs:    attrs,
	}
	for _, t := range resultTypes {
		v := f.NewValue(t)
		v.Def = op
		op.Results = append(op.Results, v)
	}
	return op
}

// NewInitOp creates a detached operation for the module initializer region
func (m *Module) NewInitOp(name string, operands []*Value, resultTypes []Type, attrs map[string]Attribute) *Operation {
	op := &Operation{
		ID:       m.nextInitID(),
		Name:     name,
		Operands: operands,
		Attrs:    attrs,
	}
	for _, t := range resultTypes {
		v := &Value{ID: m.nextInitID(), Type: t, Def: op}
		op.Results = append(op.Results, v)
	}
	return op
}

func (m *Module) nextInitID() int {
	m.nextID++
	return m.nextID
}

// NewObject creates an obj.new operation in the initializer region and registers the
// instance in the arena. Slot mutability comes from the class declaration when known.
func (m *Module) NewObject(class string, slotNames []string, inits []*Value) *Object {
	names := make([]Attribute, len(slotNames))
	for i, n := range slotNames {
		names[i] = n
	}
	op := m.NewInitOp(OpObjectNew, inits, []Type{&ObjectType{Class: class}}, map[string]Attribute{
		"class": SymbolRef(class),
		"slots": names,
	})
	m.Init.Append(op)
	return m.RegisterObject(op)
}

// RegisterObject adds the instance created by an obj.new operation to the arena
func (m *Module) RegisterObject(op *Operation) *Object {
	class := op.SymbolAttr("class")
	obj := &Object{
		ID:     len(m.Objects),
		Class:  class,
		Handle: op.Result(),
		Op:     op,
	}
	decl := m.Class(class)
	names, _ := op.Attrs["slots"].([]Attribute)
	for i, init := range op.Operands {
		name := ""
		if i < len(names) {
			name, _ = names[i].(string)
		}
		slot := &Slot{Name: name, Type: init.Type, Init: init}
		if decl != nil {
			if sd := decl.Slot(name); sd != nil {
				slot.Type = sd.Type
				slot.Mutable = sd.Mutable
			}
		}
		obj.Slots = append(obj.Slots, slot)
	}
	op.Result().Object = obj
	m.Objects = append(m.Objects, obj)
	return obj
}

// Append adds operations at the end of the block
func (b *Block) Append(ops ...*Operation) {
	for _, op := range ops {
		op.Block = b
	}
	b.Ops = append(b.Ops, ops...)
}

// Index returns the position of op in the block, or -1
func (b *Block) Index(op *Operation) int {
	for i, o := range b.Ops {
		if o == op {
			return i
		}
	}
	return -1
}

// InsertBefore inserts ops right before anchor
func (b *Block) InsertBefore(anchor *Operation, ops ...*Operation) {
	b.insertAt(b.Index(anchor), ops)
}

// InsertAfter inserts ops right after anchor
func (b *Block) InsertAfter(anchor *Operation, ops ...*Operation) {
	b.insertAt(b.Index(anchor)+1, ops)
}

func (b *Block) insertAt(idx int, ops []*Operation) {
	if idx < 0 || idx > len(b.Ops) {
		idx = len(b.Ops)
	}
	for _, op := range ops {
		op.Block = b
	}
	rest := append([]*Operation(nil), b.Ops[idx:]...)
	b.Ops = append(append(b.Ops[:idx], ops...), rest...)
}

// Erase removes op from the block
func (b *Block) Erase(op *Operation) {
	if i := b.Index(op); i >= 0 {
		b.Ops = append(b.Ops[:i], b.Ops[i+1:]...)
		op.Block = nil
	}
}

// Terminator returns the trailing func.return, or nil
func (b *Block) Terminator() *Operation {
	if len(b.Ops) == 0 {
		return nil
	}
	last := b.Ops[len(b.Ops)-1]
	if last.Name != OpReturn {
		return nil
	}
	return last
}

// Constant builders

func (f *Function) ConstInt(v int64) *Operation {
	return f.NewOp(OpConstInt, nil, []Type{Int}, map[string]Attribute{"value": v})
}

func (f *Function) ConstNone() *Operation {
	return f.NewOp(OpConstNone, nil, []Type{None}, nil)
}

func (f *Function) Return(values ...*Value) *Operation {
	return f.NewOp(OpReturn, values, nil, nil)
}
