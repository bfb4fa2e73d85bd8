package parser

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"strata/grammar"
	"strata/internal/ir"
)

// ParseFile loads a textual IR module from disk
func ParseFile(path string) (*ir.Module, []ParseError) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, []ParseError{{Message: fmt.Sprintf("failed to read file: %v", err)}}
	}
	return ParseSource(path, string(source))
}

// ParseSource parses textual IR and builds the in-memory module. The module is nil
// whenever errors are returned.
func ParseSource(path string, source string) (*ir.Module, []ParseError) {
	file, err := grammar.ParseString(path, source)
	if err != nil {
		line, column, message, _ := grammar.ErrorPosition(err)
		return nil, []ParseError{{Message: message, Position: Position{Line: line, Column: column}}}
	}

	b := &builder{path: path}
	m := b.build(file.Module)
	if len(b.errors) > 0 {
		return nil, b.errors
	}
	return m, nil
}

// ParseType parses the textual form of a single type
func ParseType(text string) (ir.Type, error) {
	t, err := grammar.ParseType(text)
	if err != nil {
		_, _, message, _ := grammar.ErrorPosition(err)
		return nil, fmt.Errorf("invalid type %q: %s", text, message)
	}
	b := &builder{}
	converted := b.convertType(t)
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("invalid type %q: %s", text, b.errors[0].Message)
	}
	return converted, nil
}

// builder converts the grammar tree into IR in two passes: declarations first (bounds,
// classes, function signatures), then the initializer region, globals and bodies.
type builder struct {
	path   string
	m      *ir.Module
	errors []ParseError
}

func (b *builder) errorAt(pos lexer.Position, format string, args ...interface{}) {
	b.errors = append(b.errors, ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: Position{Line: pos.Line, Column: pos.Column, Offset: pos.Offset},
	})
}

func (b *builder) loc(pos lexer.Position) ir.Location {
	return ir.Location{File: b.path, Line: pos.Line, Column: pos.Column}
}

func (b *builder) build(mod *grammar.Module) *ir.Module {
	b.m = ir.NewModule(symbol(mod.Name))
	b.m.Loc = b.loc(mod.Pos)

	// Declarations
	for _, item := range mod.Items {
		switch {
		case item.Bound != nil:
			b.declareBound(item.Bound)
		case item.Class != nil:
			b.declareClass(item.Class)
		}
	}

	initScope := make(map[string]*ir.Value)
	for _, item := range mod.Items {
		if item.Init != nil {
			b.buildInit(item.Init, initScope)
		}
	}

	var bodies []*grammar.Func
	var fns []*ir.Function
	for _, item := range mod.Items {
		switch {
		case item.Global != nil:
			b.buildGlobal(item.Global, initScope)
		case item.Func != nil:
			if fn := b.declareFunction(item.Func); fn != nil {
				bodies = append(bodies, item.Func)
				fns = append(fns, fn)
			}
		}
	}

	for i, fn := range fns {
		b.buildBody(fn, bodies[i])
	}
	return b.m
}

func (b *builder) declareBound(bound *grammar.Bound) {
	name := symbol(bound.Name)
	if _, exists := b.m.TypeBounds[name]; exists {
		b.errorAt(bound.Pos, "duplicate bound @%s", name)
		return
	}
	if t := b.convertType(bound.Type); t != nil {
		b.m.TypeBounds[name] = t
	}
}

func (b *builder) declareClass(c *grammar.Class) {
	name := symbol(c.Name)
	if b.m.Class(name) != nil {
		b.errorAt(c.Pos, "duplicate class @%s", name)
		return
	}
	class := &ir.ClassType{Name: name, Loc: b.loc(c.Pos)}
	for _, member := range c.Members {
		switch {
		case member.Slot != nil:
			s := member.Slot
			if class.Slot(s.Name) != nil {
				b.errorAt(s.Pos, "duplicate slot %q in class @%s", s.Name, name)
				continue
			}
			class.Slots = append(class.Slots, &ir.SlotDecl{
				Name:    s.Name,
				Type:    b.convertType(s.Type),
				Mutable: s.Mutable,
			})
		case member.Method != nil:
			meth := member.Method
			if _, exists := class.Method(meth.Name); exists {
				b.errorAt(meth.Pos, "duplicate method %q in class @%s", meth.Name, name)
				continue
			}
			class.Methods = append(class.Methods, &ir.Method{Name: meth.Name, Function: symbol(meth.Function)})
		}
	}
	b.m.Classes = append(b.m.Classes, class)
}

func (b *builder) buildInit(init *grammar.Init, scope map[string]*ir.Value) {
	for _, gop := range init.Ops {
		operands, types, attrs, ok := b.convertOp(gop, scope)
		if !ok {
			continue
		}
		op := b.m.NewInitOp(gop.Name, operands, types, attrs)
		op.Loc = b.loc(gop.Pos)
		b.m.Init.Append(op)
		b.bindResults(gop, op, scope)

		if op.Name == ir.OpObjectNew {
			class := op.SymbolAttr("class")
			if b.m.Class(class) == nil {
				b.errorAt(gop.Pos, "obj.new of undeclared class @%s", class)
				continue
			}
			if len(op.Results) != 1 || !ir.IsObject(op.Result().Type) {
				b.errorAt(gop.Pos, "obj.new must produce a single !obj result")
				continue
			}
			b.m.RegisterObject(op)
		}
	}
}

func (b *builder) buildGlobal(g *grammar.Global, scope map[string]*ir.Value) {
	name := symbol(g.Name)
	if b.m.Global(name) != nil {
		b.errorAt(g.Pos, "duplicate global @%s", name)
		return
	}
	global := &ir.GlobalSlot{
		Name:    name,
		Type:    b.convertType(g.Type),
		Mutable: g.Mutable,
		Loc:     b.loc(g.Pos),
	}
	if g.Init != nil {
		v, ok := scope[*g.Init]
		if !ok {
			b.errorAt(g.Pos, "global @%s initialized from undefined value %s", name, *g.Init)
			return
		}
		global.Init = v
	}
	b.m.Globals = append(b.m.Globals, global)
}

func (b *builder) declareFunction(f *grammar.Func) *ir.Function {
	name := symbol(f.Name)
	if b.m.Function(name) != nil {
		b.errorAt(f.Pos, "duplicate function @%s", name)
		return nil
	}

	params := make([]*ir.Parameter, 0, len(f.Params))
	for _, gp := range f.Params {
		param := &ir.Parameter{Name: strings.TrimPrefix(gp.Name, "%"), Type: b.convertType(gp.Type)}
		for _, attr := range gp.Attrs {
			if attr.Key != "bound" {
				b.errorAt(attr.Pos, "unknown parameter attribute %q", attr.Key)
				continue
			}
			switch {
			case attr.Value.Type != nil:
				param.Bound = b.convertType(attr.Value.Type)
			case attr.Value.Symbol != nil:
				param.BoundRef = symbol(*attr.Value.Symbol)
			default:
				b.errorAt(attr.Pos, "bound must be a type or a @bound reference")
			}
		}
		params = append(params, param)
	}

	var results []ir.Type
	if f.Results != nil {
		if f.Results.Single != nil {
			results = append(results, b.convertType(f.Results.Single))
		}
		for _, t := range f.Results.List {
			results = append(results, b.convertType(t))
		}
	}

	visibility := ir.Private
	if f.Visibility == string(ir.Public) {
		visibility = ir.Public
	}
	fn := ir.NewFunction(name, visibility, params, results)
	fn.Loc = b.loc(f.Pos)
	b.m.AddFunction(fn)
	return fn
}

func (b *builder) buildBody(fn *ir.Function, f *grammar.Func) {
	scope := make(map[string]*ir.Value)
	for i, gp := range f.Params {
		if _, exists := scope[gp.Name]; exists {
			b.errorAt(gp.Pos, "duplicate parameter %s", gp.Name)
			continue
		}
		scope[gp.Name] = fn.Params[i].Value
	}

	for _, gop := range f.Ops {
		if gop.Name == ir.OpObjectNew {
			b.errorAt(gop.Pos, "obj.new is only allowed in the init region")
			continue
		}
		operands, types, attrs, ok := b.convertOp(gop, scope)
		if !ok {
			continue
		}
		op := fn.NewOp(gop.Name, operands, types, attrs)
		op.Loc = b.loc(gop.Pos)
		fn.Body.Append(op)
		b.bindResults(gop, op, scope)
	}

	if fn.Body.Terminator() == nil {
		b.errorAt(f.Pos, "function @%s must end with %s", fn.Name, ir.OpReturn)
	}
}

func (b *builder) convertOp(gop *grammar.Op, scope map[string]*ir.Value) ([]*ir.Value, []ir.Type, map[string]ir.Attribute, bool) {
	ok := true
	operands := make([]*ir.Value, 0, len(gop.Operands))
	for _, name := range gop.Operands {
		v, found := scope[name]
		if !found {
			b.errorAt(gop.Pos, "use of undefined value %s", name)
			ok = false
			continue
		}
		operands = append(operands, v)
	}

	if len(gop.Results) != len(gop.Types) {
		b.errorAt(gop.Pos, "%s declares %d results but %d result types", gop.Name, len(gop.Results), len(gop.Types))
		ok = false
	}
	types := make([]ir.Type, 0, len(gop.Types))
	for _, t := range gop.Types {
		types = append(types, b.convertType(t))
	}

	var attrs map[string]ir.Attribute
	for _, attr := range gop.Attrs {
		if attrs == nil {
			attrs = make(map[string]ir.Attribute)
		}
		if _, exists := attrs[attr.Key]; exists {
			b.errorAt(attr.Pos, "duplicate attribute %q", attr.Key)
			ok = false
			continue
		}
		attrs[attr.Key] = b.convertAttr(attr.Value)
	}
	return operands, types, attrs, ok
}

func (b *builder) bindResults(gop *grammar.Op, op *ir.Operation, scope map[string]*ir.Value) {
	for i, name := range gop.Results {
		if _, exists := scope[name]; exists {
			b.errorAt(gop.Pos, "redefinition of %s", name)
			continue
		}
		if i < len(op.Results) {
			op.Results[i].Name = strings.TrimPrefix(name, "%")
			scope[name] = op.Results[i]
		}
	}
}

func (b *builder) convertAttr(v *grammar.AttrValue) ir.Attribute {
	switch {
	case v.Str != nil:
		return *v.Str
	case v.Float != nil:
		return *v.Float
	case v.Int != nil:
		return *v.Int
	case v.Bool != nil:
		return *v.Bool == "true"
	case v.Symbol != nil:
		return ir.SymbolRef(symbol(*v.Symbol))
	case v.Type != nil:
		return b.convertType(v.Type)
	}
	list := make([]ir.Attribute, len(v.List))
	for i, e := range v.List {
		list[i] = b.convertAttr(e)
	}
	return list
}

func (b *builder) convertType(t *grammar.Type) ir.Type {
	switch {
	case t == nil:
		return ir.None
	case t.Object != nil:
		return &ir.ObjectType{Class: *t.Object}
	case t.Tensor != nil:
		return b.convertTensor(t.Pos, t.Tensor)
	case t.List != nil:
		return &ir.ListType{Elem: b.convertType(t.List)}
	case t.Tuple != nil:
		elems := make([]ir.Type, len(t.Tuple))
		for i, e := range t.Tuple {
			elems[i] = b.convertType(e)
		}
		return &ir.TupleType{Elements: elems}
	}

	switch t.Scalar {
	case "int":
		return ir.Int
	case "float":
		return ir.Float
	case "bool":
		return ir.Bool
	case "str":
		return ir.String
	case "none":
		return ir.None
	}
	// "tuple<>" parses as an empty tuple alternative
	return &ir.TupleType{}
}

func (b *builder) convertTensor(pos lexer.Position, t *grammar.TensorType) *ir.TensorType {
	dtype := ir.DType(t.DType)
	switch dtype {
	case "unk":
		dtype = ir.DTypeUnknown
	case ir.F32, ir.F64, ir.I32, ir.I64, ir.I1:
	default:
		b.errorAt(pos, "unknown element type %q", t.DType)
		dtype = ir.DTypeUnknown
	}
	valueSemantics := t.Kind == "vtensor"
	if t.Unranked {
		return ir.UnrankedTensor(dtype, valueSemantics)
	}
	sizes := make([]int64, len(t.Dims))
	for i, d := range t.Dims {
		if d == "?" {
			sizes[i] = ir.DynamicDim
			continue
		}
		n, err := strconv.ParseInt(d, 10, 64)
		if err != nil || n < 0 {
			b.errorAt(pos, "invalid dimension %q", d)
			n = ir.DynamicDim
		}
		sizes[i] = n
	}
	return ir.NewTensor(sizes, dtype, valueSemantics)
}

func symbol(s string) string {
	return strings.TrimPrefix(s, "@")
}
