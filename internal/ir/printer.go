package ir

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Printer renders a module in the textual IR format accepted by the parser
type Printer struct {
	indent int
	output strings.Builder
	names  map[*Value]string
}

// NewPrinter creates a new IR printer
func NewPrinter() *Printer {
	return &Printer{indent: 0, names: make(map[*Value]string)}
}

// Print returns the string representation of a module
func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.output.String()
}

// PrintFunction returns the string representation of a single function
func PrintFunction(fn *Function) string {
	p := NewPrinter()
	p.printFunction(fn)
	return p.output.String()
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printModule(m *Module) {
	p.writeLine("module @%s {", m.Name)
	p.indent++

	bounds := make([]string, 0, len(m.TypeBounds))
	for name := range m.TypeBounds {
		bounds = append(bounds, name)
	}
	sort.Strings(bounds)
	for _, name := range bounds {
		p.writeLine("bound @%s = %s", name, m.TypeBounds[name])
	}

	for _, c := range m.Classes {
		p.writeLine("class @%s {", c.Name)
		p.indent++
		for _, s := range c.Slots {
			if s.Mutable {
				p.writeLine("slot mutable %s : %s", s.Name, s.Type)
			} else {
				p.writeLine("slot %s : %s", s.Name, s.Type)
			}
		}
		for _, meth := range c.Methods {
			p.writeLine("method %s = @%s", meth.Name, meth.Function)
		}
		p.indent--
		p.writeLine("}")
	}

	if len(m.Init.Ops) > 0 {
		p.writeLine("init {")
		p.indent++
		next := 0
		for _, op := range m.Init.Ops {
			for _, r := range op.Results {
				p.names[r] = strconv.Itoa(next)
				next++
			}
			p.printOp(op)
		}
		p.indent--
		p.writeLine("}")
	}

	for _, g := range m.Globals {
		mut := ""
		if g.Mutable {
			mut = "mutable "
		}
		if g.Init != nil {
			p.writeLine("global %s@%s : %s = %%%s", mut, g.Name, g.Type, p.name(g.Init))
		} else {
			p.writeLine("global %s@%s : %s", mut, g.Name, g.Type)
		}
	}

	for _, fn := range m.Functions {
		p.printFunction(fn)
	}

	p.indent--
	p.writeLine("}")
}

func (p *Printer) printFunction(fn *Function) {
	used := make(map[string]bool)
	params := make([]string, len(fn.Params))
	for i, param := range fn.Params {
		name := param.Name
		if name == "" || isNumeric(name) || used[name] {
			name = fmt.Sprintf("arg%d", i)
		}
		used[name] = true
		p.names[param.Value] = name
		text := fmt.Sprintf("%%%s: %s", name, param.Type)
		switch {
		case param.Bound != nil:
			text += fmt.Sprintf(" {bound = %s}", param.Bound)
		case param.BoundRef != "":
			text += fmt.Sprintf(" {bound = @%s}", param.BoundRef)
		}
		params[i] = text
	}

	header := fmt.Sprintf("func %s @%s(%s)", visibilityOf(fn), fn.Name, strings.Join(params, ", "))
	switch len(fn.Results) {
	case 0:
	case 1:
		header += " -> " + fn.Results[0].String()
	default:
		results := make([]string, len(fn.Results))
		for i, r := range fn.Results {
			results[i] = r.String()
		}
		header += " -> (" + strings.Join(results, ", ") + ")"
	}
	p.writeLine("%s {", header)
	p.indent++
	next := 0
	for _, op := range fn.Body.Ops {
		for _, r := range op.Results {
			p.names[r] = strconv.Itoa(next)
			next++
		}
		p.printOp(op)
	}
	p.indent--
	p.writeLine("}")
}

func (p *Printer) printOp(op *Operation) {
	var b strings.Builder
	for i, r := range op.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("%" + p.name(r))
	}
	if len(op.Results) > 0 {
		b.WriteString(" = ")
	}
	b.WriteString(op.Name)
	if len(op.Operands) > 0 {
		operands := make([]string, len(op.Operands))
		for i, v := range op.Operands {
			operands[i] = "%" + p.name(v)
		}
		b.WriteString("(" + strings.Join(operands, ", ") + ")")
	}
	if len(op.Attrs) > 0 {
		keys := make([]string, 0, len(op.Attrs))
		for k := range op.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := make([]string, len(keys))
		for i, k := range keys {
			attrs[i] = k + " = " + FormatAttribute(op.Attrs[k])
		}
		b.WriteString(" {" + strings.Join(attrs, ", ") + "}")
	}
	if len(op.Results) > 0 {
		types := make([]string, len(op.Results))
		for i, r := range op.Results {
			types[i] = r.Type.String()
		}
		b.WriteString(" : " + strings.Join(types, ", "))
	}
	p.writeLine("%s", b.String())
}

func (p *Printer) name(v *Value) string {
	if n, ok := p.names[v]; ok {
		return n
	}
	// Values defined outside the printed scope keep a recognizable placeholder
	return "<" + v.DisplayName() + ">"
}

// FormatAttribute renders an attribute value in textual IR syntax
func FormatAttribute(a Attribute) string {
	switch v := a.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case SymbolRef:
		return "@" + string(v)
	case Type:
		return v.String()
	case []Attribute:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = FormatAttribute(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", a)
}

func visibilityOf(fn *Function) Visibility {
	if fn.Visibility == "" {
		return Private
	}
	return fn.Visibility
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
