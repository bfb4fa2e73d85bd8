package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// File is the root of a textual IR document
type File struct {
	Module *Module `@@`
}

type Module struct {
	Pos   lexer.Position
	Name  string  `"module" @Symbol "{"`
	Items []*Item `@@* "}"`
}

type Item struct {
	Bound  *Bound  `  @@`
	Class  *Class  `| @@`
	Init   *Init   `| @@`
	Global *Global `| @@`
	Func   *Func   `| @@`
}

type Bound struct {
	Pos  lexer.Position
	Name string `"bound" @Symbol "="`
	Type *Type  `@@`
}

type Class struct {
	Pos     lexer.Position
	Name    string         `"class" @Symbol "{"`
	Members []*ClassMember `@@* "}"`
}

type ClassMember struct {
	Slot   *SlotDecl   `  @@`
	Method *MethodDecl `| @@`
}

type SlotDecl struct {
	Pos     lexer.Position
	Mutable bool   `"slot" @"mutable"?`
	Name    string `@Ident ":"`
	Type    *Type  `@@`
}

type MethodDecl struct {
	Pos      lexer.Position
	Name     string `"method" @Ident "="`
	Function string `@Symbol`
}

type Init struct {
	Pos lexer.Position
	Ops []*Op `"init" "{" @@* "}"`
}

type Global struct {
	Pos     lexer.Position
	Mutable bool    `"global" @"mutable"?`
	Name    string  `@Symbol ":"`
	Type    *Type   `@@`
	Init    *string `[ "=" @SSA ]`
}

type Func struct {
	Pos        lexer.Position
	Visibility string       `"func" @("public" | "private")?`
	Name       string       `@Symbol "("`
	Params     []*Param     `[ @@ { "," @@ } ] ")"`
	Results    *ResultTypes `[ "->" @@ ]`
	Ops        []*Op        `"{" @@* "}"`
}

type Param struct {
	Pos   lexer.Position
	Name  string  `@SSA ":"`
	Type  *Type   `@@`
	Attrs []*Attr `[ "{" [ @@ { "," @@ } ] "}" ]`
}

type ResultTypes struct {
	List   []*Type `  "(" [ @@ { "," @@ } ] ")"`
	Single *Type   `| @@`
}

type Op struct {
	Pos      lexer.Position
	Results  []string `[ @SSA { "," @SSA } "=" ]`
	Name     string   `@Ident`
	Operands []string `[ "(" [ @SSA { "," @SSA } ] ")" ]`
	Attrs    []*Attr  `[ "{" [ @@ { "," @@ } ] "}" ]`
	Types    []*Type  `[ ":" @@ { "," @@ } ]`
}

type Attr struct {
	Pos   lexer.Position
	Key   string     `@Ident "="`
	Value *AttrValue `@@`
}

type AttrValue struct {
	Str    *string      `  @String`
	Float  *float64     `| @Float`
	Int    *int64       `| @Integer`
	Bool   *string      `| @("true" | "false")`
	Symbol *string      `| @Symbol`
	List   []*AttrValue `| "[" [ @@ { "," @@ } ] "]"`
	Type   *Type        `| @@`
}

type Type struct {
	Pos    lexer.Position
	Object *string     `  "!" "obj" "<" @String ">"`
	Tensor *TensorType `| @@`
	List   *Type       `| "list" "<" @@ ">"`
	Tuple  []*Type     `| "tuple" "<" [ @@ { "," @@ } ] ">"`
	Scalar string      `| @("int" | "float" | "bool" | "str" | "none")`
}

type TensorType struct {
	Kind     string   `@("tensor" | "vtensor") "<"`
	Unranked bool     `( @"*"`
	Dims     []string `| "[" [ @(Integer | "?") { "," @(Integer | "?") } ] "]" ) ","`
	DType    string   `@Ident ">"`
}
