package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var IRLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},

		// SSA values and symbol references
		{"SSA", `%[a-zA-Z0-9_.]+`, nil},
		{"Symbol", `@[a-zA-Z_][a-zA-Z0-9_.]*`, nil},

		// Literals (float before integer)
		{"Float", `-?[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?`, nil},
		{"Integer", `-?[0-9]+`, nil},
		{"String", `"(\\.|[^"\\])*"`, nil},

		// Identifiers may contain dots so operation names lex as one token
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_.]*`, nil},

		{"Arrow", `->`, nil},
		{"Punctuation", `[{}()\[\]<>,:=!*?]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

// Tokens lexes source into its significant tokens, dropping whitespace. On a lexing error
// the tokens before the offending character are returned along with the error.
func Tokens(source string) ([]lexer.Token, error) {
	lex, err := IRLexer.LexString("", source)
	if err != nil {
		return nil, err
	}
	whitespace := IRLexer.Symbols()["Whitespace"]
	var tokens []lexer.Token
	for {
		t, err := lex.Next()
		if err != nil {
			return tokens, err
		}
		if t.EOF() {
			return tokens, nil
		}
		if t.Type != whitespace {
			tokens = append(tokens, t)
		}
	}
}
