package lsp

import (
	"github.com/alecthomas/participle/v2/lexer"

	"strata/grammar"
)

// SemanticToken represents a single LSP semantic token entry
// Line and StartChar are 0-based positions
// TokenType is an index into the semanticTokenTypes array
// TokenModifiers is a bitmask based on semanticTokenModifiers
type SemanticToken struct {
	Line           uint32
	StartChar      uint32
	Length         uint32
	TokenType      int // index into semanticTokenTypes
	TokenModifiers int // bitmask
}

var keywords = map[string]bool{
	"module": true, "bound": true, "class": true, "slot": true, "method": true, "init": true,
	"global": true, "func": true, "public": true, "private": true, "mutable": true,
	"true": true, "false": true,
}

var typeNames = map[string]bool{
	"int": true, "float": true, "bool": true, "str": true, "none": true,
	"tensor": true, "vtensor": true, "list": true, "tuple": true, "obj": true,
	"f32": true, "f64": true, "i32": true, "i64": true, "i1": true, "unk": true,
}

// declaring keywords and modifiers directly precede the symbol they introduce
var declaring = map[string]bool{
	"bound": true, "class": true, "global": true, "func": true,
	"public": true, "private": true, "mutable": true,
}

// collectSemanticTokens classifies the tokens of a textual IR document. Lexing stops at the
// first invalid character; the tokens before it are still returned.
func collectSemanticTokens(source string) []SemanticToken {
	toks, err := grammar.Tokens(source)
	if err != nil {
		log.Debugf("semantic tokens: %s", err)
	}
	names := make(map[lexer.TokenType]string)
	for name, typ := range grammar.IRLexer.Symbols() {
		names[typ] = name
	}

	var tokens []SemanticToken
	for i, tok := range toks {
		var prev, next *lexer.Token
		if i > 0 {
			prev = &toks[i-1]
		}
		if i+1 < len(toks) {
			next = &toks[i+1]
		}

		tokenType, declaration := classify(names[tok.Type], tok, prev, next)
		if tokenType == "" {
			continue
		}
		modifier := 0
		if declaration {
			modifier = 1
		}
		tokens = append(tokens, makeToken(tok, tokenType, modifier))
	}
	return tokens
}

func classify(kind string, tok lexer.Token, prev, next *lexer.Token) (string, bool) {
	switch kind {
	case "Comment":
		return "comment", false
	case "String":
		return "string", false
	case "Integer", "Float":
		return "number", false
	case "Symbol":
		return "function", prev != nil && declaring[prev.Value]
	case "SSA":
		// "%x =" defines a result and "%x :" a parameter
		return "variable", next != nil && (next.Value == "=" || next.Value == ":")
	case "Ident":
		switch {
		case keywords[tok.Value]:
			return "keyword", false
		case typeNames[tok.Value]:
			return "type", false
		case next != nil && next.Value == "=":
			return "property", false
		case next != nil && next.Value == ":":
			return "property", true
		}
		return "operator", false
	}
	return "", false
}

// makeToken creates a semantic token for a lexed token
func makeToken(tok lexer.Token, tokenType string, declModifier int) SemanticToken {
	return SemanticToken{
		Line:           uint32(tok.Pos.Line - 1),   // LSP uses 0-based line numbers
		StartChar:      uint32(tok.Pos.Column - 1), // LSP uses 0-based column numbers
		Length:         uint32(len(tok.Value)),     // string tokens keep their quotes
		TokenType:      indexOf(tokenType, SemanticTokenTypes),
		TokenModifiers: declModifier << indexOf("declaration", SemanticTokenModifiers),
	}
}

// encodeSemanticTokens packs tokens into the LSP wire format (delta-line, delta-start compression)
func encodeSemanticTokens(tokens []SemanticToken) []uint32 {
	var data []uint32
	var prevLine, prevStart uint32
	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		var deltaStart uint32
		if deltaLine == 0 {
			deltaStart = token.StartChar - prevStart
		} else {
			deltaStart = token.StartChar
		}
		data = append(data, deltaLine, deltaStart, token.Length, uint32(token.TokenType), uint32(token.TokenModifiers))
		prevLine = token.Line
		prevStart = token.StartChar
	}
	return data
}

// indexOf returns the index of a string in a slice, or 0 if not found
func indexOf(target string, list []string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return 0 // Default to first token type if not found
}
