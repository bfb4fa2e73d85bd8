package grammar

import (
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"
)

var (
	parser     = buildParser[File]()
	typeParser = buildParser[Type]()
)

func buildParser[T any]() *participle.Parser[T] {
	p, err := participle.Build[T](
		participle.Lexer(IRLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.Unquote("String"),
		participle.UseLookahead(3),
	)
	if err != nil {
		panic(fmt.Errorf("failed to build parser: %w", err))
	}
	return p
}

// ParseFile reads and parses a textual IR file
func ParseFile(path string) (*File, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseString(path, string(source))
}

// ParseString parses textual IR held in memory
func ParseString(name, source string) (*File, error) {
	return parser.ParseString(name, source)
}

// ParseType parses a standalone type such as "vtensor<[2,3],f32>"
func ParseType(source string) (*Type, error) {
	return typeParser.ParseString("", source)
}

// ErrorPosition extracts the source position from a participle error
func ErrorPosition(err error) (line, column int, message string, ok bool) {
	pe, isParticiple := err.(participle.Error)
	if !isParticiple {
		return 0, 0, err.Error(), false
	}
	pos := pe.Position()
	return pos.Line, pos.Column, pe.Message(), true
}
