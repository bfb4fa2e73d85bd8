package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"strata/internal/ir"
)

// DiagnosticBuilder provides a fluent interface for creating diagnostics
type DiagnosticBuilder struct {
	err CompilerError
}

// NewDiagnostic creates a new error builder for the given kind
func NewDiagnostic(kind Kind, message string) *DiagnosticBuilder {
	return &DiagnosticBuilder{
		err: CompilerError{
			Level:   Error,
			Kind:    kind,
			Code:    CodeFor(kind),
			Message: message,
			Length:  1,
		},
	}
}

// At sets the source location
func (b *DiagnosticBuilder) At(loc ir.Location) *DiagnosticBuilder {
	b.err.Location = loc
	return b
}

// InFunction ties the diagnostic to a function
func (b *DiagnosticBuilder) InFunction(name string) *DiagnosticBuilder {
	b.err.Function = name
	return b
}

// ForOp ties the diagnostic to an operation: its function, ID and location
func (b *DiagnosticBuilder) ForOp(op *ir.Operation) *DiagnosticBuilder {
	if fn := op.Function(); fn != nil {
		b.err.Function = fn.Name
	}
	b.err.OpID = op.ID
	if op.Loc.IsKnown() {
		b.err.Location = op.Loc
	}
	return b
}

// WithLength sets the length of the error span
func (b *DiagnosticBuilder) WithLength(length int) *DiagnosticBuilder {
	b.err.Length = length
	return b
}

// WithSuggestion adds a suggestion to the error
func (b *DiagnosticBuilder) WithSuggestion(message string) *DiagnosticBuilder {
	b.err.Suggestions = append(b.err.Suggestions, Suggestion{Message: message})
	return b
}

// WithNote adds a note to the error
func (b *DiagnosticBuilder) WithNote(note string) *DiagnosticBuilder {
	b.err.Notes = append(b.err.Notes, note)
	return b
}

// WithHelp adds help text to the error
func (b *DiagnosticBuilder) WithHelp(help string) *DiagnosticBuilder {
	b.err.HelpText = help
	return b
}

// Build returns the completed compiler error
func (b *DiagnosticBuilder) Build() CompilerError {
	return b.err
}

// List is an ordered collection of diagnostics returned as a single error
type List []CompilerError

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d errors:\n  %s", len(l), strings.Join(msgs, "\n  "))
}

// Add appends diagnostics to the list
func (l *List) Add(errs ...CompilerError) {
	*l = append(*l, errs...)
}

// Err returns the list as an error, or nil when it is empty
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// HasKind reports whether any diagnostic has the given kind
func (l List) HasKind(kind Kind) bool {
	for _, e := range l {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Kinds returns the distinct kinds present in the list, sorted
func (l List) Kinds() []Kind {
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, e := range l {
		if !seen[e.Kind] {
			seen[e.Kind] = true
			kinds = append(kinds, e.Kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// AsList extracts the diagnostics carried by err. Errors that are not diagnostics are
// wrapped into a single MalformedInputFailure.
func AsList(err error) List {
	if err == nil {
		return nil
	}
	var list List
	if stderrors.As(err, &list) {
		return list
	}
	var single CompilerError
	if stderrors.As(err, &single) {
		return List{single}
	}
	return List{NewDiagnostic(KindMalformedInput, err.Error()).Build()}
}

// Common diagnostic constructors

// RootCount creates an error for an instance graph without exactly one root
func RootCount(roots []string) CompilerError {
	if len(roots) == 0 {
		return NewDiagnostic(KindStructuralViolation, "instance graph has no root").
			WithNote("every instance is held by a slot of another instance, which implies a cycle").
			Build()
	}
	return NewDiagnostic(KindStructuralViolation, fmt.Sprintf("instance graph has %d roots", len(roots))).
		WithNote(fmt.Sprintf("unreferenced instances: %s", strings.Join(roots, ", "))).
		WithHelp("exactly one instance may be left unreferenced by other instances' slots").
		Build()
}

// SharedInstance creates an error for an instance reachable along two slot paths
func SharedInstance(class string, first, second string) CompilerError {
	return NewDiagnostic(KindStructuralViolation,
		fmt.Sprintf("instance of class @%s is reachable by two paths: '%s' and '%s'", class, displayPath(first), displayPath(second))).
		WithHelp("give each slot its own instance").
		Build()
}

// InstanceCycle creates an error for a slot edge that closes a cycle
func InstanceCycle(class string, path, back string) CompilerError {
	return NewDiagnostic(KindStructuralViolation,
		fmt.Sprintf("instance of class @%s at '%s' is reached again through '%s'", class, displayPath(path), displayPath(back))).
		WithNote("instance graphs must be acyclic").
		Build()
}

// UnreachableInstance creates an error for an instance the root does not reach
func UnreachableInstance(class string, id int, loc ir.Location) CompilerError {
	return NewDiagnostic(KindStructuralViolation,
		fmt.Sprintf("instance #%d of class @%s is not reachable from the root", id, class)).
		At(loc).
		Build()
}

// ConflictingBinding creates an error for call sites binding different instances to one parameter
func ConflictingBinding(function string, param string, first, second string) CompilerError {
	return NewDiagnostic(KindMonomorphizationFailure,
		fmt.Sprintf("parameter %%%s of @%s is bound to instance '%s' and to instance '%s'", param, function, displayPath(first), displayPath(second))).
		InFunction(function).
		WithHelp("every call site must pass the same instance for an instance-typed parameter").
		Build()
}

// AliasedSlots creates an error for two slots sharing a non-primitive initial value
func AliasedSlots(first, second string, loc ir.Location) CompilerError {
	return NewDiagnostic(KindAliasViolation,
		fmt.Sprintf("slots '%s' and '%s' share the same initial value", first, second)).
		At(loc).
		WithSuggestion("initialize each slot with its own value").
		Build()
}

// UnknownMethod creates an error for a method a class does not declare
func UnknownMethod(class, method string, op *ir.Operation, available []string) CompilerError {
	builder := NewDiagnostic(KindMalformedInput, fmt.Sprintf("class @%s has no method '%s'", class, method)).
		ForOp(op).
		WithLength(len(method))
	if similar := findSimilarNames(method, available); len(similar) > 0 {
		builder = builder.WithSuggestion(fmt.Sprintf("did you mean '%s'?", strings.Join(similar, "', '")))
	}
	return builder.Build()
}

// UndefinedFunction creates an error for a call to a function the module does not define
func UndefinedFunction(name string, op *ir.Operation, available []string) CompilerError {
	builder := NewDiagnostic(KindMalformedInput, fmt.Sprintf("call to undefined function @%s", name)).
		ForOp(op)
	if similar := findSimilarNames(name, available); len(similar) > 0 {
		builder = builder.WithSuggestion(fmt.Sprintf("did you mean '@%s'?", strings.Join(similar, "', '@")))
	}
	return builder.Build()
}

// MissingBound creates an error for a by-name type bound absent from the bound table
func MissingBound(bound, function, param string) CompilerError {
	return NewDiagnostic(KindMalformedInput,
		fmt.Sprintf("parameter %%%s of @%s references undefined bound @%s", param, function, bound)).
		InFunction(function).
		WithHelp("declare the bound in the module or in the type_bounds configuration").
		Build()
}

func displayPath(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

func findSimilarNames(target string, candidates []string) []string {
	var similar []string
	for _, candidate := range candidates {
		if levenshteinDistance(target, candidate) <= 2 && len(candidate) > 2 {
			similar = append(similar, candidate)
		}
	}
	return similar
}

// Simple Levenshtein distance implementation for finding similar names
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
	}
	for i := 0; i <= len(a); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}
