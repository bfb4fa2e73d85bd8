package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"strata/internal/ir"
)

// ErrorLevel represents the severity of an error
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// CompilerError represents a structured diagnostic produced by a pass
type CompilerError struct {
	Level       ErrorLevel
	Kind        Kind
	Code        string      // Error code like E0700
	Message     string      // Primary error message
	Location    ir.Location // Location in source, when parsed from text
	Function    string      // Function the offending operation belongs to
	OpID        int         // Per-function operation ID, 0 when not tied to an operation
	Length      int         // Length of the problematic region
	Suggestions []Suggestion
	Notes       []string // Additional context notes
	HelpText    string
}

// Suggestion represents a suggested fix
type Suggestion struct {
	Message string
}

func (e CompilerError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s[%s] %s: %s", e.Level, e.Code, e.Kind, e.Message))
	if where := e.where(); where != "" {
		b.WriteString(" (" + where + ")")
	}
	return b.String()
}

// where describes the IR position of the diagnostic
func (e CompilerError) where() string {
	var parts []string
	if e.Function != "" {
		if e.OpID > 0 {
			parts = append(parts, fmt.Sprintf("@%s op #%d", e.Function, e.OpID))
		} else {
			parts = append(parts, "@"+e.Function)
		}
	}
	if e.Location.IsKnown() {
		parts = append(parts, e.Location.String())
	}
	return strings.Join(parts, ", ")
}

// ErrorReporter handles consistent error formatting
type ErrorReporter struct {
	filename string
	source   string
	lines    []string
}

// NewErrorReporter creates a new error reporter for a file. source may be empty when the
// module was built in memory.
func NewErrorReporter(filename, source string) *ErrorReporter {
	return &ErrorReporter{
		filename: filename,
		source:   source,
		lines:    strings.Split(source, "\n"),
	}
}

// FormatAll formats every diagnostic of a list followed by a summary line
func (er *ErrorReporter) FormatAll(list List) string {
	var result strings.Builder
	for _, err := range list {
		result.WriteString(er.FormatError(err))
	}
	if len(list) > 0 {
		bold := color.New(color.Bold).SprintFunc()
		result.WriteString(fmt.Sprintf("%s: %d diagnostic(s) emitted\n", bold(er.filename), len(list)))
	}
	return result.String()
}

// FormatError formats a compiler error with Rust-like styling
func (er *ErrorReporter) FormatError(err CompilerError) string {
	var result strings.Builder

	levelColor := er.getLevelColor(err.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	// Header: error[E0700]: message
	if err.Code != "" {
		result.WriteString(fmt.Sprintf("%s[%s]: %s\n",
			levelColor(string(err.Level)), err.Code, err.Message))
	} else {
		result.WriteString(fmt.Sprintf("%s: %s\n",
			levelColor(string(err.Level)), err.Message))
	}

	line := err.Location.Line
	lineNumberWidth := er.getLineNumberWidth(line)
	indent := strings.Repeat(" ", lineNumberWidth)

	// Location line: --> filename:line:column
	if err.Location.IsKnown() {
		filename := er.filename
		if err.Location.File != "" {
			filename = err.Location.File
		}
		result.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n",
			indent, dim("-->"), filename, line, err.Location.Column))
	}
	if err.Function != "" {
		where := "@" + err.Function
		if err.OpID > 0 {
			where += fmt.Sprintf(", op #%d", err.OpID)
		}
		result.WriteString(fmt.Sprintf("%s %s in %s\n", indent, dim("-->"), where))
	}

	if line > 0 && line <= len(er.lines) && er.source != "" {
		result.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

		// Context line before if available
		if line > 1 {
			result.WriteString(fmt.Sprintf("%s %s %s\n",
				dim(fmt.Sprintf("%*d", lineNumberWidth, line-1)),
				dim("│"),
				er.lines[line-2]))
		}

		result.WriteString(fmt.Sprintf("%s %s %s\n",
			bold(fmt.Sprintf("%*d", lineNumberWidth, line)),
			dim("│"),
			er.lines[line-1]))

		marker := er.createMarker(err.Location.Column, err.Length, err.Level)
		result.WriteString(fmt.Sprintf("%s %s %s\n",
			indent, dim("│"), marker))
	}

	if len(err.Suggestions) > 0 {
		result.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))
		suggestionColor := color.New(color.FgCyan).SprintFunc()
		for i, suggestion := range err.Suggestions {
			if i == 0 {
				result.WriteString(fmt.Sprintf("%s %s %s: %s\n",
					indent, suggestionColor("help"), suggestionColor("try"), suggestion.Message))
			} else {
				result.WriteString(fmt.Sprintf("%s %s %s\n",
					indent, suggestionColor("    "), suggestion.Message))
			}
		}
	}

	noteColor := color.New(color.FgBlue).SprintFunc()
	for _, note := range err.Notes {
		result.WriteString(fmt.Sprintf("%s %s %s %s\n",
			indent, dim("│"), noteColor("note:"), note))
	}

	if err.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		result.WriteString(fmt.Sprintf("%s %s %s %s\n",
			indent, dim("│"), helpColor("help:"), err.HelpText))
	}

	result.WriteString("\n")
	return result.String()
}

// getLevelColor returns the appropriate color function for an error level
func (er *ErrorReporter) getLevelColor(level ErrorLevel) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

// createMarker creates the underline marker for errors
func (er *ErrorReporter) createMarker(column, length int, level ErrorLevel) string {
	if length <= 0 {
		length = 1
	}
	spaces := strings.Repeat(" ", max(0, column-1))
	return spaces + er.getLevelColor(level)(strings.Repeat("^", length))
}

// getLineNumberWidth calculates the width needed for line numbers
func (er *ErrorReporter) getLineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3 // minimum width for visual alignment
	}
	return width
}
