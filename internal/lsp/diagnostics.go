package lsp

import (
	"fmt"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"strata/internal/contract"
	"strata/internal/errors"
	"strata/internal/ir"
	"strata/internal/parser"
)

// ConvertParseErrors transforms parser errors into LSP diagnostics for IDE display.
func ConvertParseErrors(parseErrors []parser.ParseError) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic

	for _, parseErr := range parseErrors {
		diagnostic := protocol.Diagnostic{
			Range:    span(parseErr.Position.Line, parseErr.Position.Column, 6), // Rough span for visibility
			Severity: ptrSeverity(protocol.DiagnosticSeverityError),
			Code:     &protocol.IntegerOrString{Value: errors.ErrorParse},
			Source:   ptrString("strata-parser"),
			Message:  parseErr.Message,
		}
		diagnostics = append(diagnostics, diagnostic)
	}

	return diagnostics
}

// ConvertCompilerErrors transforms pass diagnostics into LSP diagnostics. Notes, help and
// suggestions are appended to the message since most editors show only the message.
func ConvertCompilerErrors(list errors.List) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic

	for _, e := range list {
		var msg strings.Builder
		msg.WriteString(fmt.Sprintf("%s: %s", e.Kind, e.Message))
		if e.Function != "" {
			msg.WriteString(fmt.Sprintf(" (in @%s)", e.Function))
		}
		for _, note := range e.Notes {
			msg.WriteString("\nnote: " + note)
		}
		if e.HelpText != "" {
			msg.WriteString("\nhelp: " + e.HelpText)
		}
		for _, s := range e.Suggestions {
			msg.WriteString("\nsuggestion: " + s.Message)
		}

		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    locationSpan(e.Location, e.Length),
			Severity: ptrSeverity(severity(e.Level)),
			Code:     &protocol.IntegerOrString{Value: e.Code},
			Source:   ptrString("strata"),
			Message:  msg.String(),
		})
	}

	return diagnostics
}

// ConvertContractReport turns every offender of an unmet check into a warning at the
// offender's location
func ConvertContractReport(report *contract.Report) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic
	if report == nil {
		return diagnostics
	}

	for _, check := range report.Checks {
		for _, o := range check.Offenders {
			message := o.What
			if o.Function != "" {
				message = fmt.Sprintf("%s (in @%s)", message, o.Function)
			}
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Range:    locationSpan(o.Loc, 1),
				Severity: ptrSeverity(protocol.DiagnosticSeverityWarning),
				Code:     &protocol.IntegerOrString{Value: errors.ErrorContractViolation},
				Source:   ptrString("strata-contract/" + check.Name),
				Message:  message,
			})
		}
	}

	return diagnostics
}

func severity(level errors.ErrorLevel) protocol.DiagnosticSeverity {
	switch level {
	case errors.Warning:
		return protocol.DiagnosticSeverityWarning
	case errors.Note, errors.Help:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityError
	}
}

// locationSpan places a diagnostic at loc, or at the start of the document when the
// location was lost during rewriting
func locationSpan(loc ir.Location, length int) protocol.Range {
	if !loc.IsKnown() {
		return span(1, 1, 1)
	}
	if length < 1 {
		length = 1
	}
	return span(loc.Line, loc.Column, length)
}

// span converts a 1-based line and column into a 0-based LSP range
func span(line, column, length int) protocol.Range {
	if line < 1 {
		line = 1
	}
	if column < 1 {
		column = 1
	}
	return protocol.Range{
		Start: protocol.Position{Line: uint32(line - 1), Character: uint32(column - 1)},
		End:   protocol.Position{Line: uint32(line - 1), Character: uint32(column - 1 + length)},
	}
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func ptrString(s string) *string {
	return &s
}
