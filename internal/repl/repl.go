// Package repl steps a module through passes one command at a time, printing the IR in
// between.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tliron/commonlog"

	"strata/internal/catalog"
	"strata/internal/config"
	"strata/internal/contract"
	"strata/internal/errors"
	"strata/internal/ir"
	"strata/internal/parser"
	"strata/internal/passes"
)

var log = commonlog.GetLogger("strata.repl")

const Prompt = "strata> "

const help = `commands:
  print [@fn]      print the module or one function
  run <pipeline>   run a pass pipeline, e.g. run globalize-object-graph
  verify           check the backend contract without rewriting
  passes           list the available passes
  reset            discard every rewrite and reparse the source
  help             show this text
  quit             leave
`

// Session is the state carried between commands
type Session struct {
	Path   string
	Source string
	Config *config.Config
	Module *ir.Module
}

// NewSession parses source and applies the configured type bounds
func NewSession(path, source string, cfg *config.Config) (*Session, error) {
	s := &Session{Path: path, Source: source, Config: cfg}
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset replaces the module with a fresh parse of the source
func (s *Session) Reset() error {
	m, parseErrors := parser.ParseSource(s.Path, s.Source)
	if len(parseErrors) > 0 {
		var list errors.List
		for _, pe := range parseErrors {
			list.Add(errors.NewDiagnostic(errors.KindParse, pe.Message).
				At(ir.Location{File: s.Path, Line: pe.Position.Line, Column: pe.Position.Column}).
				Build())
		}
		return list.Err()
	}
	s.Config.ApplyBounds(m)
	s.Module = m
	return nil
}

// Run builds a pipeline from text using the session's settings and runs it on the module
func (s *Session) Run(ctx context.Context, text string) error {
	cfg := *s.Config
	cfg.Pipeline = text
	pipeline, err := cfg.Build()
	if err != nil {
		return err
	}
	return pipeline.Run(ctx, s.Module)
}

// Verify checks the module against the backend contract with the configured legal ops
func (s *Session) Verify() *contract.Report {
	return contract.Verify(s.Module, contract.Options{
		LegalOps: s.Config.LegalOps,
		Catalog:  catalog.NewDecomposer(),
	})
}

// Start reads commands from in until quit or end of input
func Start(ctx context.Context, in io.Reader, out io.Writer, s *Session) error {
	scanner := bufio.NewScanner(in)
	reporter := errors.NewErrorReporter(s.Path, s.Source)

	for {
		fmt.Fprint(out, Prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		command, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)
		log.Debugf("command %q %q", command, arg)

		switch command {
		case "":
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprint(out, help)
		case "passes":
			for _, name := range passes.Names() {
				fmt.Fprintf(out, "%-36s %s\n", name, passes.Lookup(name).Description)
			}
		case "print":
			if arg == "" {
				fmt.Fprint(out, ir.Print(s.Module))
				continue
			}
			fn := s.Module.Function(strings.TrimPrefix(arg, "@"))
			if fn == nil {
				fmt.Fprintf(out, "no function %s\n", arg)
				continue
			}
			fmt.Fprint(out, ir.PrintFunction(fn))
		case "run":
			if arg == "" {
				fmt.Fprintln(out, "usage: run <pipeline>")
				continue
			}
			if err := s.Run(ctx, arg); err != nil {
				fmt.Fprint(out, reporter.FormatAll(errors.AsList(err)))
				fmt.Fprintln(out, "the module may be partially rewritten, use reset to start over")
				continue
			}
			fmt.Fprintln(out, "ok")
		case "verify":
			report := s.Verify()
			fmt.Fprintln(out, report.Summary())
			if !report.Satisfied() {
				fmt.Fprint(out, reporter.FormatAll(errors.AsList(report.Err())))
			}
		case "reset":
			if err := s.Reset(); err != nil {
				fmt.Fprint(out, reporter.FormatAll(errors.AsList(err)))
				continue
			}
			fmt.Fprintln(out, "reset")
		default:
			fmt.Fprintf(out, "unknown command %q, try help\n", command)
		}
	}
}
