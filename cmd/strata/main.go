// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"strata/internal/config"
	"strata/internal/errors"
	"strata/internal/ir"
	"strata/internal/parser"
	"strata/internal/passes"
	"strata/internal/repl"
)

// stdin feeds the interactive session
var stdin io.Reader = os.Stdin

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	config     string
	pipeline   string
	output     string
	verbosity  int
	noColor    bool
	listPasses bool
	interact   bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("strata", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: strata [-config strata.yaml] [-pipeline passes] [-o out.sir] <file.sir>")
		fs.PrintDefaults()
	}

	var opts options
	fs.StringVar(&opts.config, "config", "", "configuration file (default: nearest "+config.FileName+")")
	fs.StringVar(&opts.pipeline, "pipeline", "", "pass pipeline, overrides the configuration")
	fs.StringVar(&opts.output, "o", "", "write the transformed module to this file instead of stdout")
	fs.IntVar(&opts.verbosity, "v", 0, "log verbosity (0 quiet, 1 info, 2 debug)")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable colored diagnostics")
	fs.BoolVar(&opts.listPasses, "list-passes", false, "list the available passes and exit")
	fs.BoolVar(&opts.interact, "i", false, "step through passes interactively instead of running the pipeline")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	color.NoColor = opts.noColor || !isTerminal(stderr)
	commonlog.Configure(opts.verbosity, nil)

	if opts.listPasses {
		for _, name := range passes.Names() {
			fmt.Fprintf(stdout, "%-36s %s\n", name, passes.Lookup(name).Description)
		}
		return 0
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	startTime := time.Now()
	path := fs.Arg(0)
	red := color.New(color.FgRed).SprintFunc()

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "%s: failed to read file: %v\n", red("error"), err)
		return 1
	}
	reporter := errors.NewErrorReporter(path, string(source))

	cfg, err := loadConfig(opts, path)
	if err != nil {
		fmt.Fprint(stderr, reporter.FormatAll(errors.AsList(err)))
		return 1
	}

	m, parseErrors := parser.ParseSource(path, string(source))
	if len(parseErrors) > 0 {
		var list errors.List
		for _, pe := range parseErrors {
			list.Add(errors.NewDiagnostic(errors.KindParse, pe.Message).
				At(ir.Location{File: path, Line: pe.Position.Line, Column: pe.Position.Column}).
				Build())
		}
		fmt.Fprint(stderr, reporter.FormatAll(list))
		color.New(color.FgRed).Fprintf(stderr, "Parsing failed after %s\n", formatDuration(time.Since(startTime)))
		return 1
	}
	cfg.ApplyBounds(m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.interact {
		session := &repl.Session{Path: path, Source: string(source), Config: cfg, Module: m}
		if err := repl.Start(ctx, stdin, stdout, session); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", red("error"), err)
			return 1
		}
		return 0
	}

	pipeline, err := cfg.Build()
	if err != nil {
		fmt.Fprint(stderr, reporter.FormatAll(errors.AsList(err)))
		return 1
	}

	if err := pipeline.Run(ctx, m); err != nil {
		fmt.Fprint(stderr, reporter.FormatAll(errors.AsList(err)))
		color.New(color.FgRed).Fprintf(stderr, "%s failed after %s\n", pipeline, formatDuration(time.Since(startTime)))
		return 1
	}

	if err := writeModule(opts.output, stdout, m); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", red("error"), err)
		return 1
	}
	color.New(color.FgGreen).Fprintf(stderr, "Successfully processed %s in %s\n", path, formatDuration(time.Since(startTime)))
	return 0
}

// loadConfig resolves the configuration: the -config file, else the nearest strata.yaml,
// else the defaults. A -pipeline flag replaces the configured pipeline.
func loadConfig(opts options, input string) (*config.Config, error) {
	path := opts.config
	if path == "" {
		found, err := config.Find(filepath.Dir(input))
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.pipeline != "" {
		cfg.Pipeline = opts.pipeline
	}
	return cfg, nil
}

func writeModule(path string, stdout io.Writer, m *ir.Module) error {
	text := ir.Print(m)
	if path == "" {
		_, err := io.WriteString(stdout, text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
