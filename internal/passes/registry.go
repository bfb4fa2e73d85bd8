// Package passes exposes the module transformations as named passes and runs pipelines of them.
package passes

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	"strata/internal/errors"
	"strata/internal/ir"
)

var log = commonlog.GetLogger("strata.passes")

// Pass is a named transformation over one module
type Pass interface {
	Name() string
	Description() string
	Run(ctx context.Context, m *ir.Module) error
}

// Factory builds a pass from its validated options
type Factory func(opts Options) (Pass, error)

// Registration describes a pass known to the registry
type Registration struct {
	Name        string
	Description string
	Options     []string // Accepted option keys
	Factory     Factory
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Registration{}
)

// Register makes a pass available to pipelines. It panics on a duplicate name.
func Register(r *Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[r.Name]; exists {
		panic(fmt.Sprintf("pass %s registered twice", r.Name))
	}
	registry[r.Name] = r
}

// Lookup returns the registration of a pass, or nil when unknown
func Lookup(name string) *Registration {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// Names returns the registered pass names, sorted
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options are the raw option values of one pipeline entry
type Options map[string]string

// Int returns an integer option or def when it is absent
func (o Options) Int(key string, def int) (int, error) {
	raw, ok := o[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("option %s: %q is not an integer", key, raw)
	}
	return n, nil
}

// Bool returns a boolean option or def when it is absent
func (o Options) Bool(key string, def bool) (bool, error) {
	raw, ok := o[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("option %s: %q is not a boolean", key, raw)
	}
	return b, nil
}

// List returns a comma separated option as a slice, dropping empty entries
func (o Options) List(key string) []string {
	var items []string
	for _, item := range strings.Split(o[key], ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Instantiate builds the pass described by spec
func Instantiate(spec Spec) (Pass, error) {
	r := Lookup(spec.Name)
	if r == nil {
		return nil, errors.NewDiagnostic(errors.KindInvalidConfiguration,
			fmt.Sprintf("unknown pass %s", spec.Name)).
			WithNote(fmt.Sprintf("available passes: %s", strings.Join(Names(), ", "))).
			Build()
	}
	for key := range spec.Options {
		if !contains(r.Options, key) {
			b := errors.NewDiagnostic(errors.KindInvalidConfiguration,
				fmt.Sprintf("pass %s has no option %s", spec.Name, key))
			if len(r.Options) > 0 {
				b.WithNote(fmt.Sprintf("accepted options: %s", strings.Join(r.Options, ", ")))
			}
			return nil, b.Build()
		}
	}
	pass, err := r.Factory(Options(spec.Options))
	if diag, ok := err.(errors.CompilerError); ok {
		return nil, diag
	}
	if err != nil {
		return nil, errors.NewDiagnostic(errors.KindInvalidConfiguration,
			fmt.Sprintf("pass %s: %s", spec.Name, err)).
			Build()
	}
	return pass, nil
}

func contains(items []string, item string) bool {
	for _, i := range items {
		if i == item {
			return true
		}
	}
	return false
}

// Pipeline runs passes in order, stopping at the first failure
type Pipeline struct {
	specs  []Spec
	passes []Pass
}

// Build parses a pipeline description and instantiates every pass in it
func Build(text string) (*Pipeline, error) {
	specs, err := ParsePipeline(text)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{specs: specs}
	for _, spec := range specs {
		pass, err := Instantiate(spec)
		if err != nil {
			return nil, err
		}
		p.passes = append(p.passes, pass)
	}
	return p, nil
}

// Passes returns the instantiated passes in execution order
func (p *Pipeline) Passes() []Pass {
	return p.passes
}

// String returns the canonical description of the pipeline
func (p *Pipeline) String() string {
	parts := make([]string, len(p.specs))
	for i, s := range p.specs {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// Run executes the pipeline on m. A failing pass leaves m as that pass left it.
func (p *Pipeline) Run(ctx context.Context, m *ir.Module) error {
	for _, pass := range p.passes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline abandoned before %s: %w", pass.Name(), err)
		}
		log.Infof("running %s on @%s", pass.Name(), m.Name)
		if err := pass.Run(ctx, m); err != nil {
			log.Infof("%s failed: %d diagnostics", pass.Name(), len(errors.AsList(err)))
			return fmt.Errorf("%s: %w", pass.Name(), err)
		}
	}
	return nil
}
