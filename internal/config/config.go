// Package config loads strata.yaml, the project file describing which passes to run and
// how to lower.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"

	"strata/internal/errors"
	"strata/internal/ir"
	"strata/internal/lowering"
	"strata/internal/parser"
	"strata/internal/passes"
)

var log = commonlog.GetLogger("strata.config")

// FileName is the configuration file looked up next to the input
const FileName = "strata.yaml"

// Config represents strata.yaml
type Config struct {
	// Pipeline is a pass pipeline such as "globalize-object-graph,lower-to-backend-contract".
	// Defaults to the full object-graph-to-backend pipeline.
	Pipeline string `yaml:"pipeline,omitempty"`

	// MaxIterations bounds the lowering loop. Applies to lowering entries that do not set
	// max-iterations themselves.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// Decompose enables the decomposition catalog during lowering. Defaults to true.
	Decompose *bool `yaml:"decompose,omitempty"`

	// LegalOps are operations the backend accepts as they are
	LegalOps []string `yaml:"legal_ops,omitempty"`

	// TypeBounds maps bound names to type text, e.g. input: "vtensor<[1,3],f32>"
	TypeBounds map[string]string `yaml:"type_bounds,omitempty"`

	bounds map[string]ir.Type
}

// Default returns the configuration used when no strata.yaml exists
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads and validates a strata.yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses strata.yaml content. The path is used only in diagnostics.
func Parse(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewDiagnostic(errors.KindInvalidConfiguration,
			fmt.Sprintf("parsing %s: %s", path, err)).
			Build()
	}
	cfg.setDefaults()
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	log.Debugf("loaded %s: pipeline %s", path, cfg.Pipeline)
	return &cfg, nil
}

// Find searches for strata.yaml from dir up to the filesystem root. It returns an empty
// path and no error when there is none.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range []string{FileName, "strata.yml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) setDefaults() {
	if c.Pipeline == "" {
		c.Pipeline = passes.DefaultPipeline
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = lowering.DefaultMaxIterations
	}
	if c.Decompose == nil {
		decompose := true
		c.Decompose = &decompose
	}
}

// validate checks every field and reports all problems at once
func (c *Config) validate(path string) error {
	var list errors.List
	invalid := func(format string, args ...any) {
		list.Add(errors.NewDiagnostic(errors.KindInvalidConfiguration,
			fmt.Sprintf("%s: %s", path, fmt.Sprintf(format, args...))).
			Build())
	}

	if c.MaxIterations < 0 {
		invalid("max_iterations must be positive, got %d", c.MaxIterations)
	}
	for i, op := range c.LegalOps {
		if strings.TrimSpace(op) == "" || strings.ContainsAny(op, ", {}") {
			invalid("legal_ops[%d]: %q is not an operation name", i, op)
		}
	}

	c.bounds = make(map[string]ir.Type, len(c.TypeBounds))
	for _, name := range sortedKeys(c.TypeBounds) {
		t, err := parser.ParseType(c.TypeBounds[name])
		if err != nil {
			invalid("type_bounds.%s: %s", name, err)
			continue
		}
		c.bounds[name] = t
	}

	if len(list) == 0 {
		if _, err := c.Build(); err != nil {
			for _, d := range errors.AsList(err) {
				d.Message = fmt.Sprintf("%s: %s", path, d.Message)
				list.Add(d)
			}
		}
	}
	return list.Err()
}

// Bounds returns the parsed type bounds
func (c *Config) Bounds() map[string]ir.Type {
	return c.bounds
}

// ApplyBounds adds the configured type bounds to m. Bounds the module declares itself win.
func (c *Config) ApplyBounds(m *ir.Module) {
	if len(c.bounds) == 0 {
		return
	}
	if m.TypeBounds == nil {
		m.TypeBounds = make(map[string]ir.Type, len(c.bounds))
	}
	for name, t := range c.bounds {
		if existing, ok := m.TypeBounds[name]; ok {
			if !ir.SameType(existing, t) {
				log.Infof("bound @%s: keeping module declaration %s over configured %s", name, existing, t)
			}
			continue
		}
		m.TypeBounds[name] = t
	}
}

// PipelineText returns the pipeline with the lowering settings filled into every
// lower-to-backend-contract entry that does not set them itself
func (c *Config) PipelineText() (string, error) {
	specs, err := passes.ParsePipeline(c.Pipeline)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(specs))
	for i, spec := range specs {
		if spec.Name == passes.LowerToBackendContract {
			if spec.Options == nil {
				spec.Options = make(map[string]string)
			}
			setDefault(spec.Options, "max-iterations", strconv.Itoa(c.MaxIterations))
			setDefault(spec.Options, "decompose", strconv.FormatBool(*c.Decompose))
			if len(c.LegalOps) > 0 {
				setDefault(spec.Options, "legal-ops", strings.Join(c.LegalOps, ","))
			}
		}
		parts[i] = spec.String()
	}
	return strings.Join(parts, ","), nil
}

// Build instantiates the configured pipeline
func (c *Config) Build() (*passes.Pipeline, error) {
	text, err := c.PipelineText()
	if err != nil {
		return nil, err
	}
	return passes.Build(text)
}

func setDefault(options map[string]string, key, value string) {
	if _, ok := options[key]; !ok {
		options[key] = value
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
