package passes

import (
	"fmt"
	"sort"
	"strings"

	"strata/internal/errors"
)

// Spec is one parsed entry of a pipeline description: a pass name and its raw options
type Spec struct {
	Name    string
	Options map[string]string
}

func (s Spec) String() string {
	if len(s.Options) == 0 {
		return s.Name
	}
	keys := make([]string, 0, len(s.Options))
	for k := range s.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + s.Options[k]
	}
	return s.Name + "{" + strings.Join(parts, " ") + "}"
}

// ParsePipeline splits a description such as "a,b{k=v k2=x,y},c" into pass specs.
// Commas separate passes only outside braces; options are space separated key=value pairs.
func ParsePipeline(text string) ([]Spec, error) {
	entries, err := splitTopLevel(text)
	if err != nil {
		return nil, err
	}
	specs := make([]Spec, 0, len(entries))
	for _, entry := range entries {
		spec, err := parseEntry(entry)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func splitTopLevel(text string) ([]string, error) {
	var entries []string
	depth, start := 0, 0
	for i, r := range text {
		switch r {
		case '{':
			depth++
			if depth > 1 {
				return nil, invalidPipeline(text, "nested '{' at offset %d", i)
			}
		case '}':
			depth--
			if depth < 0 {
				return nil, invalidPipeline(text, "unmatched '}' at offset %d", i)
			}
		case ',':
			if depth == 0 {
				entries = append(entries, text[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, invalidPipeline(text, "unterminated option list")
	}
	entries = append(entries, text[start:])
	if len(entries) == 1 && strings.TrimSpace(entries[0]) == "" {
		return nil, invalidPipeline(text, "no passes given")
	}
	return entries, nil
}

func parseEntry(entry string) (Spec, error) {
	entry = strings.TrimSpace(entry)
	name, rest, hasOptions := strings.Cut(entry, "{")
	name = strings.TrimSpace(name)
	if name == "" {
		return Spec{}, invalidPipeline(entry, "empty pass name")
	}
	spec := Spec{Name: name}
	if !hasOptions {
		return spec, nil
	}
	body, ok := strings.CutSuffix(strings.TrimSpace(rest), "}")
	if !ok {
		return Spec{}, invalidPipeline(entry, "text after the option list of %s", name)
	}
	spec.Options = make(map[string]string)
	for _, field := range strings.Fields(body) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return Spec{}, invalidPipeline(entry, "option %q of %s is not key=value", field, name)
		}
		if _, dup := spec.Options[key]; dup {
			return Spec{}, invalidPipeline(entry, "option %s of %s given twice", key, name)
		}
		spec.Options[key] = value
	}
	return spec, nil
}

func invalidPipeline(text, format string, args ...any) error {
	return errors.NewDiagnostic(errors.KindInvalidConfiguration,
		fmt.Sprintf("invalid pass pipeline: "+format, args...)).
		WithNote(fmt.Sprintf("in %q", text)).
		Build()
}
