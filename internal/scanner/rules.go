package scanner

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule is a single static pattern and the files it applies to.
type Rule struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Languages   []string `yaml:"languages"`  // search API language qualifiers
	FileTypes   []string `yaml:"file_types"` // file extensions without the dot
	Keywords    []string `yaml:"keywords"`   // prefilter substrings
	Pattern     string   `yaml:"pattern"`
}

type ruleFile struct {
	Rules []*Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule file.
func LoadRules(r io.Reader) ([]*Rule, error) {
	var f ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	seen := make(map[string]bool, len(f.Rules))
	for i, rule := range f.Rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("duplicate rule %q", rule.Name)
		}
		seen[rule.Name] = true
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %q has no pattern", rule.Name)
		}
		if len(rule.FileTypes) == 0 {
			return nil, fmt.Errorf("rule %q has no file types", rule.Name)
		}

		for j, ext := range rule.FileTypes {
			rule.FileTypes[j] = strings.ToLower(strings.TrimPrefix(ext, "."))
		}
		for j, kw := range rule.Keywords {
			rule.Keywords[j] = strings.ToLower(kw)
		}
	}

	return f.Rules, nil
}

// DefaultRules returns the built-in rules.
func DefaultRules() []*Rule {
	rules, err := LoadRules(bytes.NewReader(defaultRules))
	if err != nil {
		panic(fmt.Sprintf("built-in rules: %v", err))
	}
	return rules
}

// Select returns the rules with the given names, in the order first named.
// Repeated names select a rule once. No names selects every rule.
func Select(rules []*Rule, names []string) ([]*Rule, error) {
	if len(names) == 0 {
		return rules, nil
	}

	selected := make([]*Rule, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(rules, func(r *Rule) bool { return r.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown rule %q", name)
		}
		if !slices.Contains(selected, rules[i]) {
			selected = append(selected, rules[i])
		}
	}
	return selected, nil
}

// Languages returns the sorted union of the rules' languages.
func Languages(rules []*Rule) []string {
	var languages []string
	for _, rule := range rules {
		languages = append(languages, rule.Languages...)
	}
	slices.Sort(languages)
	return slices.Compact(languages)
}

// Names returns the rule names in order.
func Names(rules []*Rule) []string {
	names := make([]string, len(rules))
	for i, rule := range rules {
		names[i] = rule.Name
	}
	return names
}
