/*
 *  rule.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/valyala/fasttemplate"
)

// Resources are the per-job reservations the scheduler charges against
// its global budget
type Resources struct {
	MemMB  int `yaml:"mem_mb" json:"mem_mb"`
	DiskMB int `yaml:"disk_mb" json:"disk_mb"`
}

// Rule declares one transformation step: which files it consumes, which
// it produces, and the shell command that bridges them. Paths are
// patterns; a rule is instantiated into jobs by wildcard substitution.
type Rule struct {
	Name      string
	Doc       string
	Input     []string
	Output    []string
	Log       string
	Benchmark string
	Shell     string
	Threads   int
	Resources Resources
	Params    map[string]string
	Priority  int
	Retries   int
}

// Workflow is a named set of rules plus the default target paths that
// define a complete run
type Workflow struct {
	Name        string
	Description string
	Rules       []*Rule
	Targets     []string
}

// Validate normalizes the rule and rejects declarations that could never
// be planned: malformed patterns, outputs with disagreeing wildcard sets,
// or inputs mentioning wildcards the outputs do not determine
func (r *Rule) Validate() error {
	if !wildcardNameRe.MatchString(r.Name) {
		return fmt.Errorf("rule name %q is not a valid identifier", r.Name)
	}
	if r.Threads < 1 {
		r.Threads = 1
	}
	if r.Retries < 0 {
		return fmt.Errorf("rule %s: negative retries", r.Name)
	}
	if r.Resources.MemMB < 0 || r.Resources.DiskMB < 0 {
		return fmt.Errorf("rule %s: negative resource reservation", r.Name)
	}
	if len(r.Output) == 0 && r.Shell != "" {
		return fmt.Errorf("rule %s: shell command but no outputs", r.Name)
	}
	if len(r.Output) > 0 && r.Shell == "" {
		return fmt.Errorf("rule %s: outputs declared but no shell command", r.Name)
	}

	outNames, err := patternNames(r.Name, "output", r.Output)
	if err != nil {
		return err
	}
	if len(r.Output) > 1 {
		first, _ := MakePattern(r.Output[0])
		for _, out := range r.Output[1:] {
			p, _ := MakePattern(out)
			if !sameNames(first.Names(), p.Names()) {
				return fmt.Errorf("rule %s: outputs %q and %q use different wildcards",
					r.Name, r.Output[0], out)
			}
		}
	}

	inNames, err := patternNames(r.Name, "input", r.Input)
	if err != nil {
		return err
	}
	for name := range inNames {
		if !outNames[name] {
			return fmt.Errorf("rule %s: input wildcard {%s} not determined by any output",
				r.Name, name)
		}
	}
	for label, path := range map[string]string{"log": r.Log, "benchmark": r.Benchmark} {
		if path == "" {
			continue
		}
		p, err := MakePattern(path)
		if err != nil {
			return errors.Wrapf(err, "rule %s: %s", r.Name, label)
		}
		for _, name := range p.Names() {
			if !outNames[name] {
				return fmt.Errorf("rule %s: %s wildcard {%s} not determined by any output",
					r.Name, label, name)
			}
		}
	}
	return nil
}

// patternNames parses a pattern list and collects its wildcard names
func patternNames(rule, label string, patterns []string) (map[string]bool, error) {
	names := make(map[string]bool)
	for _, text := range patterns {
		p, err := MakePattern(text)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %s: %s", rule, label)
		}
		for _, name := range p.Names() {
			names[name] = true
		}
	}
	return names, nil
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, name := range a {
		set[name] = true
	}
	for _, name := range b {
		if !set[name] {
			return false
		}
	}
	return true
}

// Validate checks the whole workflow: every rule valid, names unique,
// and no two rules claiming the identical output pattern
func (w *Workflow) Validate() error {
	if len(w.Rules) == 0 {
		return fmt.Errorf("workflow %s declares no rules", w.Name)
	}
	seen := make(map[string]bool, len(w.Rules))
	outputs := make(map[string]string)
	for _, r := range w.Rules {
		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "workflow %s", w.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("workflow %s: duplicate rule name %q", w.Name, r.Name)
		}
		seen[r.Name] = true
		for _, out := range r.Output {
			if owner, ok := outputs[out]; ok {
				return fmt.Errorf("workflow %s: rules %s and %s both declare output %q",
					w.Name, owner, r.Name, out)
			}
			outputs[out] = r.Name
		}
	}
	return nil
}

// Rule looks a rule up by name, nil when absent
func (w *Workflow) Rule(name string) *Rule {
	for _, r := range w.Rules {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// RuleNames lists the rules in declaration order
func (w *Workflow) RuleNames() []string {
	names := make([]string, 0, len(w.Rules))
	for _, r := range w.Rules {
		names = append(names, r.Name)
	}
	return names
}

const (
	openBraceMark  = "\x00"
	closeBraceMark = "\x01"
)

// renderTemplate substitutes {tag} placeholders via resolve. Doubled
// braces pass through as literal braces so awk and shell blocks can live
// inside commands unharmed.
func renderTemplate(text string, resolve func(tag string) (string, error)) (string, error) {
	escaped := strings.ReplaceAll(text, "{{", openBraceMark)
	escaped = strings.ReplaceAll(escaped, "}}", closeBraceMark)
	t, err := fasttemplate.NewTemplate(escaped, "{", "}")
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	_, err = t.ExecuteFunc(&buf, func(w io.Writer, tag string) (int, error) {
		value, err := resolve(tag)
		if err != nil {
			return 0, err
		}
		return w.Write([]byte(value))
	})
	if err != nil {
		return "", err
	}
	out := strings.ReplaceAll(buf.String(), openBraceMark, "{")
	out = strings.ReplaceAll(out, closeBraceMark, "}")
	return out, nil
}
