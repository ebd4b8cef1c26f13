/*
 *  wildcards.go
 *  genoflow
 *
 *  Copyright © 2024-2026 the genoflow authors. All rights reserved.
 */

package genoflow

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Wildcards maps wildcard names to the values substituted into one rule
// invocation, e.g. {"sample": "S1", "chrom": "chr2"}
type Wildcards map[string]string

// String outputs wildcards as "sample=S1, chrom=chr2" with sorted keys
func (w Wildcards) String() string {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(w))
	for _, name := range names {
		parts = append(parts, name+"="+w[name])
	}
	return strings.Join(parts, ", ")
}

var wildcardNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// segment is one piece of a parsed path pattern: either literal text or a
// wildcard tag with an optional regex constraint
type segment struct {
	literal    string
	name       string
	constraint string
	isTag      bool
}

// Pattern is a path template with {wildcard} placeholders. A placeholder
// matches [^/]+ unless constrained as {name,regex}. Doubled braces escape
// literal braces.
type Pattern struct {
	text     string
	segments []segment
	re       *regexp.Regexp
	groups   []string // wildcard name per capture group, in group order
	names    []string // distinct wildcard names in first-appearance order
}

// MakePattern parses a path pattern into its matching and filling form
func MakePattern(text string) (*Pattern, error) {
	segments, err := scanPattern(text)
	if err != nil {
		return nil, err
	}
	p := &Pattern{text: text, segments: segments}
	seen := make(map[string]bool)
	var re strings.Builder
	re.WriteString("^")
	for _, seg := range segments {
		if !seg.isTag {
			re.WriteString(regexp.QuoteMeta(seg.literal))
			continue
		}
		constraint := seg.constraint
		if constraint == "" {
			constraint = `[^/]+`
		}
		re.WriteString("(" + constraint + ")")
		p.groups = append(p.groups, seg.name)
		if !seen[seg.name] {
			seen[seg.name] = true
			p.names = append(p.names, seg.name)
		}
	}
	re.WriteString("$")
	compiled, err := regexp.Compile(re.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: bad wildcard constraint: %v", text, err)
	}
	p.re = compiled
	return p, nil
}

// scanPattern splits a pattern into literal and tag segments
func scanPattern(text string) ([]segment, error) {
	var segments []segment
	var lit strings.Builder
	for i := 0; i < len(text); {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("pattern %q: unclosed brace at offset %d", text, i)
			}
			end += i
			tag := text[i+1 : end]
			name, constraint := tag, ""
			if comma := strings.IndexByte(tag, ','); comma >= 0 {
				name, constraint = tag[:comma], tag[comma+1:]
			}
			if !wildcardNameRe.MatchString(name) {
				return nil, fmt.Errorf("pattern %q: invalid wildcard name %q", text, name)
			}
			if lit.Len() > 0 {
				segments = append(segments, segment{literal: lit.String()})
				lit.Reset()
			}
			segments = append(segments, segment{name: name, constraint: constraint, isTag: true})
			i = end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i += 2
				continue
			}
			return nil, fmt.Errorf("pattern %q: unmatched brace at offset %d", text, i)
		default:
			lit.WriteByte(c)
			i++
		}
	}
	if lit.Len() > 0 {
		segments = append(segments, segment{literal: lit.String()})
	}
	return segments, nil
}

// Names returns the distinct wildcard names in first-appearance order
func (p *Pattern) Names() []string { return p.names }

// HasWildcards reports whether the pattern contains any placeholder
func (p *Pattern) HasWildcards() bool { return len(p.groups) > 0 }

// Match extracts wildcard values from a concrete path. A pattern that
// repeats a wildcard only matches when all occurrences agree.
func (p *Pattern) Match(path string) (Wildcards, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	wc := make(Wildcards, len(p.names))
	for i, name := range p.groups {
		value := m[i+1]
		if prev, ok := wc[name]; ok && prev != value {
			return nil, false
		}
		wc[name] = value
	}
	return wc, true
}

// Fill substitutes wildcard values into the pattern; every placeholder
// must be covered
func (p *Pattern) Fill(wc Wildcards) (string, error) {
	var out strings.Builder
	for _, seg := range p.segments {
		if !seg.isTag {
			out.WriteString(seg.literal)
			continue
		}
		value, ok := wc[seg.name]
		if !ok {
			return "", fmt.Errorf("pattern %q: no value for wildcard {%s}", p.text, seg.name)
		}
		out.WriteString(value)
	}
	return out.String(), nil
}

// Expand substitutes every combination of the given wildcard value lists
// into the pattern, in the order the values are listed. This is how
// scatter inputs and gather outputs are spelled out.
func Expand(pattern string, values map[string][]string) ([]string, error) {
	p, err := MakePattern(pattern)
	if err != nil {
		return nil, err
	}
	paths := []string{}
	wc := make(Wildcards, len(p.names))
	var rec func(i int) error
	rec = func(i int) error {
		if i == len(p.names) {
			path, err := p.Fill(wc)
			if err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		}
		name := p.names[i]
		list, ok := values[name]
		if !ok {
			return fmt.Errorf("expand %q: no values for wildcard {%s}", pattern, name)
		}
		for _, v := range list {
			wc[name] = v
			if err := rec(i + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := rec(0); err != nil {
		return nil, err
	}
	return paths, nil
}

// MustExpand is Expand for patterns known to be well-formed; it is the
// form used inside the shipped workflow definitions
func MustExpand(pattern string, values map[string][]string) []string {
	paths, err := Expand(pattern, values)
	if err != nil {
		log.Fatal(err)
	}
	return paths
}

// GlobWildcards scans the filesystem for files matching the pattern and
// returns the wildcard assignment of each match, sorted by path. Missing
// directories yield an empty result, not an error.
func GlobWildcards(pattern string) ([]Wildcards, error) {
	p, err := MakePattern(pattern)
	if err != nil {
		return nil, err
	}
	root := staticPrefixDir(pattern)
	var found []Wildcards
	var paths []string
	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if wc, ok := p.Match(filepath.ToSlash(path)); ok {
			paths = append(paths, path)
			found = append(found, wc)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	sort.Sort(byPath{paths, found})
	return found, nil
}

// byPath sorts wildcard assignments by their originating path
type byPath struct {
	paths []string
	wcs   []Wildcards
}

func (s byPath) Len() int           { return len(s.paths) }
func (s byPath) Less(i, j int) bool { return s.paths[i] < s.paths[j] }
func (s byPath) Swap(i, j int) {
	s.paths[i], s.paths[j] = s.paths[j], s.paths[i]
	s.wcs[i], s.wcs[j] = s.wcs[j], s.wcs[i]
}

// staticPrefixDir returns the deepest directory of a pattern that holds no
// placeholder, the natural root for a filesystem scan
func staticPrefixDir(pattern string) string {
	cut := strings.IndexByte(pattern, '{')
	if cut < 0 {
		cut = len(pattern)
	}
	slash := strings.LastIndexByte(pattern[:cut], '/')
	if slash < 0 {
		return "."
	}
	return pattern[:slash]
}
