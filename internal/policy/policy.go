// Package policy resolves the declarative configuration into the immutable
// set of pass toggles and file filters used for a run.
package policy

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	tt "github.com/gnolang/gobfus/internal/types"
)

// Policy is built once per run and shared by reference; it is never mutated
// after Resolve returns.
type Policy struct {
	Literals bool
	Numbers  bool
	// MinLiteralLength is the minimum rune count of a protected string.
	// Zero means no minimum.
	MinLiteralLength int
	IgnoreLiterals   map[string]struct{}

	ControlFlow bool

	Rename   bool
	Preserve map[string]struct{}

	SkipFiles      []string
	SkipAttributes bool

	// Include and Exclude are nil when the configuration omits them.
	Include []string
	Exclude []string

	KeyHex string
}

// Resolve validates cfg and builds a Policy from it.
func Resolve(cfg Config) (*Policy, error) {
	obf := cfg.Obfuscation

	p := &Policy{
		Literals:       obf.Strings,
		Numbers:        obf.Numbers,
		ControlFlow:    obf.ControlFlow,
		Rename:         cfg.Identifiers.Rename,
		SkipAttributes: true,
		IgnoreLiterals: toSet(obf.IgnoreStrings),
		Preserve:       toSet(cfg.Identifiers.Preserve),
		KeyHex:         strings.TrimSpace(cfg.KeyHex),
	}

	if obf.MinStringLength != nil {
		if *obf.MinStringLength < 0 {
			return nil, &tt.ConfigError{
				Field: "obfuscation.min_string_length",
				Err:   fmt.Errorf("must not be negative, got %d", *obf.MinStringLength),
			}
		}
		p.MinLiteralLength = *obf.MinStringLength
	}
	if obf.SkipAttributes != nil {
		p.SkipAttributes = *obf.SkipAttributes
	}

	for _, entry := range obf.SkipFiles {
		if strings.TrimSpace(entry) == "" {
			return nil, &tt.ConfigError{
				Field: "obfuscation.skip_files",
				Err:   errors.New("empty entry"),
			}
		}
		p.SkipFiles = append(p.SkipFiles, filepath.ToSlash(entry))
	}

	var err error
	if p.Include, err = compileGlobs("include.files", cfg.Include.Files); err != nil {
		return nil, err
	}
	if p.Exclude, err = compileGlobs("include.exclude", cfg.Include.Exclude); err != nil {
		return nil, err
	}
	return p, nil
}

func compileGlobs(field string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	globs := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			return nil, &tt.ConfigError{
				Field: field,
				Err:   fmt.Errorf("invalid glob pattern %q", pattern),
			}
		}
		globs = append(globs, pattern)
	}
	return globs, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// AppliesTo reports whether the file at path, known as rel relative to the
// input root, should be transformed. The checks run in a fixed order:
// skip-file suffixes, then the include set, then the exclude set.
func (p *Policy) AppliesTo(path, rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" {
		rel = filepath.ToSlash(filepath.Base(path))
	}

	for _, suffix := range p.SkipFiles {
		if strings.HasSuffix(rel, suffix) {
			return false
		}
	}

	if p.Include != nil && !matchAny(p.Include, rel) {
		return false
	}

	if p.Exclude != nil && matchAny(p.Exclude, rel) {
		return false
	}

	return true
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		// patterns were validated in Resolve
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Enabled reports whether pass is switched on.
func (p *Policy) Enabled(pass tt.Pass) bool {
	switch pass {
	case tt.PassLiterals:
		return p.Literals || p.Numbers
	case tt.PassFlow:
		return p.ControlFlow
	case tt.PassRename:
		return p.Rename
	}
	return false
}

// IgnoresLiteral reports whether value is listed in the ignore set.
func (p *Policy) IgnoresLiteral(value string) bool {
	_, ok := p.IgnoreLiterals[value]
	return ok
}

// Preserves reports whether name must keep its spelling.
func (p *Policy) Preserves(name string) bool {
	_, ok := p.Preserve[name]
	return ok
}
