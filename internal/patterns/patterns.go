// Package patterns evaluates Ant-style include/exclude patterns ("**/*.log",
// "conf/**") against root-relative slash paths.
package patterns

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
)

// List matches a path against any of its patterns. A pattern naming a
// directory also matches everything below it. The zero value matches
// nothing.
type List struct {
	matcher *patternmatcher.PatternMatcher
}

// Compile builds a List. Empty patterns are ignored.
func Compile(patterns []string) (List, error) {
	var cleaned []string
	for _, p := range patterns {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(p, "/")
		if strings.HasSuffix(p, "/") {
			p += "**"
		}
		cleaned = append(cleaned, filepath.FromSlash(p))
	}
	if len(cleaned) == 0 {
		return List{}, nil
	}
	matcher, err := patternmatcher.New(cleaned)
	if err != nil {
		return List{}, fmt.Errorf("invalid pattern in %v: %w", patterns, err)
	}
	return List{matcher: matcher}, nil
}

// MustCompile is Compile for patterns known to be valid.
func MustCompile(patterns ...string) List {
	list, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return list
}

// IsEmpty is true when the list holds no pattern.
func (l List) IsEmpty() bool {
	return l.matcher == nil
}

// Match reports whether rel, a slash separated relative path, or one of its
// parent directories matches.
func (l List) Match(rel string) bool {
	if l.matcher == nil {
		return false
	}
	ok, err := l.matcher.MatchesOrParentMatches(filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	return err == nil && ok
}

// Set is an include/exclude pair. A path is selected when it matches an
// include (or there are none) and no exclude.
type Set struct {
	Includes List
	Excludes List
}

// NewSet compiles both pattern lists.
func NewSet(includes, excludes []string) (Set, error) {
	inc, err := Compile(includes)
	if err != nil {
		return Set{}, err
	}
	exc, err := Compile(excludes)
	if err != nil {
		return Set{}, err
	}
	return Set{Includes: inc, Excludes: exc}, nil
}

// Selects applies the filter semantics.
func (s Set) Selects(rel string) bool {
	if s.Excludes.Match(rel) {
		return false
	}
	return s.Includes.IsEmpty() || s.Includes.Match(rel)
}

// IsEmpty is true when neither list holds a pattern.
func (s Set) IsEmpty() bool {
	return s.Includes.IsEmpty() && s.Excludes.IsEmpty()
}

// Layers is an ordered preserve stack, innermost (item) layer first. The
// first layer with an opinion on a path decides: inside a layer an exclude
// beats an include. A path no layer includes is not preserved.
type Layers []Set

// Preserves reports whether rel must survive a mirror sync.
func (l Layers) Preserves(rel string) bool {
	for _, layer := range l {
		if layer.Excludes.Match(rel) {
			return false
		}
		if layer.Includes.Match(rel) {
			return true
		}
	}
	return false
}

// IsEmpty is true when no layer holds a pattern.
func (l Layers) IsEmpty() bool {
	for _, layer := range l {
		if !layer.IsEmpty() {
			return false
		}
	}
	return true
}
