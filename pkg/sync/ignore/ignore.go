// Package ignore implements gitignore-style pattern matching for server-side
// file filtering. Matching paths are hidden from listings, rejected from
// uploads and excluded from reconcile plans.
package ignore

import (
	"path"
	"strings"
)

// Matcher evaluates an ordered list of gitignore-style patterns against
// slash-separated relative paths. The last matching pattern wins, so a
// negation ("!keep.txt") after a broad pattern ("*.txt") re-includes a path.
//
// Supported syntax:
//   - wildcards: *, ?, [abc]
//   - directory patterns: trailing /
//   - negation: leading !
//   - comments: leading #
//   - blank lines (ignored)
type Matcher struct {
	patterns []pattern
}

type pattern struct {
	expr     string
	negation bool
	dirOnly  bool
}

// NewMatcher parses pattern lines into a matcher. Blank lines and comments
// are skipped.
func NewMatcher(lines []string) *Matcher {
	m := &Matcher{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		negation := strings.HasPrefix(line, "!")
		if negation {
			line = strings.TrimSpace(line[1:])
			if line == "" {
				continue
			}
		}

		dirOnly := strings.HasSuffix(line, "/")
		if dirOnly {
			line = strings.TrimSuffix(line, "/")
			if line == "" {
				continue
			}
		}

		m.patterns = append(m.patterns, pattern{expr: line, negation: negation, dirOnly: dirOnly})
	}
	return m
}

// ShouldIgnore reports whether the path matches the pattern list. Paths use
// forward slashes; backslashes are normalized first.
func (m *Matcher) ShouldIgnore(filePath string) bool {
	normalized := strings.ReplaceAll(filePath, `\`, "/")

	ignored := false
	for _, p := range m.patterns {
		if matches(normalized, p) {
			ignored = !p.negation
		}
	}
	return ignored
}

// FilterPaths returns the subset of paths that are not ignored, preserving
// order.
func (m *Matcher) FilterPaths(paths []string) []string {
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if !m.ShouldIgnore(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

// matches checks one path against one pattern. Patterns containing a slash
// anchor against the full path (including everything beneath a matching
// directory); patterns without a slash match any single path component.
// Directory-only patterns (written with a trailing slash) match only
// directory components, never the file itself: "build/" covers
// "build/main.o" but not a file named "build".
func matches(filePath string, p pattern) bool {
	expr := strings.ReplaceAll(p.expr, `\`, "/")
	if expr == "" {
		return false
	}

	if strings.Contains(expr, "/") {
		if !p.dirOnly {
			if ok, _ := path.Match(expr, filePath); ok {
				return true
			}
		}
		// A directory pattern also covers everything beneath it.
		if ok, _ := path.Match(expr+"/*", filePath); ok {
			return true
		}
		if strings.HasPrefix(filePath, expr+"/") {
			return true
		}
		return false
	}

	parts := strings.Split(filePath, "/")
	for i, part := range parts {
		// The last component is the file itself, not a directory.
		if p.dirOnly && i == len(parts)-1 {
			break
		}
		if ok, _ := path.Match(expr, part); ok {
			return true
		}
	}
	return false
}
