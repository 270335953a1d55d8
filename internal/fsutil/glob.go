// Package fsutil provides the filesystem plumbing shared by the asset tasks:
// glob expansion with exclusions, verbatim copies, change-aware writes and
// output tree cleanup.
package fsutil

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/sitegraph/internal/paths"
)

// Match is a file matched by a pattern set.
type Match struct {
	// Path is the slash-separated path relative to the project directory.
	Path string
	// Rel is the path relative to the base of the pattern that matched it.
	Rel string
}

// Expand resolves patterns against the project directory root. Patterns
// prefixed with "!" remove matches of the patterns before them; a later
// pattern can add a file back. Missing directories yield no matches rather
// than an error.
func Expand(root string, patterns []string) ([]Match, error) {
	fsys := os.DirFS(root)

	seen := make(map[string]bool)
	matches := make([]Match, 0)

	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "!") {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern %q", pattern)
		}

		found, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}

		base := paths.Base(pattern)
		for _, file := range found {
			if seen[file] || !MatchAny(patterns, file) {
				continue
			}
			seen[file] = true
			matches = append(matches, Match{Path: file, Rel: relTo(base, file)})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })
	return matches, nil
}

// MatchAny reports whether the slash-separated path is selected by patterns.
// Patterns apply in order: a match of a plain pattern selects the path and a
// match of a "!" pattern deselects it.
func MatchAny(patterns []string, file string) bool {
	var matched bool
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			if matched {
				if ok, _ := doublestar.Match(p[1:], file); ok {
					matched = false
				}
			}
			continue
		}
		if !matched {
			if ok, _ := doublestar.Match(p, file); ok {
				matched = true
			}
		}
	}
	return matched
}

func relTo(base, file string) string {
	if base == "." || base == "" {
		return file
	}
	rel := strings.TrimPrefix(file, base+"/")
	if rel == file {
		return path.Base(file)
	}
	return rel
}
