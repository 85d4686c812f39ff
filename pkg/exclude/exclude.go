// Package exclude filters paths out of a run by glob pattern. Excluded
// entries are invisible to every phase on both roots: they are never
// copied, never counted, and never purged.
package exclude

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set holds compiled exclusion patterns for files and directories.
// Patterns without a path separator match basenames anywhere in the tree
// (like .gitignore); patterns with separators match the full relative
// path. Directory patterns exclude the whole subtree.
type Set struct {
	filePatterns []string
	dirPatterns  []string
}

// New validates the given patterns and builds a Set. Matching is done with
// doublestar, so `**` spans directories.
func New(filePatterns, dirPatterns []string) (*Set, error) {
	for _, p := range append(append([]string{}, filePatterns...), dirPatterns...) {
		if !doublestar.ValidatePattern(normalize(p)) {
			return nil, fmt.Errorf("invalid exclusion pattern %q", p)
		}
	}
	if len(filePatterns) == 0 && len(dirPatterns) == 0 {
		return nil, nil
	}
	return &Set{
		filePatterns: normalizeAll(filePatterns),
		dirPatterns:  normalizeAll(dirPatterns),
	}, nil
}

// File reports whether the file at rel (a root-relative path) is excluded,
// either by a file pattern or by lying under an excluded directory.
func (s *Set) File(rel string) bool {
	if s == nil {
		return false
	}
	key := normalize(rel)
	if matchAny(s.filePatterns, key) {
		return true
	}
	return s.dirExcludesAncestor(path.Dir(key))
}

// Dir reports whether the directory at rel or any of its ancestors is
// excluded.
func (s *Set) Dir(rel string) bool {
	if s == nil {
		return false
	}
	return s.dirExcludesAncestor(normalize(rel))
}

func (s *Set) dirExcludesAncestor(rel string) bool {
	for rel != "." && rel != "/" && rel != "" {
		if matchAny(s.dirPatterns, rel) {
			return true
		}
		rel = path.Dir(rel)
	}
	return false
}

func matchAny(patterns []string, key string) bool {
	base := path.Base(key)
	for _, p := range patterns {
		target := key
		if !strings.Contains(p, "/") {
			target = base
		}
		// Patterns are validated in New; Match cannot fail here.
		if ok, _ := doublestar.Match(p, target); ok {
			return true
		}
	}
	return false
}

func normalizeAll(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = normalize(p)
	}
	return out
}

// normalize converts separators to forward slashes and trims a trailing
// slash, so "build/" and "build" exclude the same directory.
func normalize(p string) string {
	return strings.TrimSuffix(filepath.ToSlash(p), "/")
}
