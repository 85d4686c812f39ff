// Package util holds small path helpers shared by the engine phases.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RelPath strips root from path. Every path handed to it is produced by
// walking from root, so failure to strip signals a programming defect and
// is reported as such by callers.
func RelPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("cannot strip prefix %q from %q: %w", root, path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside root %q", path, root)
	}
	return rel, nil
}

// HasPathPrefix reports whether path equals prefix or lies underneath it.
// Unlike strings.HasPrefix it never matches sibling names ("a/bc" is not
// under "a/b").
func HasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(filepath.Separator))
}

// UnderAny reports whether path lies under (or equals) any of the prefixes.
func UnderAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if HasPathPrefix(path, p) {
			return true
		}
	}
	return false
}

// ExpandPath expands a leading tilde to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}
