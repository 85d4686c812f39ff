// Package backuperr defines the error taxonomy of the mirroring engine:
// fatal root-validation errors that abort a run before any work begins,
// and per-path errors that are accumulated and surfaced together at the
// end alongside whatever work did succeed.
package backuperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a per-path failure.
type Kind int

const (
	// CannotCreateDestinationDir: mkdir of a mirrored directory failed.
	CannotCreateDestinationDir Kind = iota
	// CannotReadDirectoryContent: a queued directory could not be opened;
	// the walker never descends into it.
	CannotReadDirectoryContent
	// CannotGetDirEntry: reading an entry of the current directory failed.
	CannotGetDirEntry
	// DestinationForSourceDirExistsAsFile: the destination path for a
	// source directory exists but is not a directory.
	DestinationForSourceDirExistsAsFile
	// CannotCopyFile: the full-content copy of a file failed.
	CannotCopyFile
	// CannotDeleteDirectory: recursive removal of a stale directory failed.
	CannotDeleteDirectory
	// CannotDeleteFile: removal of a stale file failed.
	CannotDeleteFile
	// InvariantBroken: root-prefix stripping failed for an enumerated
	// path. Signals a programming defect, not an environmental condition.
	InvariantBroken
)

func (k Kind) String() string {
	switch k {
	case CannotCreateDestinationDir:
		return "cannot create destination directory"
	case CannotReadDirectoryContent:
		return "cannot read directory content"
	case CannotGetDirEntry:
		return "cannot read directory entry"
	case DestinationForSourceDirExistsAsFile:
		return "destination for source directory exists as a file"
	case CannotCopyFile:
		return "cannot copy file"
	case CannotDeleteDirectory:
		return "cannot delete directory"
	case CannotDeleteFile:
		return "cannot delete file"
	case InvariantBroken:
		return "internal invariant broken"
	default:
		return "unknown error"
	}
}

// PathError records one failed path. Path is the entry that was not fully
// processed (it doubles as the unreachable-subtree marker for later
// phases); Destination, when set, names the counterpart path the failure
// concerned. PathErrors are accumulated, never raised eagerly.
type PathError struct {
	Kind        Kind
	Path        string
	Destination string
	Err         error
}

func (e *PathError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "could not process %q: %s", e.Path, e.Kind)
	if e.Destination != "" {
		fmt.Fprintf(&b, " (destination %q)", e.Destination)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the underlying OS error for errors.Is/As.
func (e *PathError) Unwrap() error { return e.Err }

// List accumulates per-path errors across engine phases.
type List []*PathError

// Add appends a per-path error to the list.
func (l *List) Add(pe *PathError) { *l = append(*l, pe) }

// Merge appends all errors of another list.
func (l *List) Merge(other List) { *l = append(*l, other...) }

// Err returns the list as an aggregated error, or nil if the list is empty.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return &Aggregate{Paths: l}
}

// Aggregate is the final error of a run with one entry per failed path.
// It reports partial failure: progress increments for everything that did
// succeed have already been emitted.
type Aggregate struct {
	Paths List
}

func (a *Aggregate) Error() string {
	if len(a.Paths) == 1 {
		return a.Paths[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d paths could not be processed:", len(a.Paths))
	for _, pe := range a.Paths {
		b.WriteString("\n  ")
		b.WriteString(pe.Error())
	}
	return b.String()
}

// Unwrap exposes the individual path errors for errors.Is/As.
func (a *Aggregate) Unwrap() []error {
	errs := make([]error, len(a.Paths))
	for i, pe := range a.Paths {
		errs[i] = pe
	}
	return errs
}

// RootKind classifies a fatal root-validation failure. These abort the run
// before any mirroring work begins.
type RootKind int

const (
	// SourceRootPathDoesNotExist: the source root is missing.
	SourceRootPathDoesNotExist RootKind = iota
	// CannotCreateRootDestinationDir: the destination root could not be
	// created.
	CannotCreateRootDestinationDir
	// RootDestinationIsNotADirectory: the destination root exists but is
	// not a directory.
	RootDestinationIsNotADirectory
)

// RootError is a fatal root-validation failure.
type RootError struct {
	Kind RootKind
	Path string
	Err  error
}

func (e *RootError) Error() string {
	switch e.Kind {
	case SourceRootPathDoesNotExist:
		return fmt.Sprintf("the source directory %q does not exist", e.Path)
	case CannotCreateRootDestinationDir:
		return fmt.Sprintf("cannot create the destination directory %q: %v", e.Path, e.Err)
	case RootDestinationIsNotADirectory:
		return fmt.Sprintf("the destination %q exists but is not a directory", e.Path)
	default:
		return fmt.Sprintf("root validation failed for %q: %v", e.Path, e.Err)
	}
}

// Unwrap exposes the underlying OS error.
func (e *RootError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a root-validation error (as opposed to an
// aggregate of per-path failures).
func IsFatal(err error) bool {
	var re *RootError
	return errors.As(err, &re)
}
