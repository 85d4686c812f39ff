// Package mirror recreates a source directory tree underneath a
// destination root. Directories are created one level at a time in
// traversal order, so every parent exists before its children.
package mirror

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/safekeephq/safekeep/pkg/backuperr"
	"github.com/safekeephq/safekeep/pkg/exclude"
	"github.com/safekeephq/safekeep/pkg/message"
	"github.com/safekeephq/safekeep/pkg/util"
	"github.com/safekeephq/safekeep/pkg/walker"
)

// CreateTree mirrors every directory under source into destination.
// It returns the source directories whose destination could not be
// created; files below those are unreachable and must be skipped by the
// copy phase. Per-directory failures are collected, never fatal.
func CreateTree(ctx context.Context, source, destination string, excludes *exclude.Set, sink message.Sink) ([]string, backuperr.List) {
	var errs backuperr.List

	total := countDirs(source, excludes)
	sink.Send(message.ProgressStart{Phase: message.PhaseMirrorDirs, Total: total})
	defer sink.Send(message.ProgressEnd{Phase: message.PhaseMirrorDirs})

	w, err := walker.New(source, walker.DirectoriesOnly)
	if err != nil {
		errs.Add(&backuperr.PathError{
			Kind: backuperr.CannotReadDirectoryContent,
			Path: source,
			Err:  err,
		})
		return nil, errs
	}
	defer w.Close()

	var failed []string
	var done uint64

	increment := func(kind message.IncrementKind, path string) {
		done++
		sink.Send(message.ProgressIncrement{
			Phase: message.PhaseMirrorDirs,
			Kind:  kind,
			Path:  path,
			Done:  done,
			Total: total,
		})
	}

	for {
		if ctx.Err() != nil {
			return failed, errs
		}
		item, ok := w.Next()
		if !ok {
			break
		}
		if item.Err != nil {
			errs.Add(item.Err)
			continue
		}
		rel, err := util.RelPath(source, item.Path)
		if err != nil {
			errs.Add(&backuperr.PathError{
				Kind: backuperr.InvariantBroken,
				Path: item.Path,
				Err:  err,
			})
			continue
		}
		if excludes.Dir(rel) {
			continue
		}
		if util.UnderAny(item.Path, failed) {
			increment(message.IncrementSkippedUnreachable, item.Path)
			continue
		}

		dst := filepath.Join(destination, rel)
		switch err := os.Mkdir(dst, 0o755); {
		case err == nil:
			increment(message.IncrementDirCreated, item.Path)
		case errors.Is(err, fs.ErrExist):
			info, statErr := os.Stat(dst)
			if statErr == nil && info.IsDir() {
				increment(message.IncrementAlreadyExists, item.Path)
				continue
			}
			failed = append(failed, item.Path)
			errs.Add(&backuperr.PathError{
				Kind:        backuperr.DestinationForSourceDirExistsAsFile,
				Path:        item.Path,
				Destination: dst,
				Err:         err,
			})
		default:
			failed = append(failed, item.Path)
			errs.Add(&backuperr.PathError{
				Kind:        backuperr.CannotCreateDestinationDir,
				Path:        item.Path,
				Destination: dst,
				Err:         err,
			})
		}
	}
	return failed, errs
}

// countDirs walks the source once up front so progress can report a
// stable total. Unreadable corners are skipped here and surface as
// errors during the real pass.
func countDirs(source string, excludes *exclude.Set) uint64 {
	w, err := walker.New(source, walker.DirectoriesOnly)
	if err != nil {
		return 0
	}
	defer w.Close()

	var n uint64
	for {
		item, ok := w.Next()
		if !ok {
			return n
		}
		if item.Err != nil {
			continue
		}
		rel, err := util.RelPath(source, item.Path)
		if err != nil || excludes.Dir(rel) {
			continue
		}
		n++
	}
}
