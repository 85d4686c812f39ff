// Package preflight validates the roots of a run before any work begins.
// Root problems are the only fatal errors: everything after preflight is
// collected and reported at the end instead of aborting.
package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/safekeephq/safekeep/pkg/backuperr"
	"github.com/safekeephq/safekeep/pkg/message"
	"github.com/safekeephq/safekeep/pkg/walker"
)

// ValidateRoots checks that source exists and is a directory, and that
// destination either is a directory or can be created as one. It creates
// the destination root when missing, so the mirror phase can assume it.
func ValidateRoots(source, destination string) error {
	info, err := os.Stat(source)
	if err != nil || !info.IsDir() {
		return &backuperr.RootError{
			Kind: backuperr.SourceRootPathDoesNotExist,
			Path: source,
			Err:  err,
		}
	}

	switch dstInfo, err := os.Stat(destination); {
	case err == nil:
		if !dstInfo.IsDir() {
			return &backuperr.RootError{
				Kind: backuperr.RootDestinationIsNotADirectory,
				Path: destination,
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(destination, 0o755); err != nil {
			return &backuperr.RootError{
				Kind: backuperr.CannotCreateRootDestinationDir,
				Path: destination,
				Err:  err,
			}
		}
	default:
		return &backuperr.RootError{
			Kind: backuperr.CannotCreateRootDestinationDir,
			Path: destination,
			Err:  err,
		}
	}

	// A destination that exists but sits on the system partition where a
	// mount was expected means the drive is not there. Better to refuse
	// than to fill the root filesystem.
	if err := validateMountPoint(destination); err != nil {
		return &backuperr.RootError{
			Kind: backuperr.CannotCreateRootDestinationDir,
			Path: destination,
			Err:  err,
		}
	}
	return nil
}

// CheckWritable ensures the destination directory accepts writes by
// creating and removing a probe file.
func CheckWritable(destination string) error {
	probe := filepath.Join(destination, ".safekeep-writetest.tmp")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("destination %s is not writable: %w", destination, err)
	}
	f.Close()
	_ = os.Remove(probe)
	return nil
}

// CheckFreeSpace compares the total size of the source tree against the
// free space on the destination's filesystem and warns through sink when
// the destination looks too small. The check is advisory: unchanged files
// will be skipped, so a full copy is the worst case, and any error while
// measuring is silently ignored.
func CheckFreeSpace(source, destination string, sink message.Sink) {
	required, err := treeSize(source)
	if err != nil {
		return
	}
	free, err := freeBytes(destination)
	if err != nil {
		return
	}
	if free < required {
		sink.Send(message.Warning{
			Kind:        message.WarningLowDiskSpace,
			Source:      source,
			Destination: destination,
			Err:         fmt.Errorf("source holds %d bytes but only %d bytes are free", required, free),
		})
	}
}

func treeSize(root string) (uint64, error) {
	w, err := walker.New(root, walker.FilesOnly)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	var total uint64
	for {
		item, ok := w.Next()
		if !ok {
			return total, nil
		}
		if item.Err != nil {
			continue
		}
		if info, err := os.Stat(item.Path); err == nil {
			total += uint64(info.Size())
		}
	}
}
