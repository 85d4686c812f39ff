// Package copier performs the file phase of a mirroring run: every source
// file whose destination is missing or differs gets copied on a bounded
// worker pool, preserving the source's permission bits and modification
// time so an unchanged file is recognized as unchanged on the next run.
package copier

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/safekeephq/safekeep/pkg/backuperr"
	"github.com/safekeephq/safekeep/pkg/detect"
	"github.com/safekeephq/safekeep/pkg/exclude"
	"github.com/safekeephq/safekeep/pkg/message"
	"github.com/safekeephq/safekeep/pkg/pool"
	"github.com/safekeephq/safekeep/pkg/util"
	"github.com/safekeephq/safekeep/pkg/walker"
)

// Config carries the collaborators and tuning knobs of a Copier.
type Config struct {
	// Workers bounds concurrent file copies. Zero or negative means one
	// worker per CPU.
	Workers  int
	Buffers  *pool.Buffers
	Detector *detect.Detector
	Excludes *exclude.Set
	Sink     message.Sink
}

// Copier copies changed files from a source tree into a destination tree.
type Copier struct {
	workers  int
	buffers  *pool.Buffers
	detector *detect.Detector
	excludes *exclude.Set
	sink     message.Sink
}

// New builds a Copier from cfg.
func New(cfg Config) *Copier {
	workers := cfg.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 1)
	}
	buffers := cfg.Buffers
	if buffers == nil {
		buffers = pool.NewBuffers(pool.DefaultBufferSize)
	}
	sink := cfg.Sink
	if sink == nil {
		sink = message.Discard
	}
	detector := cfg.Detector
	if detector == nil {
		detector = detect.New(buffers, sink)
	}
	return &Copier{
		workers:  workers,
		buffers:  buffers,
		detector: detector,
		excludes: cfg.Excludes,
		sink:     sink,
	}
}

// BackupFiles copies every changed file under source to its mirrored path
// under destination. Files below any of the unreachable source directories
// (whose destination dir could not be created) are skipped and counted.
// Per-file failures are collected; the copy keeps going.
func (c *Copier) BackupFiles(ctx context.Context, source, destination string, unreachable []string) backuperr.List {
	var errs backuperr.List
	var mu sync.Mutex
	addErr := func(pe *backuperr.PathError) {
		mu.Lock()
		errs = append(errs, pe)
		mu.Unlock()
	}

	total := c.countFiles(source)
	c.sink.Send(message.ProgressStart{Phase: message.PhaseCopyFiles, Total: total})
	defer c.sink.Send(message.ProgressEnd{Phase: message.PhaseCopyFiles})

	var done atomic.Uint64
	increment := func(kind message.IncrementKind, path string) {
		c.sink.Send(message.ProgressIncrement{
			Phase: message.PhaseCopyFiles,
			Kind:  kind,
			Path:  path,
			Done:  done.Add(1),
			Total: total,
		})
	}

	w, err := walker.New(source, walker.FilesOnly)
	if err != nil {
		errs.Add(&backuperr.PathError{
			Kind: backuperr.CannotReadDirectoryContent,
			Path: source,
			Err:  err,
		})
		return errs
	}
	defer w.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for {
		if ctx.Err() != nil {
			break
		}
		item, ok := w.Next()
		if !ok {
			break
		}
		if item.Err != nil {
			addErr(item.Err)
			continue
		}
		rel, err := util.RelPath(source, item.Path)
		if err != nil {
			addErr(&backuperr.PathError{
				Kind: backuperr.InvariantBroken,
				Path: item.Path,
				Err:  err,
			})
			continue
		}
		if c.excludes.File(rel) {
			continue
		}
		if util.UnderAny(item.Path, unreachable) {
			increment(message.IncrementSkippedUnreachable, item.Path)
			continue
		}

		src := item.Path
		dst := filepath.Join(destination, rel)
		g.Go(func() error {
			if !c.detector.Decide(src, dst) {
				increment(message.IncrementSkippedNoModification, src)
				return nil
			}
			c.sink.Send(message.Info{
				Kind:        message.InfoStartCopying,
				Source:      src,
				Destination: dst,
			})
			if err := c.copyFile(src, dst); err != nil {
				addErr(&backuperr.PathError{
					Kind:        backuperr.CannotCopyFile,
					Path:        src,
					Destination: dst,
					Err:         err,
				})
				return nil
			}
			increment(message.IncrementFileCopied, src)
			return nil
		})
	}
	g.Wait()
	return errs
}

// copyFile replicates src at dst: content, permission bits and
// modification time. Content and permissions decide the next run's
// skip/copy choice, so both must match exactly; a time that cannot be
// copied only costs a hash comparison later and is downgraded to a
// warning.
func (c *Copier) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	perm := info.Mode().Perm()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	buf := c.buffers.Get()
	_, err = io.CopyBuffer(out, in, *buf)
	c.buffers.Put(buf)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	// O_CREATE applies the umask and leaves pre-existing files untouched.
	if err := os.Chmod(dst, perm); err != nil {
		return err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		c.sink.Send(message.Warning{
			Kind:        message.WarningCannotCopyModifiedTime,
			Source:      src,
			Destination: dst,
			Err:         err,
		})
	}
	return nil
}

func (c *Copier) countFiles(source string) uint64 {
	w, err := walker.New(source, walker.FilesOnly)
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
		if err != nil || c.excludes.File(rel) {
			continue
		}
		n++
	}
}
