// Package purge removes destination entries that no longer exist under
// the source root. Both trees are fully enumerated before the first
// delete, so a failure while listing never leaves a half-purged
// destination.
package purge

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/safekeephq/safekeep/pkg/backuperr"
	"github.com/safekeephq/safekeep/pkg/exclude"
	"github.com/safekeephq/safekeep/pkg/message"
	"github.com/safekeephq/safekeep/pkg/util"
	"github.com/safekeephq/safekeep/pkg/walker"
)

// Purger deletes stale destination directories and files.
type Purger struct {
	workers  int
	excludes *exclude.Set
	sink     message.Sink
}

// New builds a Purger. Zero or negative workers means one per CPU.
func New(workers int, excludes *exclude.Set, sink message.Sink) *Purger {
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 1)
	}
	if sink == nil {
		sink = message.Discard
	}
	return &Purger{workers: workers, excludes: excludes, sink: sink}
}

// Run deletes every directory and file under destination that has no
// counterpart under source. Directories go first, parents before
// children, so most stale files vanish with their directory; the file
// pass then deletes stragglers concurrently. If enumerating either tree
// fails, Run returns without deleting anything.
func (p *Purger) Run(ctx context.Context, source, destination string) backuperr.List {
	var errs backuperr.List

	srcDirs, srcFiles, err := p.enumerate(ctx, source)
	if err != nil {
		errs.Add(err)
		return errs
	}
	dstDirs, dstFiles, err := p.enumerate(ctx, destination)
	if err != nil {
		errs.Add(err)
		return errs
	}

	staleDirs := difference(dstDirs, srcDirs)
	sort.Strings(staleDirs)
	staleFiles := difference(dstFiles, srcFiles)
	sort.Strings(staleFiles)

	deleted := p.deleteDirs(ctx, destination, staleDirs, &errs)
	p.deleteFiles(ctx, destination, staleFiles, deleted, &errs)
	return errs
}

func (p *Purger) deleteDirs(ctx context.Context, destination string, stale []string, errs *backuperr.List) []string {
	p.sink.Send(message.ProgressStart{Phase: message.PhasePurgeDirs, Total: uint64(len(stale))})
	defer p.sink.Send(message.ProgressEnd{Phase: message.PhasePurgeDirs})

	var deleted []string
	var done uint64
	increment := func(kind message.IncrementKind, path string) {
		done++
		p.sink.Send(message.ProgressIncrement{
			Phase: message.PhasePurgeDirs,
			Kind:  kind,
			Path:  path,
			Done:  done,
			Total: uint64(len(stale)),
		})
	}

	// Lexicographic order puts every parent before its children, so a
	// prefix match against already-deleted dirs spots subsumed entries.
	for _, rel := range stale {
		if ctx.Err() != nil {
			return deleted
		}
		abs := filepath.Join(destination, rel)
		if util.UnderAny(rel, deleted) {
			increment(message.IncrementAlreadyDeleted, abs)
			continue
		}
		if err := os.RemoveAll(abs); err != nil {
			errs.Add(&backuperr.PathError{
				Kind: backuperr.CannotDeleteDirectory,
				Path: abs,
				Err:  err,
			})
			continue
		}
		deleted = append(deleted, rel)
		increment(message.IncrementDeletedDir, abs)
	}
	return deleted
}

func (p *Purger) deleteFiles(ctx context.Context, destination string, stale, deletedDirs []string, errs *backuperr.List) {
	p.sink.Send(message.ProgressStart{Phase: message.PhasePurgeFiles, Total: uint64(len(stale))})
	defer p.sink.Send(message.ProgressEnd{Phase: message.PhasePurgeFiles})

	var mu sync.Mutex
	var done atomic.Uint64
	increment := func(kind message.IncrementKind, path string) {
		p.sink.Send(message.ProgressIncrement{
			Phase: message.PhasePurgeFiles,
			Kind:  kind,
			Path:  path,
			Done:  done.Add(1),
			Total: uint64(len(stale)),
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, rel := range stale {
		if ctx.Err() != nil {
			break
		}
		abs := filepath.Join(destination, rel)
		if util.UnderAny(rel, deletedDirs) {
			increment(message.IncrementAlreadyDeleted, abs)
			continue
		}
		g.Go(func() error {
			switch err := os.Remove(abs); {
			case err == nil:
				increment(message.IncrementDeletedFile, abs)
			case errors.Is(err, fs.ErrNotExist):
				// Its directory went in the first pass.
				increment(message.IncrementAlreadyDeleted, abs)
			default:
				mu.Lock()
				errs.Add(&backuperr.PathError{
					Kind: backuperr.CannotDeleteFile,
					Path: abs,
					Err:  err,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
}

// enumerate lists all directories and files under root as root-relative
// paths. Exclusions on the source side keep matching destination entries
// alive; on the destination side they shield entries from deletion.
func (p *Purger) enumerate(ctx context.Context, root string) (dirs, files map[string]struct{}, fatal *backuperr.PathError) {
	dirs = make(map[string]struct{})
	files = make(map[string]struct{})

	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for _, mode := range []walker.Mode{walker.DirectoriesOnly, walker.FilesOnly} {
		mode := mode
		g.Go(func() error {
			w, err := walker.New(root, mode)
			if err != nil {
				return &backuperr.PathError{
					Kind: backuperr.CannotReadDirectoryContent,
					Path: root,
					Err:  err,
				}
			}
			defer w.Close()
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				item, ok := w.Next()
				if !ok {
					return nil
				}
				if item.Err != nil {
					return item.Err
				}
				rel, err := util.RelPath(root, item.Path)
				if err != nil {
					return &backuperr.PathError{
						Kind: backuperr.InvariantBroken,
						Path: item.Path,
						Err:  err,
					}
				}
				if mode == walker.DirectoriesOnly {
					if p.excludes.Dir(rel) {
						continue
					}
					mu.Lock()
					dirs[rel] = struct{}{}
					mu.Unlock()
				} else {
					if p.excludes.File(rel) {
						continue
					}
					mu.Lock()
					files[rel] = struct{}{}
					mu.Unlock()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		var pe *backuperr.PathError
		if errors.As(err, &pe) {
			return nil, nil, pe
		}
		return nil, nil, &backuperr.PathError{
			Kind: backuperr.CannotReadDirectoryContent,
			Path: root,
			Err:  err,
		}
	}
	return dirs, files, nil
}

func difference(have, want map[string]struct{}) []string {
	var out []string
	for rel := range have {
		if _, ok := want[rel]; !ok {
			out = append(out, rel)
		}
	}
	return out
}
