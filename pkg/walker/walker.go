// Package walker provides a lazy, single-pass, breadth-first enumerator of
// a directory tree. Breadth-first (FIFO) ordering guarantees that a
// directory is discovered before any of its descendants, which the
// mirroring and purge phases depend on for parent-before-child directory
// creation and ancestor-first deletion bookkeeping.
package walker

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/safekeephq/safekeep/pkg/backuperr"
)

// Mode selects which entries a Walker yields. In FilesOnly mode
// directories are still traversed into, just not yielded.
type Mode int

const (
	FilesOnly Mode = iota
	DirectoriesOnly
)

// Item is one traversal result: either a path or a per-path error. Errors
// never stop the walk; the walker simply does not descend past them.
type Item struct {
	Path string
	Err  *backuperr.PathError
}

// Walker enumerates a tree lazily. Its state is an explicit machine: a
// FIFO queue of pending directories plus at most one open directory
// handle. Each Next call is a single state transition. A Walker is
// single-pass and not restartable; operations needing two passes construct
// two independent walkers over the same root.
type Walker struct {
	root  string
	mode  Mode
	queue []string

	cur      *os.File
	curPath  string
	readErrs int
}

// readEntries is swapped out by tests to inject entry read failures.
var readEntries = func(dir *os.File, n int) ([]os.DirEntry, error) {
	return dir.ReadDir(n)
}

// New opens root for reading and returns a walker positioned before its
// first entry. An unreadable root is a constructor error rather than an
// item: there is nothing to traverse.
func New(root string, mode Mode) (*Walker, error) {
	dir, err := os.Open(root)
	if err != nil {
		return nil, err
	}
	return &Walker{
		root:    root,
		mode:    mode,
		cur:     dir,
		curPath: root,
	}, nil
}

// Root returns the directory the walk started from.
func (w *Walker) Root() string { return w.root }

// Close releases the currently open directory handle. Walkers that are
// driven to exhaustion close themselves; Close is for abandoning a walk
// early.
func (w *Walker) Close() error {
	if w.cur == nil {
		return nil
	}
	err := w.cur.Close()
	w.cur = nil
	return err
}

// Next advances the walk by one step. It returns false once the tree is
// exhausted. Entries of the current directory are read one at a time;
// files are yielded immediately in FilesOnly mode, directories are queued
// and yielded when dequeued in DirectoriesOnly mode. The root itself is
// never yielded.
func (w *Walker) Next() (Item, bool) {
	for {
		if w.cur != nil {
			entries, err := readEntries(w.cur, 1)
			switch {
			case errors.Is(err, io.EOF):
				w.cur.Close()
				w.cur = nil
			case err != nil:
				// Report the failed read against the directory being read
				// and keep going with its remaining entries. A second
				// consecutive failure means the handle cannot make
				// progress; drop the remainder of the directory.
				w.readErrs++
				failed := w.curPath
				if w.readErrs > 1 {
					w.cur.Close()
					w.cur = nil
				}
				return Item{Err: &backuperr.PathError{
					Kind: backuperr.CannotGetDirEntry,
					Path: failed,
					Err:  err,
				}}, true
			default:
				w.readErrs = 0
				entry := entries[0]
				path := filepath.Join(w.curPath, entry.Name())
				if entry.IsDir() {
					w.queue = append(w.queue, path)
					continue
				}
				if w.mode == FilesOnly {
					return Item{Path: path}, true
				}
				continue
			}
		}

		if len(w.queue) == 0 {
			return Item{}, false
		}

		next := w.queue[0]
		w.queue = w.queue[1:]
		dir, err := os.Open(next)
		if err != nil {
			// The walker never descends into a directory it failed to
			// open: no retry, no partial descent.
			return Item{Err: &backuperr.PathError{
				Kind: backuperr.CannotReadDirectoryContent,
				Path: next,
				Err:  err,
			}}, true
		}
		w.cur = dir
		w.curPath = next
		w.readErrs = 0
		if w.mode == DirectoriesOnly {
			return Item{Path: next}, true
		}
	}
}

// Count drains a fresh walker over root and returns the number of paths it
// yields, ignoring error items (they surface again on the working pass).
func Count(root string, mode Mode) (uint64, error) {
	w, err := New(root, mode)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	var n uint64
	for {
		item, ok := w.Next()
		if !ok {
			return n, nil
		}
		if item.Err == nil {
			n++
		}
	}
}
