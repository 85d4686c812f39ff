package command

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/safekeephq/safekeep/pkg/backuperr"
	"github.com/safekeephq/safekeep/pkg/message"
)

type recordingSink struct {
	mu     sync.Mutex
	events []message.Message
}

func (s *recordingSink) Send(m message.Message) {
	s.mu.Lock()
	s.events = append(s.events, m)
	s.mu.Unlock()
}

func (s *recordingSink) count(kind message.IncrementKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if inc, ok := e.(message.ProgressIncrement); ok && inc.Kind == kind {
			n++
		}
	}
	return n
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// listTree returns every entry under root as a sorted set of relative
// slash paths, directories carrying a trailing slash.
func listTree(t *testing.T, root string) map[string]bool {
	t.Helper()
	out := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			rel += "/"
		}
		out[rel] = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func newDispatcher(t *testing.T, opts Options, sink message.Sink) *Dispatcher {
	t.Helper()
	d, err := New(opts, sink)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestBackupMirrorsSourceTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "docs", "readme.md"), "hello")
	if err := os.MkdirAll(filepath.Join(src, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	d := newDispatcher(t, Options{}, nil)
	if err := d.Run(context.Background(), Request{Operation: Backup, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{
		"a.txt": true, "docs/": true, "docs/readme.md": true, "empty/": true,
	}
	got := listTree(t, dst)
	for rel := range want {
		if !got[rel] {
			t.Errorf("destination missing %s", rel)
		}
	}
	if readFile(t, filepath.Join(dst, "docs", "readme.md")) != "hello" {
		t.Error("copied content mismatch")
	}
}

func TestBackupIsIdempotent(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "beta")

	d := newDispatcher(t, Options{}, nil)
	req := Request{Operation: Backup, Source: src, Destination: dst}
	if err := d.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	d2 := newDispatcher(t, Options{}, sink)
	if err := d2.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if n := sink.count(message.IncrementFileCopied); n != 0 {
		t.Errorf("second run copied %d files, want 0", n)
	}
	if n := sink.count(message.IncrementSkippedNoModification); n != 2 {
		t.Errorf("second run skipped %d files, want 2", n)
	}
	if n := sink.count(message.IncrementAlreadyExists); n != 1 {
		t.Errorf("second run found %d existing dirs, want 1", n)
	}
}

func TestBackupLeavesStaleDestinationEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dst, "stale.txt"), "old")

	d := newDispatcher(t, Options{}, nil)
	if err := d.Run(context.Background(), Request{Operation: Backup, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dst, "stale.txt")); err != nil {
		t.Error("backup must never delete destination entries")
	}
}

func TestSyncPurgesStaleEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "keep.txt"), "keep")
	writeFile(t, filepath.Join(dst, "stale.txt"), "old")
	writeFile(t, filepath.Join(dst, "olddir", "x.txt"), "old")

	d := newDispatcher(t, Options{}, nil)
	if err := d.Run(context.Background(), Request{Operation: Sync, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}

	got := listTree(t, dst)
	want := map[string]bool{"keep.txt": true}
	if len(got) != len(want) || !got["keep.txt"] {
		t.Errorf("after sync destination holds %v, want exactly keep.txt", got)
	}
}

func TestSyncTwiceMatchesSourceExactly(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a", "one.txt"), "1")
	writeFile(t, filepath.Join(src, "b", "two.txt"), "2")

	d := newDispatcher(t, Options{}, nil)
	req := Request{Operation: Sync, Source: src, Destination: dst}
	if err := d.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	// Mutate the source and sync again.
	if err := os.RemoveAll(filepath.Join(src, "b")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(src, "a", "three.txt"), "3")
	if err := d.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	srcTree := listTree(t, src)
	dstTree := listTree(t, dst)
	if len(srcTree) != len(dstTree) {
		t.Fatalf("trees differ: src=%v dst=%v", srcTree, dstTree)
	}
	for rel := range srcTree {
		if !dstTree[rel] {
			t.Errorf("destination missing %s", rel)
		}
	}
}

func TestRestoreBringsBackDeletedFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "precious.txt"), "do not lose")

	d := newDispatcher(t, Options{}, nil)
	if err := d.Run(context.Background(), Request{Operation: Backup, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}

	// Simulate data loss.
	if err := os.Remove(filepath.Join(src, "precious.txt")); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background(), Request{Operation: Restore, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}
	if readFile(t, filepath.Join(src, "precious.txt")) != "do not lose" {
		t.Error("restore did not bring the file back")
	}
}

func TestRestoreWithDeleteRemovesExtraSourceEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "wanted.txt"), "keep")

	d := newDispatcher(t, Options{}, nil)
	if err := d.Run(context.Background(), Request{Operation: Backup, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(src, "junk.txt"), "accidental")
	req := Request{Operation: Restore, Source: src, Destination: dst, DeleteFiles: true}
	if err := d.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(src, "junk.txt")); err == nil {
		t.Error("restore --delete must remove entries absent from the backup")
	}
	if _, err := os.Stat(filepath.Join(src, "wanted.txt")); err != nil {
		t.Error("restored entry missing")
	}
}

func TestRestoreWithoutDeleteKeepsExtraSourceEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "wanted.txt"), "keep")

	d := newDispatcher(t, Options{}, nil)
	if err := d.Run(context.Background(), Request{Operation: Backup, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(src, "extra.txt"), "newer than backup")
	if err := d.Run(context.Background(), Request{Operation: Restore, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(src, "extra.txt")); err != nil {
		t.Error("plain restore must not delete source entries")
	}
}

func TestRestoreCreatesMissingBackupRoot(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "live.txt"), "data")
	dst := filepath.Join(t.TempDir(), "missing-backup")

	d := newDispatcher(t, Options{}, nil)
	if err := d.Run(context.Background(), Request{Operation: Restore, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dst)
	if err != nil || !info.IsDir() {
		t.Fatalf("backup root must be created when missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(src, "live.txt")); err != nil {
		t.Error("restoring from an empty backup must leave the live tree alone")
	}
}

func TestRestoreMissingSourceIsFatal(t *testing.T) {
	d := newDispatcher(t, Options{}, nil)
	err := d.Run(context.Background(), Request{
		Operation:   Restore,
		Source:      filepath.Join(t.TempDir(), "missing-live"),
		Destination: t.TempDir(),
	})
	if !backuperr.IsFatal(err) {
		t.Fatalf("got %v, want a root error", err)
	}
}

func TestRunMissingSourceIsFatal(t *testing.T) {
	d := newDispatcher(t, Options{}, nil)
	err := d.Run(context.Background(), Request{
		Operation:   Backup,
		Source:      filepath.Join(t.TempDir(), "missing"),
		Destination: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if !backuperr.IsFatal(err) {
		t.Errorf("got %T, want a root error", err)
	}
}

func TestRunPartialFailureIsolated(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a", "good.txt"), "fine")
	writeFile(t, filepath.Join(src, "b", "blocked.txt"), "never arrives")
	// A file squatting on the destination path of directory b.
	writeFile(t, filepath.Join(dst, "b"), "in the way")

	d := newDispatcher(t, Options{}, nil)
	err := d.Run(context.Background(), Request{Operation: Backup, Source: src, Destination: dst})
	if err == nil {
		t.Fatal("expected an aggregate error")
	}
	if backuperr.IsFatal(err) {
		t.Fatal("per-path failures must not be fatal")
	}
	var agg *backuperr.Aggregate
	if !errors.As(err, &agg) {
		t.Fatalf("got %T, want *backuperr.Aggregate", err)
	}
	if len(agg.Paths) != 1 {
		t.Fatalf("aggregate holds %d errors, want 1: %v", len(agg.Paths), agg)
	}
	if agg.Paths[0].Kind != backuperr.DestinationForSourceDirExistsAsFile {
		t.Errorf("kind = %v", agg.Paths[0].Kind)
	}
	// The unaffected subtree still arrives in full.
	if readFile(t, filepath.Join(dst, "a", "good.txt")) != "fine" {
		t.Error("independent subtree must still be copied")
	}
}

func TestSyncPurgeRunsDespiteCopyFailures(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "b", "blocked.txt"), "never arrives")
	writeFile(t, filepath.Join(dst, "b"), "in the way") // blocks dir b
	writeFile(t, filepath.Join(dst, "stale.txt"), "old")

	d := newDispatcher(t, Options{}, nil)
	err := d.Run(context.Background(), Request{Operation: Sync, Source: src, Destination: dst})
	if err == nil {
		t.Fatal("expected an aggregate error")
	}
	if _, statErr := os.Stat(filepath.Join(dst, "stale.txt")); statErr == nil {
		t.Error("purge must still remove stale entries after copy failures")
	}
}

func TestRunHonorsExclusions(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "code.go"), "package main")
	writeFile(t, filepath.Join(src, "debug.log"), "noise")
	writeFile(t, filepath.Join(src, ".git", "HEAD"), "ref")

	d := newDispatcher(t, Options{
		ExcludeFiles: []string{"*.log"},
		ExcludeDirs:  []string{".git"},
	}, nil)
	if err := d.Run(context.Background(), Request{Operation: Sync, Source: src, Destination: dst}); err != nil {
		t.Fatal(err)
	}

	got := listTree(t, dst)
	if !got["code.go"] {
		t.Error("included file missing")
	}
	if got["debug.log"] || got[".git/"] || got[".git/HEAD"] {
		t.Errorf("excluded entries copied: %v", got)
	}
}

func TestRunCancelledContext(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := newDispatcher(t, Options{}, nil)
	err := d.Run(ctx, Request{Operation: Backup, Source: src, Destination: dst})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	if _, err := New(Options{ExcludeFiles: []string{"[oops"}}, nil); err == nil {
		t.Fatal("expected error for malformed exclusion pattern")
	}
}
