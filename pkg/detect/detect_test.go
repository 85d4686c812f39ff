package detect

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/safekeephq/safekeep/pkg/message"
	"github.com/safekeephq/safekeep/pkg/pool"
)

func newDetector(sink message.Sink) *Detector {
	if sink == nil {
		sink = message.Discard
	}
	return New(pool.NewBuffers(64*1024), sink)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDecideMissingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	writeFile(t, src, "hello")

	d := newDetector(nil)
	if !d.Decide(src, filepath.Join(dir, "absent.txt")) {
		t.Error("missing destination must be copied")
	}
}

func TestDecideIdenticalPair(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeFile(t, src, "same content")
	writeFile(t, dst, "same content")

	// Align metadata so the decision falls through to hashing.
	when := time.Now().Add(-time.Hour)
	for _, p := range []string{src, dst} {
		if err := os.Chtimes(p, when, when); err != nil {
			t.Fatal(err)
		}
	}

	d := newDetector(nil)
	if d.Decide(src, dst) {
		t.Error("identical metadata and content must be skipped")
	}
}

func TestDecideMetadataMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeFile(t, src, "longer content here")
	writeFile(t, dst, "short")

	d := newDetector(nil)
	if !d.Decide(src, dst) {
		t.Error("length mismatch must be copied")
	}
}

func TestDecideHashMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	// Same length and mode, different bytes.
	writeFile(t, src, "aaaa")
	writeFile(t, dst, "bbbb")
	when := time.Now().Add(-time.Hour)
	for _, p := range []string{src, dst} {
		if err := os.Chtimes(p, when, when); err != nil {
			t.Fatal(err)
		}
	}

	d := newDetector(nil)
	if !d.Decide(src, dst) {
		t.Error("content mismatch behind equal metadata must be copied")
	}
}

func TestDecideUnreadableSourceFailsOpen(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits do not apply to root")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeFile(t, src, "data")
	writeFile(t, dst, "data")
	when := time.Now().Add(-time.Hour)
	for _, p := range []string{src, dst} {
		if err := os.Chtimes(p, when, when); err != nil {
			t.Fatal(err)
		}
	}
	// Same mode on both sides keeps the metadata equal, forcing the
	// hash step, which then fails on the unreadable source.
	for _, p := range []string{src, dst} {
		if err := os.Chmod(p, 0o000); err != nil {
			t.Fatal(err)
		}
		defer os.Chmod(p, 0o644)
	}

	var warned []message.Message
	d := newDetector(message.SinkFunc(func(m message.Message) {
		warned = append(warned, m)
	}))
	if !d.Decide(src, dst) {
		t.Error("hash failure must fail open and request the copy")
	}
	if len(warned) != 1 {
		t.Fatalf("expected one warning, got %d", len(warned))
	}
	w, ok := warned[0].(message.Warning)
	if !ok || w.Kind != message.WarningCannotGetHash {
		t.Errorf("expected CannotGetHash warning, got %#v", warned[0])
	}
}

func TestSnapshotEqual(t *testing.T) {
	a := Snapshot{Modified: 1, Length: 2, Mode: 0o644}
	if !a.Equal(a) {
		t.Error("snapshot must equal itself")
	}
	b := a
	b.Mode = 0o600
	if a.Equal(b) {
		t.Error("mode difference must break equality")
	}
}
