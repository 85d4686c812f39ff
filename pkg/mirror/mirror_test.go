package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/safekeephq/safekeep/pkg/backuperr"
	"github.com/safekeephq/safekeep/pkg/message"
)

func mustMkdirAll(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCreateTreeMirrorsAllDirectories(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustMkdirAll(t,
		filepath.Join(src, "a", "deep", "deeper"),
		filepath.Join(src, "b"),
	)

	failed, errs := CreateTree(context.Background(), src, dst, nil, message.Discard)
	if len(failed) != 0 || len(errs) != 0 {
		t.Fatalf("failed=%v errs=%v", failed, errs)
	}
	for _, rel := range []string{"a", "a/deep", "a/deep/deeper", "b"} {
		info, err := os.Stat(filepath.Join(dst, filepath.FromSlash(rel)))
		if err != nil || !info.IsDir() {
			t.Errorf("destination %s not mirrored: %v", rel, err)
		}
	}
}

func TestCreateTreeSecondRunReportsExisting(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustMkdirAll(t, filepath.Join(src, "a", "b"))

	if _, errs := CreateTree(context.Background(), src, dst, nil, message.Discard); len(errs) != 0 {
		t.Fatalf("first run: %v", errs)
	}

	var created, existing int
	sink := message.SinkFunc(func(m message.Message) {
		inc, ok := m.(message.ProgressIncrement)
		if !ok {
			return
		}
		switch inc.Kind {
		case message.IncrementDirCreated:
			created++
		case message.IncrementAlreadyExists:
			existing++
		}
	})
	if _, errs := CreateTree(context.Background(), src, dst, nil, sink); len(errs) != 0 {
		t.Fatalf("second run: %v", errs)
	}
	if created != 0 || existing != 2 {
		t.Errorf("created=%d existing=%d, want 0 created and 2 existing", created, existing)
	}
}

func TestCreateTreeDestinationIsFile(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustMkdirAll(t, filepath.Join(src, "blocked", "child"))
	if err := os.WriteFile(filepath.Join(dst, "blocked"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	failed, errs := CreateTree(context.Background(), src, dst, nil, message.Discard)
	if len(failed) != 1 || failed[0] != filepath.Join(src, "blocked") {
		t.Fatalf("failed = %v, want the blocked source dir", failed)
	}
	if len(errs) != 1 || errs[0].Kind != backuperr.DestinationForSourceDirExistsAsFile {
		t.Fatalf("errs = %v, want one exists-as-file error", errs)
	}
	// The child under the failed dir must not have been created.
	if _, err := os.Stat(filepath.Join(dst, "blocked", "child")); err == nil {
		t.Error("child of failed directory must not be mirrored")
	}
}

func TestCreateTreeProgressEvents(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustMkdirAll(t, filepath.Join(src, "one"), filepath.Join(src, "two"))

	var events []message.Message
	sink := message.SinkFunc(func(m message.Message) { events = append(events, m) })
	if _, errs := CreateTree(context.Background(), src, dst, nil, sink); len(errs) != 0 {
		t.Fatal(errs)
	}

	start, ok := events[0].(message.ProgressStart)
	if !ok || start.Phase != message.PhaseMirrorDirs || start.Total != 2 {
		t.Fatalf("first event = %#v, want ProgressStart total 2", events[0])
	}
	if _, ok := events[len(events)-1].(message.ProgressEnd); !ok {
		t.Fatalf("last event = %#v, want ProgressEnd", events[len(events)-1])
	}
	last := uint64(0)
	for _, e := range events {
		if inc, ok := e.(message.ProgressIncrement); ok {
			if inc.Done != last+1 {
				t.Errorf("Done jumped from %d to %d", last, inc.Done)
			}
			last = inc.Done
		}
	}
	if last != 2 {
		t.Errorf("final Done = %d, want 2", last)
	}
}

func TestCreateTreeCancelled(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	mustMkdirAll(t, filepath.Join(src, "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, errs := CreateTree(ctx, src, dst, nil, message.Discard); len(errs) != 0 {
		t.Fatal(errs)
	}
	if _, err := os.Stat(filepath.Join(dst, "a")); err == nil {
		t.Error("cancelled run must create nothing")
	}
}
