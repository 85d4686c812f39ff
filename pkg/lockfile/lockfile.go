// Package lockfile guards a destination directory against concurrent
// runs. The lock is a JSON file created atomically in the destination; a
// background heartbeat keeps its timestamp fresh so a crashed holder's
// lock turns stale and can be taken over.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/safekeephq/safekeep/pkg/plog"
)

// Name is the lock file created in the destination directory. The '~'
// prefix marks it as transient.
const Name = ".~safekeep.lock"

// content is what the holder writes into the lock file.
type content struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	LastUpdate time.Time `json:"lastUpdate"`
	Nonce      string    `json:"nonce,omitempty"`
	App        string    `json:"app"`
}

// ErrHeld is returned when another live process holds the lock.
type ErrHeld struct {
	PID      int64
	Hostname string
	App      string
	Age      time.Duration
}

func (e *ErrHeld) Error() string {
	return fmt.Sprintf("destination is locked by PID %d on host %q (%s), last updated %s ago",
		e.PID, e.Hostname, e.App, e.Age.Truncate(time.Second))
}

// errLostRace: another process won a stale-lock takeover.
var errLostRace = errors.New("lost race during stale lock takeover")

// errCorrupt: the lock file is empty or not valid JSON.
var errCorrupt = errors.New("lock file is corrupt or empty")

// Vars so tests can shrink the timing.
var (
	heartbeatInterval = time.Minute
	staleAfter        = 3 * heartbeatInterval
)

// Lock is a held destination lock. Release it when the run ends.
type Lock struct {
	path    string
	content content
	cancel  context.CancelFunc
	mu      sync.Mutex
	held    bool
}

// Acquire locks the directory for app. It returns *ErrHeld when a live
// process already holds the lock; stale and corrupt locks are taken over.
func Acquire(ctx context.Context, dir, app string) (*Lock, error) {
	path := filepath.Join(dir, Name)
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lock, err := tryCreate(path, app)
		if err == nil {
			cleanupTempFiles(path)
			lock.startHeartbeat()
			return lock, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("cannot access lock file: %w", err)
		}

		// The file exists. A fresh timestamp means a live holder.
		existing, readErr := readContent(path)
		if readErr != nil && !errors.Is(readErr, errCorrupt) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if readErr == nil {
			age := time.Since(existing.LastUpdate)
			if age < staleAfter {
				return nil, &ErrHeld{
					PID:      existing.PID,
					Hostname: existing.Hostname,
					App:      existing.App,
					Age:      age,
				}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", existing.PID, "age", age)
		} else {
			plog.Warn("Found corrupt lock file, treating as stale", "path", path)
		}

		lock, err = takeOver(path, app)
		if err != nil {
			if !errors.Is(err, errLostRace) {
				plog.Warn("Lock takeover failed, retrying", "error", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		cleanupTempFiles(path)
		lock.startHeartbeat()
		return lock, nil
	}
	return nil, fmt.Errorf("cannot acquire lock after %d attempts", maxAttempts)
}

// Release stops the heartbeat and removes the lock file. Safe to call
// more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	l.cancel()
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
	}
	l.held = false
}

// tryCreate wins only if the file does not exist yet.
func tryCreate(path, app string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := newContent(app)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("cannot write lock file: %w", err)
	}
	return &Lock{path: path, content: c, held: true}, nil
}

// takeOver seizes a stale or corrupt lock by atomically replacing it,
// then reading it back to verify no concurrent takeover won instead.
func takeOver(path, app string) (*Lock, error) {
	c, err := newContent(app)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, c); err != nil {
		return nil, err
	}
	readback, err := readContent(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read back lock after takeover: %w", err)
	}
	if readback.PID != c.PID || readback.Nonce != c.Nonce {
		return nil, errLostRace
	}
	return &Lock{path: path, content: c, held: true}, nil
}

func newContent(app string) (content, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return content{}, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		return content{}, err
	}
	return content{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		LastUpdate: time.Now().UTC(),
		Nonce:      hex.EncodeToString(nonce),
		App:        app,
	}, nil
}

func (l *Lock) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.content.LastUpdate = time.Now().UTC()
				if err := writeAtomic(l.path, l.content); err != nil {
					// Try again next tick.
					plog.Warn("Heartbeat failed to update lock file", "error", err)
				}
			}
		}
	}()
}

// writeAtomic writes via a temp file in the same directory plus rename,
// so the lock file is never observed empty.
func writeAtomic(path string, c content) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temp lock file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func readContent(path string) (content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return content{}, err
	}
	var c content
	if len(data) == 0 || json.Unmarshal(data, &c) != nil {
		return content{}, errCorrupt
	}
	return c, nil
}

// cleanupTempFiles removes takeover leftovers from crashed runs.
func cleanupTempFiles(path string) {
	matches, err := filepath.Glob(path + ".*.tmp")
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
