// Package metafile records what the last run did in a small JSON file
// inside the destination, so a later inspection of a backup can tell when
// and by which version it was written.
package metafile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Name of the run metadata file inside the destination root.
const Name = ".safekeep.meta.json"

// Content describes the most recent run against a destination.
type Content struct {
	Version      string        `json:"version"`
	Operation    string        `json:"operation"`
	Source       string        `json:"source"`
	TimestampUTC time.Time     `json:"timestampUTC"`
	Duration     time.Duration `json:"duration"`
	PathErrors   int           `json:"pathErrors,omitempty"`
}

// Write stores content in the destination directory.
func Write(destination string, content *Content) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal run metadata: %w", err)
	}
	path := filepath.Join(destination, Name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write meta file %s: %w", path, err)
	}
	return nil
}

// Read parses the metadata file in the destination directory. A missing
// file surfaces as the original os error so callers can test for it.
func Read(destination string) (Content, error) {
	path := filepath.Join(destination, Name)
	f, err := os.Open(path)
	if err != nil {
		return Content{}, err
	}
	defer f.Close()

	var content Content
	if err := json.NewDecoder(f).Decode(&content); err != nil {
		return Content{}, fmt.Errorf("could not parse meta file %s: %w", path, err)
	}
	return content, nil
}
