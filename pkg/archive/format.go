package archive

import (
	"fmt"
	"strings"
)

// Format represents the archive container and compression scheme.
type Format string

const (
	Zip    Format = "zip"
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
)

// ParseFormat converts a user-supplied string into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case Zip:
		return Zip, nil
	case TarGz:
		return TarGz, nil
	case TarZst:
		return TarZst, nil
	}
	return "", fmt.Errorf("invalid archive format %q: must be 'zip', 'tar.gz', or 'tar.zst'", s)
}

// FormatFromPath infers the Format from an archive file name.
func FormatFromPath(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return Zip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz, nil
	case strings.HasSuffix(lower, ".tar.zst"):
		return TarZst, nil
	}
	return "", fmt.Errorf("cannot infer archive format from %q", path)
}

// Level selects the speed/ratio trade-off of the compressor.
type Level string

const (
	Fastest Level = "fastest"
	Default Level = "default"
	Better  Level = "better"
	Best    Level = "best"
)

// ParseLevel converts a user-supplied string into a Level. The empty
// string means Default.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case Fastest:
		return Fastest, nil
	case Default, "":
		return Default, nil
	case Better:
		return Better, nil
	case Best:
		return Best, nil
	}
	return "", fmt.Errorf("invalid compression level %q: must be 'fastest', 'default', 'better', or 'best'", s)
}
