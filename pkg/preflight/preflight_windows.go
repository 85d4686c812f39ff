//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// validateMountPoint verifies that the volume root of path exists, e.g.
// "Z:\" for "Z:\backup". A missing volume means the drive or share is not
// connected.
func validateMountPoint(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil
	}
	if !strings.HasSuffix(volume, string(filepath.Separator)) {
		volume += string(filepath.Separator)
	}
	if _, err := os.Stat(filepath.Clean(volume)); os.IsNotExist(err) {
		return fmt.Errorf("volume root %s does not exist; ensure the drive is connected", volume)
	}
	return nil
}

// freeBytes reports the space available to the calling user on the volume
// holding path.
func freeBytes(path string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
