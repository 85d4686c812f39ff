//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// validateMountPoint rejects destinations that sit on the root filesystem
// outside the user's home directory. A backup target under /mnt or /media
// that shares the root device ID is a ghost directory left behind by an
// unmounted drive.
func validateMountPoint(path string) error {
	if home, err := os.UserHomeDir(); err == nil && home != "" && strings.HasPrefix(path, home) {
		return nil
	}
	if !strings.HasPrefix(path, "/mnt/") && !strings.HasPrefix(path, "/media/") {
		return nil
	}

	rootInfo, err := os.Stat("/")
	if err != nil {
		return nil
	}
	rootStat, ok := rootInfo.Sys().(*unix.Stat_t)
	if !ok {
		return nil
	}
	pathInfo, err := os.Stat(path)
	if err != nil {
		return nil
	}
	pathStat, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok {
		return nil
	}
	if pathStat.Dev == rootStat.Dev {
		return fmt.Errorf("%s is on the system disk; the expected drive does not appear to be mounted", path)
	}
	return nil
}

// freeBytes reports the space available to unprivileged writes on the
// filesystem holding path.
func freeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
