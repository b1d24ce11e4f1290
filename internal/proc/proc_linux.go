//go:build linux

package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// listByName walks /proc. The comm file truncates names to 15 bytes, so the
// exe symlink is preferred and comm is the fallback for unreadable targets.
func listByName(name string) ([]Info, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	var result []Info
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}

		var procName, procPath string
		if target, err := os.Readlink(filepath.Join("/proc", e.Name(), "exe")); err == nil {
			procPath = target
			procName = filepath.Base(target)
		} else if comm, err := os.ReadFile(filepath.Join("/proc", e.Name(), "comm")); err == nil {
			procName = strings.TrimSpace(string(comm))
		} else {
			continue
		}

		if procName == name || matchesTruncatedComm(procName, name) {
			result = append(result, Info{PID: pid, Name: procName, Path: procPath})
		}
	}
	return result, nil
}

// matchesTruncatedComm handles the 15-byte comm truncation.
func matchesTruncatedComm(comm, name string) bool {
	return len(comm) == 15 && strings.HasPrefix(name, comm)
}

func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
