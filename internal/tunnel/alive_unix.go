//go:build !windows

package tunnel

import "golang.org/x/sys/unix"

// processAlive reports whether pid still exists (signal 0 probe).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
