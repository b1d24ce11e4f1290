// Package proc provides a typed "list processes by executable name" and
// terminate capability, so callers never parse shell command output.
package proc

import "path/filepath"

// Info describes one running process.
type Info struct {
	PID  int
	Name string // executable base name
	Path string // full executable path when available
}

// ListByName enumerates running processes whose executable base name matches
// name (case-insensitive on Windows, exact elsewhere).
func ListByName(name string) ([]Info, error) {
	return listByName(filepath.Base(name))
}

// Terminate asks the process to exit (SIGTERM on Unix, TerminateProcess on
// Windows).
func Terminate(pid int) error {
	return terminate(pid)
}
