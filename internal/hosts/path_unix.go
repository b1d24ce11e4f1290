//go:build !windows

package hosts

// DefaultPath returns the platform hosts file location.
func DefaultPath() string { return "/etc/hosts" }
