//go:build !linux && !windows

package tunnel

import "fmt"

func installService(name, binary string, args []string) error {
	return fmt.Errorf("service registration is not supported on this platform")
}

func uninstallService(name string) error {
	return fmt.Errorf("service registration is not supported on this platform")
}
