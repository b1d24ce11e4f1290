//go:build darwin

package routing

import (
	"fmt"
	"os/exec"
	"strings"
)

// defaultRouteInterface parses `route -n get default` for the interface line.
func defaultRouteInterface() (string, error) {
	out, err := exec.Command("route", "-n", "get", "default").Output()
	if err != nil {
		return "", fmt.Errorf("route get default: %w", err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "interface:"); ok {
			return strings.TrimSpace(name), nil
		}
	}
	return "", fmt.Errorf("no interface line in route output")
}
