//go:build linux

package routing

import (
	"fmt"
	"os/exec"
	"strings"
)

// defaultRouteInterface parses `ip route show default` for the dev of the
// default route: "default via 192.168.1.1 dev eth0 proto dhcp ...".
func defaultRouteInterface() (string, error) {
	out, err := exec.Command("ip", "route", "show", "default").Output()
	if err != nil {
		return "", fmt.Errorf("ip route: %w", err)
	}

	fields := strings.Fields(strings.TrimSpace(string(out)))
	for i, f := range fields {
		if f == "dev" && i+1 < len(fields) {
			return fields[i+1], nil
		}
	}
	return "", fmt.Errorf("no default route device in %q", strings.TrimSpace(string(out)))
}
