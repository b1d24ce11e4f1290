package routing

import (
	"net"
	"strings"
)

// findTunnelInterface scans live interfaces for one whose name contains any of
// the given keywords. Loopback and down interfaces are skipped.
func findTunnelInterface(keywords []string) (string, bool) {
	if len(keywords) == 0 {
		keywords = []string{"wg", "tun", "awg", "wintun"}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", false
	}

	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback != 0 || ifi.Flags&net.FlagUp == 0 {
			continue
		}
		name := strings.ToLower(ifi.Name)
		for _, kw := range keywords {
			if strings.Contains(name, strings.ToLower(kw)) {
				return ifi.Name, true
			}
		}
	}
	return "", false
}
