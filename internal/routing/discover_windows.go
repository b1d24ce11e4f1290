//go:build windows

package routing

import (
	"fmt"
	"net"
	"os/exec"
	"strings"
)

// defaultRouteInterface finds the interface owning the 0.0.0.0/0 route by
// matching the route's local address against interface addresses.
func defaultRouteInterface() (string, error) {
	out, err := exec.Command("route", "print", "-4", "0.0.0.0").Output()
	if err != nil {
		return "", fmt.Errorf("route print: %w", err)
	}

	// Active route row: "0.0.0.0  0.0.0.0  <gateway>  <iface-addr>  <metric>".
	var localAddr string
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 5 && fields[0] == "0.0.0.0" && fields[1] == "0.0.0.0" {
			localAddr = fields[3]
			break
		}
	}
	if localAddr == "" {
		return "", fmt.Errorf("no active 0.0.0.0/0 route")
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.String() == localAddr {
				return ifi.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no interface owns route source %s", localAddr)
}
