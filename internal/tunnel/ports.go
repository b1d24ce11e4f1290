package tunnel

import (
	"fmt"
	"net"
	"strconv"

	"wg-splitroute/internal/proc"
)

const defaultPortSearchRange = 100

// PortPlan is the set of local ports the tunnel binary will be launched with,
// after conflict resolution. Zero means the role is disabled.
type PortPlan struct {
	UDP   int // transport port
	Socks int // SOCKS5 listener
	HTTP  int // HTTP proxy listener
}

// Ports returns the plan as an ordered slice (udp, socks, http).
func (p PortPlan) Ports() []int { return []int{p.UDP, p.Socks, p.HTTP} }

// resolvePorts scans the required local ports. A port held by a previous
// instance of the same binary frees it by terminating that instance; a port
// held by an unrelated process triggers a bounded upward search for the next
// free one. Reassignments are logged — the chosen port must reach the config
// synchronizer, never disappear silently.
func (s *Supervisor) resolvePorts() (PortPlan, error) {
	searchRange := s.cfg.PortSearchRange
	if searchRange <= 0 {
		searchRange = defaultPortSearchRange
	}

	plan := PortPlan{}
	for _, want := range []struct {
		name    string
		network string
		port    int
		dst     *int
	}{
		{"udp transport", "udp", s.env.UDPPort, &plan.UDP},
		{"socks5", "tcp", s.env.SocksPort, &plan.Socks},
		{"http proxy", "tcp", s.env.HTTPPort, &plan.HTTP},
	} {
		if want.port == 0 {
			continue
		}
		got, err := s.claimPort(want.name, want.network, want.port, searchRange)
		if err != nil {
			return plan, err
		}
		*want.dst = got
	}
	return plan, nil
}

// claimPort returns port if free (possibly after evicting a stale same-binary
// holder), else the next free port within the search range.
func (s *Supervisor) claimPort(name, network string, port, searchRange int) (int, error) {
	if portFree(port, network) {
		return port, nil
	}

	// A previous instance of our own binary may be squatting the port.
	if s.evictOwnBinary() && portFree(port, network) {
		s.log.Infof("Tunnel", "Reclaimed %s port %d from a previous instance", name, port)
		return port, nil
	}

	for candidate := port + 1; candidate <= port+searchRange; candidate++ {
		if portFree(candidate, network) {
			s.log.Warnf("Tunnel", "%s port %d is in use by an unrelated process, reassigned to %d",
				name, port, candidate)
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("[Tunnel] no free %s port in %d..%d", name, port, port+searchRange)
}

// evictOwnBinary terminates lingering processes of the configured binary.
// Returns whether anything was terminated.
func (s *Supervisor) evictOwnBinary() bool {
	infos, err := proc.ListByName(s.cfg.Binary)
	if err != nil || len(infos) == 0 {
		return false
	}
	evicted := false
	for _, info := range infos {
		s.log.Infof("Tunnel", "Terminating previous instance pid %d (%s)", info.PID, info.Name)
		if err := stopProcess(info.PID, s.log); err == nil {
			evicted = true
		}
	}
	return evicted
}

// portFree reports whether a local port can be bound on the given network.
func portFree(port int, network string) bool {
	addr := net.JoinHostPort("", strconv.Itoa(port))
	switch network {
	case "udp":
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		conn.Close()
	default:
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		ln.Close()
	}
	return true
}
