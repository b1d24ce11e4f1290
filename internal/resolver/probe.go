package resolver

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"time"

	"wg-splitroute/internal/core"
)

const defaultProbeTimeout = 2 * time.Second

// Verifier confirms candidate IPs are actually reachable, not just
// DNS-resolvable, with a short-timeout TCP connect.
type Verifier struct {
	timeout time.Duration
	ports   []int
	log     *core.Logger

	// dial is swappable for tests.
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// NewVerifier builds a Verifier from resolver config.
func NewVerifier(cfg core.ResolverConfig, log *core.Logger) *Verifier {
	v := &Verifier{
		timeout: cfg.ProbeTimeout.Or(defaultProbeTimeout),
		ports:   cfg.ProbePorts,
		log:     log,
	}
	if len(v.ports) == 0 {
		v.ports = []int{80, 443}
	}
	dialer := &net.Dialer{}
	v.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp", addr)
	}
	return v
}

// FirstReachable probes candidates in order and returns the first one that
// accepts a TCP connection on any probe port.
func (v *Verifier) FirstReachable(ctx context.Context, candidates []netip.Addr) (netip.Addr, bool) {
	for _, ip := range candidates {
		if v.reachable(ctx, ip) {
			return ip, true
		}
		if ctx.Err() != nil {
			break
		}
	}
	return netip.Addr{}, false
}

func (v *Verifier) reachable(ctx context.Context, ip netip.Addr) bool {
	for _, port := range v.ports {
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))

		dialCtx, cancel := context.WithTimeout(ctx, v.timeout)
		conn, err := v.dial(dialCtx, addr)
		cancel()
		if err != nil {
			v.log.Debugf("Resolve", "probe %s: %v", addr, err)
			continue
		}
		conn.Close()
		return true
	}
	return false
}
