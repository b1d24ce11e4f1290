// Package resolver implements the clean-IP resolution pipeline: a multi-server
// DNS client with optional connectivity verification, and the crash-safe batch
// coordinator that turns a domain list into the merged IP table.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"wg-splitroute/internal/core"
)

const (
	defaultQueryTimeout   = 5 * time.Second
	defaultServerDeadline = 12 * time.Second
)

// Result is the outcome of resolving one domain across all servers.
type Result struct {
	Domain string
	// Candidates is the union of every distinct IP any server returned,
	// in first-seen order.
	Candidates []netip.Addr
	// Selected is the winning IP; the zero Addr when every server failed.
	Selected netip.Addr
	// Resolver is the server that first produced the selected IP.
	Resolver string
	// Attempts counts coordinator-level retries consumed for this domain.
	Attempts int
}

// OK reports whether the domain resolved to at least one candidate.
func (r Result) OK() bool { return r.Selected.IsValid() }

// Client queries a fixed, ordered set of independent DNS servers and picks a
// winning IP per domain. Single-server failures are soft: any server returning
// any record makes the domain resolved.
type Client struct {
	servers        []string // normalized to host:port
	queryTimeout   time.Duration
	serverDeadline time.Duration
	ipv6           bool
	verifier       *Verifier // nil when connectivity verification is off
	log            *core.Logger

	// exchange is swappable for tests.
	exchange func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error)
}

// NewClient builds a Client from config.
func NewClient(cfg core.ResolverConfig, log *core.Logger) *Client {
	c := &Client{
		queryTimeout:   cfg.QueryTimeout.Or(defaultQueryTimeout),
		serverDeadline: cfg.ServerDeadline.Or(defaultServerDeadline),
		ipv6:           cfg.IPv6,
		log:            log,
	}
	for _, s := range cfg.Servers {
		c.servers = append(c.servers, normalizeServer(s))
	}
	if cfg.Verify {
		c.verifier = NewVerifier(cfg, log)
	}

	dnsClient := &dns.Client{Timeout: c.queryTimeout}
	c.exchange = func(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
		reply, _, err := dnsClient.ExchangeContext(ctx, msg, server)
		return reply, err
	}
	return c
}

// Resolve queries every server for A (and optionally AAAA) records of domain
// and unions the answers. All-servers-failed is a soft failure: the Result
// comes back with no Selected IP and the caller decides whether to retry.
func (c *Client) Resolve(ctx context.Context, domain string) Result {
	result := Result{Domain: domain}
	source := make(map[netip.Addr]string)

	for _, server := range c.servers {
		ips, err := c.queryServer(ctx, domain, server)
		if err != nil {
			// Partial failure: log and move to the next server.
			c.log.Debugf("Resolve", "%s via %s: %v", domain, server, err)
			continue
		}
		for _, ip := range ips {
			if _, seen := source[ip]; seen {
				continue
			}
			source[ip] = server
			result.Candidates = append(result.Candidates, ip)
		}
	}

	if len(result.Candidates) == 0 {
		return result
	}

	result.Selected = result.Candidates[0]
	if c.verifier != nil {
		if ip, ok := c.verifier.FirstReachable(ctx, result.Candidates); ok {
			result.Selected = ip
		} else {
			c.log.Warnf("Resolve", "%s: no candidate reachable, falling back to %s",
				domain, result.Selected)
		}
	}
	result.Resolver = source[result.Selected]
	return result
}

// queryServer asks one server for the domain's records under the per-server
// deadline. NXDOMAIN and empty answers are reported as errors so the caller
// can count them as partial failures.
func (c *Client) queryServer(ctx context.Context, domain, server string) ([]netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, c.serverDeadline)
	defer cancel()

	types := []uint16{dns.TypeA}
	if c.ipv6 {
		types = append(types, dns.TypeAAAA)
	}

	var ips []netip.Addr
	var lastErr error
	for _, qtype := range types {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(domain), qtype)
		msg.RecursionDesired = true

		reply, err := c.exchange(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("rcode %s", dns.RcodeToString[reply.Rcode])
			continue
		}
		for _, rr := range reply.Answer {
			switch a := rr.(type) {
			case *dns.A:
				if ip, ok := netip.AddrFromSlice(a.A.To4()); ok {
					ips = append(ips, ip)
				}
			case *dns.AAAA:
				if ip, ok := netip.AddrFromSlice(a.AAAA); ok {
					ips = append(ips, ip)
				}
			}
		}
	}

	if len(ips) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("no answer")
	}
	return ips, nil
}

// normalizeServer appends the default DNS port when missing.
func normalizeServer(s string) string {
	if _, _, err := net.SplitHostPort(s); err == nil {
		return s
	}
	// Bare IPv6 addresses need bracketing before the port join.
	if strings.Count(s, ":") > 1 && !strings.HasPrefix(s, "[") {
		return "[" + s + "]:53"
	}
	return net.JoinHostPort(s, "53")
}
