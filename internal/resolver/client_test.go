package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"testing"

	"github.com/miekg/dns"

	"wg-splitroute/internal/core"
)

// fakeExchange routes queries to canned per-server answers.
type fakeExchange map[string][]string // server → A record IPs; missing server errors

func (f fakeExchange) fn(_ context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	ips, ok := f[server]
	if !ok {
		return nil, fmt.Errorf("server %s unreachable", server)
	}
	reply := new(dns.Msg)
	reply.SetReply(msg)
	if len(ips) == 0 {
		reply.Rcode = dns.RcodeNameError
		return reply, nil
	}
	for _, ip := range ips {
		rr, err := dns.NewRR(fmt.Sprintf("%s 300 IN A %s", msg.Question[0].Name, ip))
		if err != nil {
			return nil, err
		}
		reply.Answer = append(reply.Answer, rr)
	}
	return reply, nil
}

func testClient(servers []string, ex fakeExchange) *Client {
	c := NewClient(core.ResolverConfig{Servers: servers}, core.Log)
	c.exchange = ex.fn
	return c
}

// TestResolveUnionsCandidates checks that distinct answers from different
// servers are unioned in first-seen order and the first candidate wins.
func TestResolveUnionsCandidates(t *testing.T) {
	c := testClient(
		[]string{"1.1.1.1", "8.8.8.8", "9.9.9.9"},
		fakeExchange{
			"1.1.1.1:53": {"10.0.0.1", "10.0.0.2"},
			"8.8.8.8:53": {"10.0.0.2", "10.0.0.3"}, // duplicate + one new
			"9.9.9.9:53": {"10.0.0.1"},
		},
	)

	r := c.Resolve(context.Background(), "example.test")
	if !r.OK() {
		t.Fatal("expected resolution to succeed")
	}
	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	if len(r.Candidates) != len(want) {
		t.Fatalf("candidates = %v, want %v", r.Candidates, want)
	}
	for i, w := range want {
		if r.Candidates[i] != netip.MustParseAddr(w) {
			t.Errorf("candidates[%d] = %s, want %s", i, r.Candidates[i], w)
		}
	}
	if r.Selected != netip.MustParseAddr("10.0.0.1") {
		t.Errorf("selected = %s, want first candidate 10.0.0.1", r.Selected)
	}
	if r.Resolver != "1.1.1.1:53" {
		t.Errorf("resolver = %s, want 1.1.1.1:53", r.Resolver)
	}
}

// TestResolvePartialFailure: one server down and one NXDOMAIN must not fail
// the domain while any server answers.
func TestResolvePartialFailure(t *testing.T) {
	c := testClient(
		[]string{"1.1.1.1", "8.8.8.8", "9.9.9.9"},
		fakeExchange{
			// 1.1.1.1 missing → dial error
			"8.8.8.8:53": {}, // NXDOMAIN
			"9.9.9.9:53": {"10.0.0.7"},
		},
	)

	r := c.Resolve(context.Background(), "example.test")
	if !r.OK() {
		t.Fatal("expected success from the one healthy server")
	}
	if r.Selected != netip.MustParseAddr("10.0.0.7") {
		t.Errorf("selected = %s, want 10.0.0.7", r.Selected)
	}
}

// TestResolveAllServersFailed is a soft failure: no Selected IP, no panic.
func TestResolveAllServersFailed(t *testing.T) {
	c := testClient([]string{"1.1.1.1", "8.8.8.8", "9.9.9.9"}, fakeExchange{})

	r := c.Resolve(context.Background(), "dead.test")
	if r.OK() {
		t.Errorf("expected soft failure, got selected %s", r.Selected)
	}
	if len(r.Candidates) != 0 {
		t.Errorf("candidates = %v, want none", r.Candidates)
	}
}

// TestResolveVerifierPicksReachable: with verification on, the selected IP is
// the first candidate that accepts a connection, not the first returned.
func TestResolveVerifierPicksReachable(t *testing.T) {
	c := testClient(
		[]string{"1.1.1.1", "8.8.8.8", "9.9.9.9"},
		fakeExchange{
			"1.1.1.1:53": {"10.0.0.1", "10.0.0.2"},
		},
	)
	c.verifier = NewVerifier(core.ResolverConfig{}, core.Log)
	c.verifier.dial = func(_ context.Context, addr string) (net.Conn, error) {
		if addr == "10.0.0.2:80" {
			server, client := net.Pipe()
			go server.Close()
			return client, nil
		}
		return nil, fmt.Errorf("refused")
	}

	r := c.Resolve(context.Background(), "example.test")
	if r.Selected != netip.MustParseAddr("10.0.0.2") {
		t.Errorf("selected = %s, want verified 10.0.0.2", r.Selected)
	}
}

func TestNormalizeServer(t *testing.T) {
	cases := []struct{ in, want string }{
		{"1.1.1.1", "1.1.1.1:53"},
		{"1.1.1.1:5353", "1.1.1.1:5353"},
		{"2606:4700::1111", "[2606:4700::1111]:53"},
		{"[2606:4700::1111]:53", "[2606:4700::1111]:53"},
	}
	for _, tc := range cases {
		if got := normalizeServer(tc.in); got != tc.want {
			t.Errorf("normalizeServer(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
