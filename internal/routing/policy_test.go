package routing

import (
	"testing"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/hosts"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := core.DefaultConfig()
	e, err := NewEngine(&cfg, core.Log)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// TestPolicyForDefaults: the default table routes domestic direct and foreign
// through the tunnel, and an unconfigured category falls back to the tunnel.
func TestPolicyForDefaults(t *testing.T) {
	e := testEngine(t)

	cases := []struct {
		cat    hosts.Category
		egress Egress
		metric int
	}{
		{hosts.Domestic, Physical, 10},
		{hosts.ForeignVerified, Virtual, 10},
		{hosts.ForeignCDN, Virtual, 20},
		{hosts.Special, Auto, 5},
	}
	for _, tc := range cases {
		p := e.PolicyFor(tc.cat)
		if p.Egress != tc.egress || p.Metric != tc.metric {
			t.Errorf("PolicyFor(%s) = %+v, want egress=%s metric=%d", tc.cat, p, tc.egress, tc.metric)
		}
	}

	empty := &Engine{policies: map[hosts.Category]Policy{}, log: core.Log}
	if p := empty.PolicyFor(hosts.Domestic); p.Egress != Virtual {
		t.Errorf("unconfigured category = %+v, want Virtual fallback", p)
	}
}

// TestEffectiveEgressAuto collapses Auto by tunnel-adapter presence.
func TestEffectiveEgressAuto(t *testing.T) {
	e := testEngine(t)
	auto := Policy{Egress: Auto}

	if got := e.EffectiveEgress(auto, Interfaces{Virtual: "wg0"}); got != Virtual {
		t.Errorf("auto with adapter = %s, want virtual", got)
	}
	if got := e.EffectiveEgress(auto, Interfaces{}); got != Physical {
		t.Errorf("auto without adapter = %s, want physical", got)
	}
	// Explicit egress is never overridden.
	if got := e.EffectiveEgress(Policy{Egress: Physical}, Interfaces{Virtual: "wg0"}); got != Physical {
		t.Errorf("explicit physical = %s, want physical", got)
	}
}

// TestNewEngineRejectsBadPolicy surfaces config typos at startup.
func TestNewEngineRejectsBadPolicy(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Policies["domestic"] = core.PolicyConfig{Egress: "sideways"}
	if _, err := NewEngine(&cfg, core.Log); err == nil {
		t.Error("expected error for unknown egress")
	}

	cfg = core.DefaultConfig()
	cfg.Policies["no-such-category"] = core.PolicyConfig{Egress: "virtual"}
	if _, err := NewEngine(&cfg, core.Log); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestParseEgress(t *testing.T) {
	for in, want := range map[string]Egress{
		"physical": Physical,
		"virtual":  Virtual,
		"auto":     Auto,
		"":         Auto,
	} {
		got, err := ParseEgress(in)
		if err != nil || got != want {
			t.Errorf("ParseEgress(%q) = (%v, %v), want %v", in, got, err, want)
		}
	}
	if _, err := ParseEgress("bogus"); err == nil {
		t.Error("expected error for bogus egress")
	}
}
