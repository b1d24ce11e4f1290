// Package routing computes the per-category routing policy and resolves which
// concrete interfaces "physical" and "virtual" mean on this machine. It does
// not program OS routes; applying metrics is an external operation fed by this
// package's output.
package routing

import (
	"fmt"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/hosts"
)

// Egress names the interface class traffic for a category is sent out on.
type Egress int

const (
	// Physical routes via the real NIC, bypassing the tunnel.
	Physical Egress = iota
	// Virtual routes via the tunnel adapter.
	Virtual
	// Auto resolves to Virtual when the tunnel adapter is present, else Physical.
	Auto
)

func (e Egress) String() string {
	switch e {
	case Physical:
		return "physical"
	case Virtual:
		return "virtual"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseEgress parses an egress name from config.
func ParseEgress(s string) (Egress, error) {
	switch s {
	case "physical":
		return Physical, nil
	case "virtual":
		return Virtual, nil
	case "auto", "":
		return Auto, nil
	default:
		return Auto, fmt.Errorf("unknown egress: %q", s)
	}
}

// Policy is the static routing assignment of one hosts category.
type Policy struct {
	Egress Egress
	Metric int
}

// Interfaces holds the resolved concrete interface names.
type Interfaces struct {
	Physical string
	Virtual  string
}

// Engine holds the static category→policy table and performs interface
// discovery. The table is configuration, never mutated by runtime resolution.
type Engine struct {
	policies map[hosts.Category]Policy
	ifaces   core.InterfacesConfig
	log      *core.Logger
}

// NewEngine builds the policy table from the app config.
func NewEngine(cfg *core.Config, log *core.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[hosts.Category]Policy, len(cfg.Policies)),
		ifaces:   cfg.Interfaces,
		log:      log,
	}
	for name, pc := range cfg.Policies {
		cat, err := hosts.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("[Route] policies: %w", err)
		}
		egress, err := ParseEgress(pc.Egress)
		if err != nil {
			return nil, fmt.Errorf("[Route] policies.%s: %w", name, err)
		}
		e.policies[cat] = Policy{Egress: egress, Metric: pc.Metric}
	}
	return e, nil
}

// PolicyFor returns the configured policy for a category. Categories without
// an explicit entry route via the tunnel with a neutral metric.
func (e *Engine) PolicyFor(cat hosts.Category) Policy {
	if p, ok := e.policies[cat]; ok {
		return p
	}
	return Policy{Egress: Virtual, Metric: 10}
}

// ResolveInterfaces discovers the default-route (physical) interface and the
// tunnel adapter by keyword. Discovery failures fall back to the configured
// defaults instead of erroring, so policy application can always proceed.
func (e *Engine) ResolveInterfaces() Interfaces {
	result := Interfaces{
		Physical: e.ifaces.Physical,
		Virtual:  e.ifaces.Virtual,
	}

	if name, err := defaultRouteInterface(); err == nil && name != "" {
		result.Physical = name
	} else if err != nil {
		e.log.Warnf("Route", "Default-route discovery failed, using fallback %q: %v", result.Physical, err)
	}

	if name, ok := findTunnelInterface(e.ifaces.VirtualKeywords); ok {
		result.Virtual = name
	} else {
		e.log.Debugf("Route", "No tunnel adapter found, using fallback %q", result.Virtual)
	}

	return result
}

// EffectiveEgress collapses Auto using the resolved interfaces: Virtual when a
// tunnel adapter is actually present, Physical otherwise.
func (e *Engine) EffectiveEgress(p Policy, ifaces Interfaces) Egress {
	if p.Egress != Auto {
		return p.Egress
	}
	if ifaces.Virtual != "" {
		return Virtual
	}
	return Physical
}
