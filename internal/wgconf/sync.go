package wgconf

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/hosts"
)

// confTemplate seeds a missing peer configuration. Keys are placeholders the
// operator must fill in; the owned fields are populated on the same run.
const confTemplate = `[Interface]
# PrivateKey = <fill in your private key>
Address = 10.0.0.2/32

[Peer]
# PublicKey = <fill in the server public key>
AllowedIPs =
Endpoint =
`

// Syncer rewrites the owned fields of the peer configuration from the
// resolved IP table and the environment config.
type Syncer struct {
	env core.EnvConfig
	log *core.Logger
}

func NewSyncer(env core.EnvConfig, log *core.Logger) *Syncer {
	return &Syncer{env: env, log: log}
}

// Summary reports what a sync run changed.
type Summary struct {
	AllowedIPs int
	Capped     int
	Endpoint   string
}

// Sync loads (or bootstraps) the configuration at env.WGConfPath, replaces
// Endpoint, MTU, DNS, PersistentKeepalive, and AllowedIPs, and writes the
// result atomically. udpPort is the live local transport port; the peer
// endpoint targets the local transport, so a reassigned port must flow
// through here or the handshake goes to a dead socket.
func (s *Syncer) Sync(entries []hosts.Entry, udpPort int) (Summary, error) {
	path := s.env.WGConfPath
	if path == "" {
		return Summary{}, fmt.Errorf("[Sync] no peer config path set (WG_CONF)")
	}

	doc, err := s.loadOrBootstrap(path)
	if err != nil {
		return Summary{}, err
	}
	if !doc.HasSection("interface") || !doc.HasSection("peer") {
		return Summary{}, fmt.Errorf("[Sync] %s: missing [Interface] or [Peer] section", path)
	}

	allowed, capped := s.allowedIPs(entries)
	endpoint := fmt.Sprintf("127.0.0.1:%d", udpPort)

	for _, f := range []struct {
		section, key, value string
	}{
		{"Interface", "MTU", strconv.Itoa(s.env.MTU)},
		{"Interface", "DNS", s.env.DNS.String()},
		{"Peer", "Endpoint", endpoint},
		{"Peer", "PersistentKeepalive", strconv.Itoa(s.env.KeepaliveSeconds)},
		{"Peer", "AllowedIPs", joinPrefixes(allowed)},
	} {
		if err := doc.SetField(f.section, f.key, f.value); err != nil {
			return Summary{}, fmt.Errorf("[Sync] %s: %w", path, err)
		}
	}

	if err := atomicWrite(path, doc.Bytes()); err != nil {
		return Summary{}, fmt.Errorf("[Sync] write %s: %w", path, err)
	}

	sum := Summary{AllowedIPs: len(allowed), Capped: capped, Endpoint: endpoint}
	s.log.Infof("Sync", "Synced %s: %d AllowedIPs (%d capped), endpoint %s",
		path, sum.AllowedIPs, sum.Capped, endpoint)
	return sum, nil
}

// loadOrBootstrap parses the config, creating it from the template on first
// run. Before the first managed edit of a pre-existing file a one-time .orig
// copy is kept next to it.
func (s *Syncer) loadOrBootstrap(path string) (*Document, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		s.log.Infof("Sync", "Peer config %s missing, bootstrapping from template", path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("[Sync] create config dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(confTemplate), 0o600); err != nil {
			return nil, fmt.Errorf("[Sync] bootstrap %s: %w", path, err)
		}
		return ParseDocumentString(confTemplate), nil
	}

	origPath := path + ".orig"
	if _, err := os.Stat(origPath); os.IsNotExist(err) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("[Sync] read %s: %w", path, err)
		}
		if err := os.WriteFile(origPath, data, 0o600); err != nil {
			s.log.Warnf("Sync", "Could not keep original copy %s: %v", origPath, err)
		}
	}

	doc, err := ParseDocument(path)
	if err != nil {
		return nil, fmt.Errorf("[Sync] %w", err)
	}
	return doc, nil
}

// allowedIPs builds the AllowedIPs set: the required extra prefixes first,
// then every resolved IP as a host route, deduplicated and sorted. The cap
// trims resolved routes only, never the required extras.
func (s *Syncer) allowedIPs(entries []hosts.Entry) (prefixes []netip.Prefix, capped int) {
	seen := make(map[netip.Prefix]struct{})
	add := func(p netip.Prefix) bool {
		if _, ok := seen[p]; ok {
			return false
		}
		seen[p] = struct{}{}
		prefixes = append(prefixes, p)
		return true
	}

	for _, p := range s.env.AllowedIPsExtra {
		add(p)
	}
	required := len(prefixes)

	var resolved []netip.Prefix
	for _, e := range entries {
		p := netip.PrefixFrom(e.Addr, e.Addr.BitLen())
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		resolved = append(resolved, p)
	}
	sort.Slice(resolved, func(i, j int) bool {
		if c := resolved[i].Addr().Compare(resolved[j].Addr()); c != 0 {
			return c < 0
		}
		return resolved[i].Bits() < resolved[j].Bits()
	})

	limit := s.env.AllowedIPsCap
	if limit > 0 && required+len(resolved) > limit {
		keep := limit - required
		if keep < 0 {
			keep = 0
		}
		capped = len(resolved) - keep
		s.log.Warnf("Sync", "AllowedIPs capped at %d, dropping %d resolved routes", limit, capped)
		resolved = resolved[:keep]
	}
	return append(prefixes, resolved...), capped
}

func joinPrefixes(prefixes []netip.Prefix) string {
	parts := make([]string, len(prefixes))
	for i, p := range prefixes {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}

// atomicWrite writes data to a temp sibling and renames it into place.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
