package core

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
)

// EnvConfig is the typed form of the legacy key=value environment file shared
// with the shell-side tooling. The file format is kept for compatibility; the
// untyped map the old scripts passed around is not.
type EnvConfig struct {
	// ServerAddr is the remote tunnel server host (IP or hostname).
	ServerAddr string
	// ServerPort is the remote tunnel server port.
	ServerPort int
	// UDPPort is the local UDP transport listen port.
	UDPPort int
	// SocksPort is the local SOCKS5 listen port (0 disables).
	SocksPort int
	// HTTPPort is the local HTTP proxy listen port (0 disables).
	HTTPPort int

	// MTU for the peer configuration.
	MTU int
	// DNS server written into the peer configuration.
	DNS netip.Addr
	// KeepaliveSeconds is the PersistentKeepalive interval.
	KeepaliveSeconds int

	// AllowedIPsCap bounds the synced AllowedIPs set.
	AllowedIPsCap int
	// AllowedIPsExtra are required internal/link-local CIDRs always included.
	AllowedIPsExtra []netip.Prefix

	// WGConfPath is the peer configuration file to sync.
	WGConfPath string

	// BatchSize / Concurrency override the app-config batch defaults when set.
	BatchSize   int
	Concurrency int
}

// envDefaults returns an EnvConfig with the documented defaults applied.
func envDefaults() EnvConfig {
	return EnvConfig{
		ServerPort:       51820,
		UDPPort:          29900,
		MTU:              1280,
		DNS:              netip.MustParseAddr("1.1.1.1"),
		KeepaliveSeconds: 25,
		AllowedIPsCap:    100,
	}
}

// LoadEnvConfig parses a key=value environment file. Lines may carry trailing
// `#` comments; blank lines and full-line comments are ignored. Unknown keys
// are logged and skipped so the file can keep serving the shell tooling.
func LoadEnvConfig(path string, log *Logger) (EnvConfig, error) {
	cfg := envDefaults()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("[Core] open env config %s: %w", path, err)
	}
	defer f.Close()

	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			log.Warnf("Core", "%s:%d: not a key=value line, skipped", path, lineNo)
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if err := cfg.set(key, value, log); err != nil {
			return cfg, fmt.Errorf("[Core] %s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("[Core] read env config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("[Core] env config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *EnvConfig) set(key, value string, log *Logger) error {
	switch key {
	case "SERVER_ADDR":
		c.ServerAddr = value
	case "SERVER_PORT":
		return setInt(&c.ServerPort, key, value)
	case "UDP_PORT":
		return setInt(&c.UDPPort, key, value)
	case "SOCKS_PORT":
		return setInt(&c.SocksPort, key, value)
	case "HTTP_PORT":
		return setInt(&c.HTTPPort, key, value)
	case "MTU":
		return setInt(&c.MTU, key, value)
	case "DNS":
		ip, err := netip.ParseAddr(value)
		if err != nil {
			return fmt.Errorf("DNS: invalid address %q", value)
		}
		c.DNS = ip
	case "KEEPALIVE":
		return setInt(&c.KeepaliveSeconds, key, value)
	case "ALLOWED_IPS_CAP":
		return setInt(&c.AllowedIPsCap, key, value)
	case "ALLOWED_IPS_EXTRA":
		for _, s := range strings.Split(value, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return fmt.Errorf("ALLOWED_IPS_EXTRA: invalid CIDR %q", s)
			}
			c.AllowedIPsExtra = append(c.AllowedIPsExtra, p)
		}
	case "WG_CONF":
		c.WGConfPath = value
	case "BATCH_SIZE":
		return setInt(&c.BatchSize, key, value)
	case "CONCURRENCY":
		return setInt(&c.Concurrency, key, value)
	default:
		log.Debugf("Core", "env config: unknown key %s, skipped", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, value)
	}
	*dst = n
	return nil
}

// Validate checks the ranges a typed schema can enforce.
func (c *EnvConfig) Validate() error {
	for _, p := range []struct {
		name string
		val  int
	}{
		{"SERVER_PORT", c.ServerPort},
		{"UDP_PORT", c.UDPPort},
	} {
		if p.val < 1 || p.val > 65535 {
			return fmt.Errorf("%s: port %d out of range", p.name, p.val)
		}
	}
	for _, p := range []struct {
		name string
		val  int
	}{
		{"SOCKS_PORT", c.SocksPort},
		{"HTTP_PORT", c.HTTPPort},
	} {
		if p.val != 0 && (p.val < 1 || p.val > 65535) {
			return fmt.Errorf("%s: port %d out of range", p.name, p.val)
		}
	}
	if c.MTU < 576 || c.MTU > 9000 {
		return fmt.Errorf("MTU: %d out of range (576..9000)", c.MTU)
	}
	if c.KeepaliveSeconds < 0 {
		return fmt.Errorf("KEEPALIVE: must be non-negative")
	}
	if c.AllowedIPsCap < 1 {
		return fmt.Errorf("ALLOWED_IPS_CAP: must be positive")
	}
	return nil
}

// Endpoint returns the remote endpoint as host:port.
func (c *EnvConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}
