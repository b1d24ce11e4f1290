package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "5s", "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Or returns d, or def when d is zero.
func (d Duration) Or(def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return time.Duration(d)
}

// ResolverConfig configures the multi-server DNS resolver client.
type ResolverConfig struct {
	// Servers are upstream DNS server addresses ("1.1.1.1" or "1.1.1.1:53").
	Servers []string `yaml:"servers,omitempty"`
	// QueryTimeout is the per-query timeout (default 5s).
	QueryTimeout Duration `yaml:"query_timeout,omitempty"`
	// ServerDeadline is the overall per-server deadline covering A+AAAA (default 12s).
	ServerDeadline Duration `yaml:"server_deadline,omitempty"`
	// IPv6 enables AAAA lookups in addition to A.
	IPv6 bool `yaml:"ipv6,omitempty"`
	// Verify enables TCP connectivity probing of candidate IPs.
	Verify bool `yaml:"verify,omitempty"`
	// ProbeTimeout is the per-candidate TCP probe timeout (default 2s).
	ProbeTimeout Duration `yaml:"probe_timeout,omitempty"`
	// ProbePorts are the TCP ports probed during verification (default 80, 443).
	ProbePorts []int `yaml:"probe_ports,omitempty"`
}

// RetryConfig configures a retry policy from YAML.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts,omitempty"`
	InitialDelay Duration `yaml:"initial_delay,omitempty"`
	Multiplier   float64  `yaml:"multiplier,omitempty"`
	Jitter       float64  `yaml:"jitter,omitempty"`
}

// BatchConfig configures the batch resolution coordinator.
type BatchConfig struct {
	// Size is the number of domains per batch (default 20).
	Size int `yaml:"size,omitempty"`
	// Concurrency bounds the per-batch worker pool (default 10).
	Concurrency int `yaml:"concurrency,omitempty"`
	// Delay is the inter-batch pause to avoid resolver rate limiting (default 2s).
	Delay Duration `yaml:"delay,omitempty"`
	// Retry is the per-domain retry policy (default 3 attempts from 1s, doubling).
	Retry RetryConfig `yaml:"retry,omitempty"`
	// ExternalResolver optionally names a legacy whole-file resolver command.
	// When set, the coordinator swaps each batch over the real domain-list file
	// before invoking it. Empty means in-memory resolution (the normal mode).
	ExternalResolver string `yaml:"external_resolver,omitempty"`
}

// PolicyConfig maps a hosts category to an egress and route metric.
type PolicyConfig struct {
	Egress string `yaml:"egress"` // "physical", "virtual", "auto"
	Metric int    `yaml:"metric"`
}

// InterfacesConfig holds interface-discovery fallbacks and match keywords.
type InterfacesConfig struct {
	// Physical is the fallback physical interface name when discovery fails.
	Physical string `yaml:"physical,omitempty"`
	// Virtual is the fallback tunnel interface name when discovery fails.
	Virtual string `yaml:"virtual,omitempty"`
	// VirtualKeywords match the tunnel adapter by name substring.
	VirtualKeywords []string `yaml:"virtual_keywords,omitempty"`
}

// TunnelConfig configures the external tunnel transport binary.
type TunnelConfig struct {
	// Binary is the path to the tunnel transport executable.
	Binary string `yaml:"binary,omitempty"`
	// Args are extra CLI arguments appended after the generated listen/remote flags.
	Args []string `yaml:"args,omitempty"`
	// LogFile receives the subprocess stdout/stderr.
	LogFile string `yaml:"log_file,omitempty"`
	// PortSearchRange bounds the upward search for a free port (default 100).
	PortSearchRange int `yaml:"port_search_range,omitempty"`
	// GraceWindow is how long after spawn an exit counts as a failed start (default 2s).
	GraceWindow Duration `yaml:"grace_window,omitempty"`
	// ServiceName is the background-service name for install/uninstall mode.
	ServiceName string `yaml:"service_name,omitempty"`
}

// Config is the top-level application configuration, loaded once at process
// start and passed by reference to component constructors.
type Config struct {
	Resolver   ResolverConfig          `yaml:"resolver,omitempty"`
	Batch      BatchConfig             `yaml:"batch,omitempty"`
	Policies   map[string]PolicyConfig `yaml:"policies,omitempty"`
	Interfaces InterfacesConfig        `yaml:"interfaces,omitempty"`
	Tunnel     TunnelConfig            `yaml:"tunnel,omitempty"`
	Logging    LogConfig               `yaml:"logging,omitempty"`

	// HostsPath overrides the platform hosts file location (tests, dry runs).
	HostsPath string `yaml:"hosts_path,omitempty"`
	// LockFile overrides the single-instance lock file location.
	LockFile string `yaml:"lock_file,omitempty"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Resolver: ResolverConfig{
			Servers: []string{"1.1.1.1", "8.8.8.8", "9.9.9.9"},
		},
		Policies: map[string]PolicyConfig{
			"domestic":         {Egress: "physical", Metric: 10},
			"foreign-verified": {Egress: "virtual", Metric: 10},
			"foreign-cdn":      {Egress: "virtual", Metric: 20},
			"special":          {Egress: "auto", Metric: 5},
		},
		Interfaces: InterfacesConfig{
			VirtualKeywords: []string{"wg", "tun", "awg", "wintun"},
		},
	}
}

// LoadConfig reads and parses the YAML app config. A missing file yields the
// built-in defaults; a malformed file is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("[Core] read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("[Core] parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("[Core] config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints the YAML schema cannot express.
func (c *Config) Validate() error {
	if len(c.Resolver.Servers) < 3 {
		return fmt.Errorf("resolver.servers needs at least 3 independent servers, got %d", len(c.Resolver.Servers))
	}
	if c.Batch.Size < 0 || c.Batch.Concurrency < 0 {
		return fmt.Errorf("batch.size and batch.concurrency must be non-negative")
	}
	for name, p := range c.Policies {
		switch p.Egress {
		case "physical", "virtual", "auto":
		default:
			return fmt.Errorf("policies.%s.egress: unknown egress %q", name, p.Egress)
		}
	}
	return nil
}
