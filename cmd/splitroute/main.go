package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/hosts"
	"wg-splitroute/internal/resolver"
	"wg-splitroute/internal/routing"
	"wg-splitroute/internal/tunnel"
	"wg-splitroute/internal/wgconf"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags.
var (
	configPath string
	verbose    bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])

	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		fatal("%v", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	core.Log = core.NewLogger(cfg.Logging)
	log := core.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "resolve":
		os.Exit(cmdResolve(ctx, &cfg, log, cmdArgs))
	case "sync-hosts":
		os.Exit(cmdSyncHosts(&cfg, log, cmdArgs))
	case "sync-config":
		os.Exit(cmdSyncConfig(&cfg, log, cmdArgs))
	case "tunnel":
		if len(cmdArgs) < 1 {
			fatal("usage: splitroute tunnel <start|stop|health|install|uninstall> [--env FILE]")
		}
		os.Exit(cmdTunnel(ctx, &cfg, log, cmdArgs[0], cmdArgs[1:]))
	case "ifaces":
		os.Exit(cmdIfaces(&cfg, log))
	case "version":
		fmt.Printf("splitroute %s (%s, built %s)\n", version, commit, buildDate)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
}

// cmdResolve runs the batch resolution pipeline: domain list in, IP table out.
func cmdResolve(ctx context.Context, cfg *core.Config, log *core.Logger, args []string) int {
	listPath := "domains.txt"
	outPath := "ip-table.txt"
	reportPath := ""
	batchSize := 0
	concurrency := 0
	verify := cfg.Resolver.Verify

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--domains":
			listPath = argValue(args, &i)
		case "--out":
			outPath = argValue(args, &i)
		case "--report":
			reportPath = argValue(args, &i)
		case "--batch-size":
			batchSize = argInt(args, &i)
		case "--concurrency":
			concurrency = argInt(args, &i)
		case "--verify":
			verify = true
		default:
			fatal("resolve: unknown flag %s", args[i])
		}
	}

	lock := mustLock(cfg, listPath)
	defer lock.Release()

	rcfg := cfg.Resolver
	rcfg.Verify = verify
	client := resolver.NewClient(rcfg, log)
	co := resolver.NewCoordinator(client, cfg.Batch, log)

	summary, err := co.RunBatches(ctx, listPath, outPath, batchSize, concurrency)
	if err != nil {
		fatal("%v", err)
	}
	if err := resolver.WriteFailedReport(reportPath, summary.FailedDomains, log); err != nil {
		log.Errorf("Resolve", "%v", err)
	}
	if summary.Fail > 0 {
		return 1
	}
	return 0
}

// cmdSyncHosts partitions the IP table into the hosts-file category blocks.
// Categories come from the domain list's directives; table entries whose
// domain is not listed default to foreign-verified.
func cmdSyncHosts(cfg *core.Config, log *core.Logger, args []string) int {
	tablePath := "ip-table.txt"
	hostsPath := cfg.HostsPath
	listPath := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--ip-table":
			tablePath = argValue(args, &i)
		case "--hosts":
			hostsPath = argValue(args, &i)
		case "--domains":
			listPath = argValue(args, &i)
		default:
			fatal("sync-hosts: unknown flag %s", args[i])
		}
	}

	lock := mustLock(cfg, tablePath)
	defer lock.Release()

	entries, err := resolver.ReadTable(tablePath, log)
	if err != nil {
		fatal("%v", err)
	}

	index := map[string]hosts.Category{}
	if listPath != "" {
		records, err := resolver.LoadDomainList(listPath, log)
		if err != nil {
			fatal("%v", err)
		}
		index = resolver.CategoryIndex(records)
	}

	sections := make(map[hosts.Category][]hosts.Entry)
	for _, e := range entries {
		cat, ok := index[e.Domain]
		if !ok {
			cat = hosts.ForeignVerified
		}
		sections[cat] = append(sections[cat], e)
	}

	store := hosts.NewStore(hostsPath, log)
	written, err := store.WriteSections(sections)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("synced %d entries to %s\n", written, store.Path())
	return 0
}

// cmdSyncConfig rewrites the peer configuration from the IP table and the
// environment config, using the live transport port.
func cmdSyncConfig(cfg *core.Config, log *core.Logger, args []string) int {
	tablePath := "ip-table.txt"
	envPath := "splitroute.env"
	confPath := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--ip-table":
			tablePath = argValue(args, &i)
		case "--env":
			envPath = argValue(args, &i)
		case "--conf":
			confPath = argValue(args, &i)
		default:
			fatal("sync-config: unknown flag %s", args[i])
		}
	}

	env, err := core.LoadEnvConfig(envPath, log)
	if err != nil {
		fatal("%v", err)
	}
	if confPath != "" {
		env.WGConfPath = confPath
	}

	entries, err := resolver.ReadTable(tablePath, log)
	if err != nil {
		fatal("%v", err)
	}

	sup := tunnel.NewSupervisor(cfg.Tunnel, env, log)
	ports := sup.Ports()

	syncer := wgconf.NewSyncer(env, log)
	sum, err := syncer.Sync(entries, ports.UDP)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("synced %d AllowedIPs, endpoint %s\n", sum.AllowedIPs, sum.Endpoint)
	return 0
}

// cmdTunnel dispatches the tunnel lifecycle subcommands.
func cmdTunnel(ctx context.Context, cfg *core.Config, log *core.Logger, sub string, args []string) int {
	envPath := "splitroute.env"
	var watch time.Duration
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--env":
			envPath = argValue(args, &i)
		case "--watch":
			d, err := time.ParseDuration(argValue(args, &i))
			if err != nil {
				fatal("--watch: %v", err)
			}
			watch = d
		default:
			fatal("tunnel %s: unknown flag %s", sub, args[i])
		}
	}

	env, err := core.LoadEnvConfig(envPath, log)
	if err != nil {
		fatal("%v", err)
	}
	sup := tunnel.NewSupervisor(cfg.Tunnel, env, log)

	switch sub {
	case "start":
		if err := sup.Start(ctx); err != nil {
			fatal("%v", err)
		}
		ports := sup.Ports()
		fmt.Printf("tunnel running (udp=%d socks=%d http=%d)\n", ports.UDP, ports.Socks, ports.HTTP)
	case "stop":
		if err := sup.Stop(); err != nil {
			fatal("%v", err)
		}
		fmt.Println("tunnel stopped")
	case "health":
		if watch > 0 {
			return watchHealth(ctx, sup, watch, log)
		}
		state := sup.HealthCheck(ctx)
		fmt.Printf("status: %s", state.Status)
		if state.PID != 0 {
			fmt.Printf(" (pid %d)", state.PID)
		}
		fmt.Println()
		if state.Status != tunnel.Running {
			return 1
		}
	case "install":
		if err := sup.InstallService(); err != nil {
			fatal("%v", err)
		}
	case "uninstall":
		if err := sup.UninstallService(); err != nil {
			fatal("%v", err)
		}
	default:
		fatal("unknown tunnel subcommand: %s", sub)
	}
	return 0
}

// watchHealth re-checks tunnel connectivity on a fixed interval until
// interrupted. Status transitions are logged; the exit code reflects the last
// observed status.
func watchHealth(ctx context.Context, sup *tunnel.Supervisor, interval time.Duration, log *core.Logger) int {
	last := tunnel.Stopped
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state := sup.HealthCheck(ctx)
		if state.Status != last {
			log.Infof("Tunnel", "Health: %s -> %s", last, state.Status)
			last = state.Status
		}
		select {
		case <-ctx.Done():
			if last == tunnel.Running {
				return 0
			}
			return 1
		case <-ticker.C:
		}
	}
}

// cmdIfaces shows the resolved interface names and the effective per-category
// egress, the inputs any external route programming needs.
func cmdIfaces(cfg *core.Config, log *core.Logger) int {
	engine, err := routing.NewEngine(cfg, log)
	if err != nil {
		fatal("%v", err)
	}
	ifaces := engine.ResolveInterfaces()
	fmt.Printf("physical: %s\nvirtual:  %s\n", orNone(ifaces.Physical), orNone(ifaces.Virtual))
	for _, cat := range hosts.Categories {
		p := engine.PolicyFor(cat)
		fmt.Printf("%-18s egress=%s metric=%d\n", cat, engine.EffectiveEgress(p, ifaces), p.Metric)
	}
	return 0
}

// mustLock takes the single-instance lock, defaulting the lock path next to
// the primary data file.
func mustLock(cfg *core.Config, dataPath string) *core.LockFile {
	path := cfg.LockFile
	if path == "" {
		path = filepath.Join(filepath.Dir(dataPath), ".splitroute.lock")
	}
	lock, err := core.AcquireLock(path)
	if err != nil {
		fatal("%v", err)
	}
	return lock
}

// parseGlobalFlags extracts --config and --verbose from args and returns the rest.
func parseGlobalFlags(args []string) []string {
	var remaining []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--verbose", "-v":
			verbose = true
		default:
			remaining = append(remaining, args[i])
		}
	}
	if configPath == "" {
		configPath = "splitroute.yaml"
	}
	return remaining
}

func argValue(args []string, i *int) string {
	if *i+1 >= len(args) {
		fatal("%s requires a value", args[*i])
	}
	*i++
	return args[*i]
}

func argInt(args []string, i *int) int {
	s := argValue(args, i)
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		fatal("%s: invalid integer %q", args[*i-1], s)
	}
	return n
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

func printUsage() {
	fmt.Println(`splitroute — split-tunnel resolution and routing pipeline

Usage: splitroute [--config FILE] [--verbose] <command> [flags]

Resolution:
  resolve --domains FILE --out FILE [--batch-size N] [--concurrency N]
          [--verify] [--report FILE]
                                    Resolve the domain list into the IP table

Synchronization:
  sync-hosts --ip-table FILE [--hosts FILE] [--domains FILE]
                                    Rewrite the hosts-file category blocks
  sync-config --ip-table FILE [--env FILE] [--conf FILE]
                                    Rewrite the peer configuration AllowedIPs

Tunnel:
  tunnel start [--env FILE]         Start the tunnel transport
  tunnel stop [--env FILE]          Stop the tunnel transport
  tunnel health [--env FILE] [--watch INTERVAL]
                                    Check tunnel connectivity (exit 1 if down)
  tunnel install [--env FILE]       Register as a background service
  tunnel uninstall [--env FILE]     Remove the background service

Other:
  ifaces                            Show resolved interfaces and route policies
  version                           Show version

Exit codes: 0 success, 1 partial failure, 2 fatal error.`)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
