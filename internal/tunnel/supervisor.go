// Package tunnel supervises the external tunnel transport binary: port
// conflict resolution, process lifecycle, health checks, and background
// service registration. The transport protocol itself is a black box.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/proc"
)

// Status is the supervisor's view of the tunnel process lifecycle.
type Status int

const (
	Stopped Status = iota
	Starting
	Running
	Failed
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the transient, never-persisted process state. (The small state
// file written for cross-invocation port lookup is a projection, not this.)
type State struct {
	PID         int
	ListenPorts []int
	Status      Status
}

const (
	defaultGraceWindow = 2 * time.Second
	healthTimeout      = 5 * time.Second
	stopTimeout        = 5 * time.Second
)

// Supervisor manages one tunnel transport subprocess.
type Supervisor struct {
	cfg core.TunnelConfig
	env core.EnvConfig
	log *core.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	state State
	ports PortPlan
}

// NewSupervisor builds a supervisor from the app and environment configs.
func NewSupervisor(cfg core.TunnelConfig, env core.EnvConfig, log *core.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, env: env, log: log}
}

// Start resolves port conflicts, spawns the tunnel binary with its stdio
// redirected to the log file, and waits for the transport port to be bound.
// The ports actually chosen are surfaced in the state (and the state file)
// for the config synchronizer — a silent reassignment would desync the peer
// configuration.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status == Running || s.state.Status == Starting {
		return fmt.Errorf("[Tunnel] already %s (pid %d)", s.state.Status, s.state.PID)
	}
	if s.cfg.Binary == "" {
		return fmt.Errorf("[Tunnel] no tunnel binary configured")
	}

	plan, err := s.resolvePorts()
	if err != nil {
		return err
	}
	s.ports = plan

	args := s.launchArgs(plan)

	cmd := exec.Command(s.cfg.Binary, args...)
	if s.cfg.LogFile != "" {
		f, err := os.OpenFile(s.cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("[Tunnel] open log file %s: %w", s.cfg.LogFile, err)
		}
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("[Tunnel] start %s: %w", s.cfg.Binary, err)
	}
	s.cmd = cmd
	s.state = State{PID: cmd.Process.Pid, ListenPorts: plan.Ports(), Status: Starting}
	s.log.Infof("Tunnel", "Started %s (pid %d, udp=%d socks=%d http=%d)",
		s.cfg.Binary, cmd.Process.Pid, plan.UDP, plan.Socks, plan.HTTP)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	// Grace window: an immediate exit is a failed start, not a crash-loop.
	grace := s.cfg.GraceWindow.Or(defaultGraceWindow)
	select {
	case err := <-exited:
		s.state.Status = Failed
		return fmt.Errorf("[Tunnel] %s exited %s after start: %v", s.cfg.Binary, grace, err)
	case <-time.After(grace):
	}

	// Bounded wait for the transport port to be bound by the child.
	waitPolicy := core.RetryPolicy{MaxAttempts: 20, InitialDelay: 250 * time.Millisecond, Multiplier: 1}
	err = waitPolicy.Do(ctx, func(int) error {
		if portFree(plan.UDP, "udp") {
			return fmt.Errorf("udp port %d not yet bound", plan.UDP)
		}
		return nil
	})
	if err != nil {
		s.state.Status = Failed
		return fmt.Errorf("[Tunnel] transport port %d never bound: %w", plan.UDP, err)
	}

	s.state.Status = Running
	if err := writeStateFile(s.stateFilePath(), s.state); err != nil {
		s.log.Warnf("Tunnel", "State file write failed: %v", err)
	}
	return nil
}

// Stop terminates the child (or, when started by a previous invocation, every
// process running the configured binary), waiting briefly before killing.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		s.state = State{Status: Stopped}
		os.Remove(s.stateFilePath())
	}()

	if s.cmd != nil && s.cmd.Process != nil {
		return stopProcess(s.cmd.Process.Pid, s.log)
	}

	// Cross-invocation stop: find holders of our binary.
	infos, err := proc.ListByName(s.cfg.Binary)
	if err != nil {
		return fmt.Errorf("[Tunnel] list %s processes: %w", s.cfg.Binary, err)
	}
	if len(infos) == 0 {
		s.log.Infof("Tunnel", "No running instance of %s", s.cfg.Binary)
		return nil
	}
	for _, info := range infos {
		if err := stopProcess(info.PID, s.log); err != nil {
			return err
		}
	}
	return nil
}

// stopProcess terminates pid, escalating to kill after a timeout.
func stopProcess(pid int, log *core.Logger) error {
	if err := proc.Terminate(pid); err != nil {
		return fmt.Errorf("[Tunnel] terminate pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			log.Infof("Tunnel", "Process %d stopped", pid)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	log.Warnf("Tunnel", "Process %d ignored terminate, killing", pid)
	if p, err := os.FindProcess(pid); err == nil {
		p.Kill()
	}
	return nil
}

// HealthCheck verifies actual connectivity to the remote endpoint, not just
// process liveness: a Running process whose tunnel passes no traffic reports
// Failed. When a SOCKS5 port is configured and the process is up, the dial
// goes through the tunnel; otherwise it is a direct reachability signal.
func (s *Supervisor) HealthCheck(ctx context.Context) State {
	s.mu.Lock()
	state := s.state
	ports := s.ports
	s.mu.Unlock()

	// Pick up state from a previous invocation.
	if state.Status == Stopped {
		if persisted, err := readStateFile(s.stateFilePath()); err == nil && processAlive(persisted.PID) {
			state = persisted
			if len(persisted.ListenPorts) >= 2 {
				ports.Socks = persisted.ListenPorts[1]
			}
		}
	}

	if state.Status == Running && state.PID != 0 && !processAlive(state.PID) {
		state.Status = Stopped
		return state
	}
	if state.Status != Running {
		return state
	}

	endpoint := s.env.Endpoint()
	var conn net.Conn
	var err error
	if ports.Socks > 0 {
		conn, err = s.dialViaSocks(ctx, ports.Socks, endpoint)
	} else {
		d := net.Dialer{Timeout: healthTimeout}
		conn, err = d.DialContext(ctx, "tcp", endpoint)
	}
	if err != nil {
		s.log.Warnf("Tunnel", "Health check to %s failed: %v", endpoint, err)
		state.Status = Failed
		return state
	}
	conn.Close()
	return state
}

// dialViaSocks dials the remote endpoint through the local SOCKS5 listener.
func (s *Supervisor) dialViaSocks(ctx context.Context, socksPort int, endpoint string) (net.Conn, error) {
	dialer, err := proxy.SOCKS5("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(socksPort)), nil,
		&net.Dialer{Timeout: healthTimeout})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", endpoint)
	}
	return dialer.Dial("tcp", endpoint)
}

// Ports returns the resolved port plan of the last Start, falling back to the
// persisted state file and then the environment defaults. This is how the
// config synchronizer learns the live transport port.
func (s *Supervisor) Ports() PortPlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ports.UDP != 0 {
		return s.ports
	}
	if persisted, err := readStateFile(s.stateFilePath()); err == nil && len(persisted.ListenPorts) == 3 {
		return PortPlan{
			UDP:   persisted.ListenPorts[0],
			Socks: persisted.ListenPorts[1],
			HTTP:  persisted.ListenPorts[2],
		}
	}
	return PortPlan{UDP: s.env.UDPPort, Socks: s.env.SocksPort, HTTP: s.env.HTTPPort}
}

// launchArgs builds the subprocess CLI: listen addresses/ports, the remote
// endpoint URL, then any extra configured arguments.
func (s *Supervisor) launchArgs(plan PortPlan) []string {
	args := []string{
		"-l", net.JoinHostPort("0.0.0.0", strconv.Itoa(plan.UDP)),
		"-r", s.env.Endpoint(),
	}
	if plan.Socks > 0 {
		args = append(args, "--socks5", net.JoinHostPort("127.0.0.1", strconv.Itoa(plan.Socks)))
	}
	if plan.HTTP > 0 {
		args = append(args, "--http", net.JoinHostPort("127.0.0.1", strconv.Itoa(plan.HTTP)))
	}
	return append(args, s.cfg.Args...)
}

func (s *Supervisor) stateFilePath() string {
	if s.cfg.LogFile != "" {
		return s.cfg.LogFile + ".state"
	}
	return "tunnel.state"
}
