package tunnel

import "fmt"

// InstallService registers the tunnel binary as a managed background service
// (systemd on Linux, SCM on Windows), trading restart-on-crash semantics for a
// managed lifecycle. HealthCheck works identically in both modes.
func (s *Supervisor) InstallService() error {
	if s.cfg.Binary == "" {
		return fmt.Errorf("[Tunnel] no tunnel binary configured")
	}
	name := s.serviceName()
	args := s.launchArgs(PortPlan{UDP: s.env.UDPPort, Socks: s.env.SocksPort, HTTP: s.env.HTTPPort})
	if err := installService(name, s.cfg.Binary, args); err != nil {
		return fmt.Errorf("[Tunnel] install service %s: %w", name, err)
	}
	s.log.Infof("Tunnel", "Installed service %s for %s", name, s.cfg.Binary)
	return nil
}

// UninstallService stops and removes the background service.
func (s *Supervisor) UninstallService() error {
	name := s.serviceName()
	if err := uninstallService(name); err != nil {
		return fmt.Errorf("[Tunnel] uninstall service %s: %w", name, err)
	}
	s.log.Infof("Tunnel", "Removed service %s", name)
	return nil
}

func (s *Supervisor) serviceName() string {
	if s.cfg.ServiceName != "" {
		return s.cfg.ServiceName
	}
	return "splitroute-tunnel"
}
