//go:build linux

package tunnel

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const unitDir = "/etc/systemd/system"

// installService writes a systemd unit and enables it immediately.
func installService(name, binary string, args []string) error {
	unit := fmt.Sprintf(`[Unit]
Description=splitroute tunnel transport (%s)
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s %s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`, binary, binary, strings.Join(args, " "))

	unitPath := fmt.Sprintf("%s/%s.service", unitDir, name)
	if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("write unit %s: %w", unitPath, err)
	}

	for _, cmdArgs := range [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", "--now", name},
	} {
		if out, err := exec.Command(cmdArgs[0], cmdArgs[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %w (%s)", strings.Join(cmdArgs, " "), err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// uninstallService disables the unit and removes its file.
func uninstallService(name string) error {
	if out, err := exec.Command("systemctl", "disable", "--now", name).CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl disable: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	unitPath := fmt.Sprintf("%s/%s.service", unitDir, name)
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit %s: %w", unitPath, err)
	}
	if out, err := exec.Command("systemctl", "daemon-reload").CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
