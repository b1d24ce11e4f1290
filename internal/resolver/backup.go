package resolver

import (
	"fmt"
	"os"
	"strings"

	"wg-splitroute/internal/core"
)

// backupSuffix marks the transient domain-list snapshot that is the
// crash-recovery unit of a batch run.
const backupSuffix = ".resolving.bak"

// listBackup is a live snapshot of the domain-list file, created at the start
// of a run and consumed (restored + deleted) at the end. If the process dies
// in between, the next run finds the file and restores it before resolving.
type listBackup struct {
	originalPath string
	backupPath   string
	domainCount  int
}

// BackupPathFor returns the snapshot path for a given domain-list path.
func BackupPathFor(listPath string) string {
	return listPath + backupSuffix
}

// RestoreLeftoverBackup checks for a snapshot left behind by a crashed run and
// restores it over the domain-list file. Returns whether a restore happened.
// A snapshot that exists but cannot be read back is fatal: resolving against a
// possibly-truncated list is worse than stopping.
func RestoreLeftoverBackup(listPath string, log *core.Logger) (bool, error) {
	backupPath := BackupPathFor(listPath)
	data, err := os.ReadFile(backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("[Resolve] leftover backup %s exists but cannot be read: %w", backupPath, err)
	}

	log.Warnf("Resolve", "Found leftover backup %s from an interrupted run, restoring %s", backupPath, listPath)
	if err := atomicWrite(listPath, data); err != nil {
		return false, fmt.Errorf("[Resolve] restore %s from %s: %w", listPath, backupPath, err)
	}
	if err := os.Remove(backupPath); err != nil {
		return false, fmt.Errorf("[Resolve] delete restored backup %s: %w", backupPath, err)
	}
	return true, nil
}

// createBackup snapshots the domain-list file.
func createBackup(listPath string, log *core.Logger) (*listBackup, error) {
	data, err := os.ReadFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("[Resolve] read domain list %s for backup: %w", listPath, err)
	}

	b := &listBackup{
		originalPath: listPath,
		backupPath:   BackupPathFor(listPath),
		domainCount:  countDomains(data),
	}
	if err := os.WriteFile(b.backupPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("[Resolve] write backup %s: %w", b.backupPath, err)
	}
	log.Debugf("Resolve", "Backed up %s (%d domains) to %s", listPath, b.domainCount, b.backupPath)
	return b, nil
}

// restoreAndDelete copies the snapshot back over the domain-list file and
// removes it. Runs in a defer so it also executes on cancellation; the restore
// guarantees no other process ever observes a truncated list.
func (b *listBackup) restoreAndDelete(log *core.Logger) error {
	data, err := os.ReadFile(b.backupPath)
	if err != nil {
		return fmt.Errorf("[Resolve] backup %s missing or unreadable during restore: %w", b.backupPath, err)
	}
	if err := atomicWrite(b.originalPath, data); err != nil {
		return fmt.Errorf("[Resolve] restore %s: %w", b.originalPath, err)
	}
	if err := os.Remove(b.backupPath); err != nil {
		return fmt.Errorf("[Resolve] delete backup %s: %w", b.backupPath, err)
	}
	log.Debugf("Resolve", "Restored %s and deleted backup", b.originalPath)
	return nil
}

// countDomains counts non-comment, non-blank lines.
func countDomains(data []byte) int {
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			n++
		}
	}
	return n
}
