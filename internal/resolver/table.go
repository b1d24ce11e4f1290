package resolver

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/hosts"
)

// WriteTable rewrites the merged IP table wholesale: tab-separated
// `IP\tdomain` lines, sorted by IP then domain. Rewriting (rather than
// editing) guarantees no stale entry survives a domain removal. The write is
// atomic so an interrupted run never leaves a half-written table.
func WriteTable(path string, entries []hosts.Entry, log *core.Logger) error {
	sorted := make([]hosts.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if c := sorted[i].Addr.Compare(sorted[j].Addr); c != 0 {
			return c < 0
		}
		return sorted[i].Domain < sorted[j].Domain
	})

	var b strings.Builder
	for _, e := range sorted {
		fmt.Fprintf(&b, "%s\t%s\n", e.Addr, e.Domain)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("[Resolve] create table dir for %s: %w", path, err)
	}
	if err := atomicWrite(path, []byte(b.String())); err != nil {
		return fmt.Errorf("[Resolve] write IP table %s: %w", path, err)
	}
	log.Infof("Resolve", "Wrote %d entries to %s", len(sorted), path)
	return nil
}

// ReadTable parses an IP table file. Malformed lines are skipped with a
// warning, matching the hosts parser's tolerance.
func ReadTable(path string, log *core.Logger) ([]hosts.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[Resolve] open IP table %s: %w", path, err)
	}
	defer f.Close()

	var entries []hosts.Entry
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			log.Warnf("Resolve", "%s:%d: malformed table line, skipped", path, lineNo)
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil {
			log.Warnf("Resolve", "%s:%d: bad IP %q, skipped", path, lineNo, fields[0])
			continue
		}
		entries = append(entries, hosts.Entry{Addr: addr, Domain: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("[Resolve] read IP table %s: %w", path, err)
	}
	return entries, nil
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
