// Package hosts owns the automation-managed partition blocks of the OS static
// name-resolution file. Everything outside the marker-delimited blocks is
// preserved byte-for-byte.
package hosts

import (
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"wg-splitroute/internal/core"
)

// Entry is one resolved (ip, domain) pair inside a category block.
type Entry struct {
	Addr   netip.Addr
	Domain string
}

// Store reads and rewrites the hosts file partition blocks.
type Store struct {
	path string
	log  *core.Logger
}

// NewStore creates a store over the given hosts file path.
func NewStore(path string, log *core.Logger) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path, log: log}
}

// Path returns the hosts file path this store writes.
func (s *Store) Path() string { return s.path }

// WriteSections replaces every category block with the given entries and
// returns the number of entry lines written. Content outside the blocks is
// preserved exactly; the previous file is backed up first and the replacement
// is atomic, so a failed write never truncates the live file.
func (s *Store) WriteSections(sections map[Category][]Entry) (int, error) {
	prefix, _, err := s.splitFile()
	if err != nil {
		return 0, err
	}

	var b strings.Builder
	b.WriteString(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "\n") {
		b.WriteByte('\n')
	}

	written := 0
	for _, cat := range Categories {
		entries := expandVariants(sections[cat])
		entries = dedupeSort(entries)

		b.WriteString(cat.Marker())
		b.WriteByte('\n')
		for _, e := range entries {
			fmt.Fprintf(&b, "%s\t%s\n", e.Addr, e.Domain)
			written++
		}
	}

	if err := s.backup(); err != nil {
		return 0, err
	}
	if err := atomicWrite(s.path, []byte(b.String())); err != nil {
		return 0, fmt.Errorf("[Hosts] write %s: %w", s.path, err)
	}

	s.log.Infof("Hosts", "Wrote %d entries across %d sections to %s", written, len(Categories), s.path)
	return written, nil
}

// ParseSections reads the current automation blocks. Malformed entry lines are
// skipped and counted as warnings, never fatal.
func (s *Store) ParseSections() (map[Category][]Entry, int, error) {
	_, sections, err := s.splitFile()
	if err != nil {
		return nil, 0, err
	}

	result := make(map[Category][]Entry, len(sections))
	warnings := 0
	for cat, lines := range sections {
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			fields := strings.Fields(trimmed)
			if len(fields) < 2 {
				warnings++
				s.log.Warnf("Hosts", "%s: malformed line in %s section: %q", s.path, cat, line)
				continue
			}
			addr, err := netip.ParseAddr(fields[0])
			if err != nil {
				warnings++
				s.log.Warnf("Hosts", "%s: bad IP in %s section: %q", s.path, cat, fields[0])
				continue
			}
			result[cat] = append(result[cat], Entry{Addr: addr, Domain: fields[1]})
		}
	}
	return result, warnings, nil
}

// splitFile reads the hosts file and separates the content before the first
// marker from the per-category block interiors. A block runs from its marker
// to the next marker or EOF. The prefix is the raw bytes exactly as stored,
// line endings included; block interiors are line-split for reparsing. A
// missing file yields empty content.
func (s *Store) splitFile() (prefix string, sections map[Category][]string, err error) {
	sections = make(map[Category][]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", sections, nil
		}
		return "", nil, fmt.Errorf("[Hosts] read %s: %w", s.path, err)
	}

	prefixEnd := len(data)
	inBlock := false
	var current Category

	pos := 0
	for pos < len(data) {
		lineEnd := len(data)
		next := len(data)
		if i := bytes.IndexByte(data[pos:], '\n'); i >= 0 {
			lineEnd = pos + i
			next = pos + i + 1
		}
		line := strings.TrimSuffix(string(data[pos:lineEnd]), "\r")

		if cat, ok := categoryForMarkerLine(line); ok {
			if !inBlock {
				prefixEnd = pos
				inBlock = true
			}
			current = cat
		} else if inBlock {
			sections[current] = append(sections[current], line)
		}
		pos = next
	}

	return string(data[:prefixEnd]), sections, nil
}

// backup copies the current file to a timestamped sibling before a rewrite.
func (s *Store) backup() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("[Hosts] backup read %s: %w", s.path, err)
	}
	backupPath := fmt.Sprintf("%s.%s.bak", s.path, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return fmt.Errorf("[Hosts] backup write %s: %w", backupPath, err)
	}
	s.log.Debugf("Hosts", "Backed up %s to %s", s.path, backupPath)
	return nil
}

// expandVariants emits the www-prefixed or www-stripped twin for every entry,
// doubling bare/www coverage without a second DNS lookup. Wildcard domains are
// passed through untouched.
func expandVariants(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries)*2)
	for _, e := range entries {
		out = append(out, e)
		if strings.Contains(e.Domain, "*") {
			continue
		}
		if stripped, ok := strings.CutPrefix(e.Domain, "www."); ok {
			out = append(out, Entry{Addr: e.Addr, Domain: stripped})
		} else {
			out = append(out, Entry{Addr: e.Addr, Domain: "www." + e.Domain})
		}
	}
	return out
}

// dedupeSort deduplicates on the exact (ip, domain) pair and sorts by IP then
// domain for reproducible diffs.
func dedupeSort(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		key := e.Addr.String() + "\t" + e.Domain
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Addr.Compare(out[j].Addr); c != 0 {
			return c < 0
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// atomicWrite writes data to a temp file in the target directory and renames
// it over path, so readers never observe a truncated file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
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
