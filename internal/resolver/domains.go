package resolver

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/hosts"
)

// Record is one domain-list entry, immutable during a batch run.
type Record struct {
	Domain   string
	Category hosts.Category
}

// LoadDomainList reads the domain list: UTF-8, one domain per line, `#`
// comment lines ignored, whitespace trimmed. A directive comment of the form
// `# [category:NAME]` switches the category for the domains that follow; being
// a comment it stays invisible to tooling that only knows the plain format.
// The default category is foreign-verified.
func LoadDomainList(path string, log *core.Logger) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[Resolve] open domain list %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	seen := make(map[string]struct{})
	current := hosts.ForeignVerified

	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if name, ok := parseCategoryDirective(line); ok {
				cat, err := hosts.ParseCategory(name)
				if err != nil {
					log.Warnf("Resolve", "%s:%d: %v, keeping %s", path, lineNo, err, current)
					continue
				}
				current = cat
			}
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		records = append(records, Record{Domain: line, Category: current})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("[Resolve] read domain list %s: %w", path, err)
	}
	return records, nil
}

// parseCategoryDirective extracts NAME from a `# [category:NAME]` comment.
func parseCategoryDirective(line string) (string, bool) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	if !strings.HasPrefix(trimmed, "[category:") || !strings.HasSuffix(trimmed, "]") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(trimmed, "[category:"), "]"), true
}

// CategoryIndex maps each domain (and its www twin) to its list category so
// sync-hosts can partition IP-table entries that only carry (ip, domain).
func CategoryIndex(records []Record) map[string]hosts.Category {
	idx := make(map[string]hosts.Category, len(records)*2)
	for _, r := range records {
		idx[r.Domain] = r.Category
		if stripped, ok := strings.CutPrefix(r.Domain, "www."); ok {
			idx[stripped] = r.Category
		} else {
			idx["www."+r.Domain] = r.Category
		}
	}
	return idx
}
