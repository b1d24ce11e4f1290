package hosts

import (
	"fmt"
	"strings"
)

// Category partitions resolved hosts by trust/routing class. Each category
// owns exactly one marker-delimited block in the hosts file.
type Category int

const (
	Domestic Category = iota
	ForeignVerified
	ForeignCDN
	Special
)

// Categories lists all categories in file order.
var Categories = []Category{Domestic, ForeignVerified, ForeignCDN, Special}

func (c Category) String() string {
	switch c {
	case Domestic:
		return "domestic"
	case ForeignVerified:
		return "foreign-verified"
	case ForeignCDN:
		return "foreign-cdn"
	case Special:
		return "special"
	default:
		return "unknown"
	}
}

// Marker returns the literal start-marker comment owning this category's block.
// Content between a marker and the next marker (or EOF) belongs to automation.
func (c Category) Marker() string {
	switch c {
	case Domestic:
		return "# [DOMESTIC_IPS] - domestic hosts, direct route"
	case ForeignVerified:
		return "# [FOREIGN_VERIFIED_IPS] - foreign hosts, verified clean IPs"
	case ForeignCDN:
		return "# [FOREIGN_CDN_IPS] - foreign CDN hosts"
	case Special:
		return "# [SPECIAL_IPS] - special-case hosts"
	default:
		return "# [UNKNOWN_IPS]"
	}
}

// markerTag returns the bracketed tag that identifies a marker line, so
// reparsing tolerates edited descriptions after the dash.
func (c Category) markerTag() string {
	switch c {
	case Domestic:
		return "[DOMESTIC_IPS]"
	case ForeignVerified:
		return "[FOREIGN_VERIFIED_IPS]"
	case ForeignCDN:
		return "[FOREIGN_CDN_IPS]"
	case Special:
		return "[SPECIAL_IPS]"
	default:
		return "[UNKNOWN_IPS]"
	}
}

// ParseCategory parses a category name as written in domain-list directives.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "domestic", "cn":
		return Domestic, nil
	case "foreign-verified", "foreign_verified", "verified":
		return ForeignVerified, nil
	case "foreign-cdn", "foreign_cdn", "cdn":
		return ForeignCDN, nil
	case "special":
		return Special, nil
	default:
		return ForeignVerified, fmt.Errorf("unknown category: %q", s)
	}
}

// categoryForMarkerLine matches a line against the known markers.
func categoryForMarkerLine(line string) (Category, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return 0, false
	}
	for _, c := range Categories {
		if strings.Contains(trimmed, c.markerTag()) {
			return c, true
		}
	}
	return 0, false
}
