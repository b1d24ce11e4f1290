package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/hosts"
)

// TestLoadDomainListDirectives checks that category directive comments switch
// the category for subsequent domains and that duplicates are dropped.
func TestLoadDomainListDirectives(t *testing.T) {
	content := `# ordinary comment
one.test

# [category:domestic]
cn.test
cn.test

# [category:cdn]
cdn.test
# [category:nonsense]
after-bad.test
`
	path := filepath.Join(t.TempDir(), "domains.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := LoadDomainList(path, core.Log)
	if err != nil {
		t.Fatal(err)
	}

	want := []Record{
		{Domain: "one.test", Category: hosts.ForeignVerified},
		{Domain: "cn.test", Category: hosts.Domestic},
		{Domain: "cdn.test", Category: hosts.ForeignCDN},
		// Bad directive keeps the current category.
		{Domain: "after-bad.test", Category: hosts.ForeignCDN},
	}
	if len(records) != len(want) {
		t.Fatalf("records = %v, want %v", records, want)
	}
	for i, w := range want {
		if records[i] != w {
			t.Errorf("records[%d] = %v, want %v", i, records[i], w)
		}
	}
}

// TestCategoryIndexTwins verifies both the listed domain and its www twin map
// to the same category.
func TestCategoryIndexTwins(t *testing.T) {
	idx := CategoryIndex([]Record{
		{Domain: "bare.test", Category: hosts.Domestic},
		{Domain: "www.prefixed.test", Category: hosts.ForeignCDN},
	})

	cases := []struct {
		domain string
		want   hosts.Category
	}{
		{"bare.test", hosts.Domestic},
		{"www.bare.test", hosts.Domestic},
		{"www.prefixed.test", hosts.ForeignCDN},
		{"prefixed.test", hosts.ForeignCDN},
	}
	for _, tc := range cases {
		if got, ok := idx[tc.domain]; !ok || got != tc.want {
			t.Errorf("idx[%q] = %v (ok=%v), want %v", tc.domain, got, ok, tc.want)
		}
	}
}
