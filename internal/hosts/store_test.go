package hosts

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wg-splitroute/internal/core"
)

func entry(ip, domain string) Entry {
	return Entry{Addr: netip.MustParseAddr(ip), Domain: domain}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "hosts"), core.Log)
}

// TestWriteSectionsPreservesOutside: user content before the first marker must
// survive the rewrite byte-for-byte.
func TestWriteSectionsPreservesOutside(t *testing.T) {
	store := newTestStore(t)
	userContent := "127.0.0.1\tlocalhost\n# my own note\n192.168.1.5\tnas.local\n"
	if err := os.WriteFile(store.Path(), []byte(userContent), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.WriteSections(map[Category][]Entry{
		Domestic: {entry("1.2.3.4", "cn.test")},
	}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), userContent) {
		t.Errorf("user content not preserved as prefix:\n%s", data)
	}
	if !strings.Contains(string(data), "1.2.3.4\tcn.test") {
		t.Errorf("managed entry missing:\n%s", data)
	}
}

// TestWriteSectionsPreservesCRLFPrefix: Windows-edited files use CRLF line
// endings outside the automation blocks; a rewrite must keep those bytes
// exactly, including across a second sync over an already-managed file.
func TestWriteSectionsPreservesCRLFPrefix(t *testing.T) {
	store := newTestStore(t)
	userContent := "127.0.0.1\tlocalhost\r\n# manual entry\r\n"
	if err := os.WriteFile(store.Path(), []byte(userContent), 0o644); err != nil {
		t.Fatal(err)
	}

	sections := map[Category][]Entry{Domestic: {entry("1.2.3.4", "cn.test")}}
	if _, err := store.WriteSections(sections); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), userContent) {
		t.Fatalf("CRLF prefix rewritten:\n%q", data)
	}

	if _, err := store.WriteSections(sections); err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), userContent) {
		t.Fatalf("CRLF prefix rewritten on resync:\n%q", data)
	}
}

// TestWriteSectionsNoFinalNewlinePrefix: a prefix without a trailing newline
// keeps its bytes; the separator before the first marker is added after it.
func TestWriteSectionsNoFinalNewlinePrefix(t *testing.T) {
	store := newTestStore(t)
	userContent := "127.0.0.1\tlocalhost" // no trailing newline
	if err := os.WriteFile(store.Path(), []byte(userContent), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.WriteSections(map[Category][]Entry{
		Domestic: {entry("1.2.3.4", "cn.test")},
	}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	want := userContent + "\n" + Domestic.Marker()
	if !strings.HasPrefix(string(data), want) {
		t.Errorf("prefix handling = %q, want prefix %q", data, want)
	}
}

// TestWriteSectionsIdempotent: writing the same sections twice must produce a
// byte-identical file.
func TestWriteSectionsIdempotent(t *testing.T) {
	store := newTestStore(t)
	sections := map[Category][]Entry{
		Domestic:        {entry("1.1.1.1", "a.cn")},
		ForeignVerified: {entry("2.2.2.2", "b.io"), entry("3.3.3.3", "www.c.io")},
	}

	if _, err := store.WriteSections(sections); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.WriteSections(sections); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Errorf("second write differs from first:\n--- first\n%s\n--- second\n%s", first, second)
	}
}

// TestWriteSectionsVariants: every non-wildcard entry gets its www twin, and
// exact duplicates collapse.
func TestWriteSectionsVariants(t *testing.T) {
	store := newTestStore(t)
	written, err := store.WriteSections(map[Category][]Entry{
		ForeignVerified: {
			entry("1.1.1.1", "plain.io"),
			entry("2.2.2.2", "www.already.io"),
			entry("3.3.3.3", "*.wild.io"),
			entry("1.1.1.1", "plain.io"), // duplicate
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// plain.io + www.plain.io + www.already.io + already.io + *.wild.io
	if written != 5 {
		t.Errorf("written = %d, want 5", written)
	}

	sections, warnings, err := store.ParseSections()
	if err != nil {
		t.Fatal(err)
	}
	if warnings != 0 {
		t.Errorf("warnings = %d, want 0", warnings)
	}
	domains := make(map[string]bool)
	for _, e := range sections[ForeignVerified] {
		domains[e.Domain] = true
	}
	for _, want := range []string{"plain.io", "www.plain.io", "already.io", "www.already.io", "*.wild.io"} {
		if !domains[want] {
			t.Errorf("missing domain %s in parsed sections (got %v)", want, domains)
		}
	}
	if domains["www.*.wild.io"] {
		t.Errorf("wildcard domain must not get a www variant")
	}
}

// TestWriteSectionsReplacesStale: entries removed from the input disappear
// from the block on rewrite.
func TestWriteSectionsReplacesStale(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.WriteSections(map[Category][]Entry{
		Domestic: {entry("1.1.1.1", "old.cn")},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.WriteSections(map[Category][]Entry{
		Domestic: {entry("2.2.2.2", "new.cn")},
	}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "old.cn") {
		t.Errorf("stale entry survived rewrite:\n%s", data)
	}
}

// TestParseSectionsMalformed counts bad lines as warnings without failing.
func TestParseSectionsMalformed(t *testing.T) {
	store := newTestStore(t)
	content := Domestic.Marker() + "\n" +
		"1.2.3.4\tgood.cn\n" +
		"not-an-ip\tbad.cn\n" +
		"lonely-field\n"
	if err := os.WriteFile(store.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sections, warnings, err := store.ParseSections()
	if err != nil {
		t.Fatal(err)
	}
	if warnings != 2 {
		t.Errorf("warnings = %d, want 2", warnings)
	}
	if len(sections[Domestic]) != 1 || sections[Domestic][0].Domain != "good.cn" {
		t.Errorf("sections[Domestic] = %v, want the one good entry", sections[Domestic])
	}
}

// TestMarkerToleratesEditedDescription: a marker whose free-text description
// was hand-edited still delimits its block.
func TestMarkerToleratesEditedDescription(t *testing.T) {
	store := newTestStore(t)
	content := "# [DOMESTIC_IPS] totally rewritten description\n1.2.3.4\tcn.test\n"
	if err := os.WriteFile(store.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sections, _, err := store.ParseSections()
	if err != nil {
		t.Fatal(err)
	}
	if len(sections[Domestic]) != 1 {
		t.Errorf("edited marker not recognized, sections = %v", sections)
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"domestic", Domestic, true},
		{"cn", Domestic, true},
		{"CDN", ForeignCDN, true},
		{"foreign_verified", ForeignVerified, true},
		{"special", Special, true},
		{"bogus", ForeignVerified, false},
	}
	for _, tc := range cases {
		got, err := ParseCategory(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseCategory(%q) = (%v, %v), want (%v, ok=%v)", tc.in, got, err, tc.want, tc.ok)
		}
	}
}
