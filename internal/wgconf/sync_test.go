package wgconf

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wg-splitroute/internal/core"
	"wg-splitroute/internal/hosts"
)

func testEnv(confPath string) core.EnvConfig {
	return core.EnvConfig{
		ServerAddr:       "203.0.113.10",
		ServerPort:       51820,
		UDPPort:          29900,
		MTU:              1280,
		DNS:              netip.MustParseAddr("1.1.1.1"),
		KeepaliveSeconds: 25,
		AllowedIPsCap:    100,
		WGConfPath:       confPath,
	}
}

func entry(ip, domain string) hosts.Entry {
	return hosts.Entry{Addr: netip.MustParseAddr(ip), Domain: domain}
}

// TestSyncReplacesOwnedFields rewrites only the managed fields; keys, comments
// and vendor extension lines must survive untouched.
func TestSyncReplacesOwnedFields(t *testing.T) {
	conf := `[Interface]
PrivateKey = secret-key-stays
Address = 10.0.0.2/32
MTU = 1420
DNS = 8.8.8.8
Jc = 3

# hand-written note
[Peer]
PublicKey = server-key-stays
Endpoint = 198.51.100.1:51820
AllowedIPs = 0.0.0.0/0
PersistentKeepalive = 15
`
	path := filepath.Join(t.TempDir(), "wg0.conf")
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	syncer := NewSyncer(testEnv(path), core.Log)
	sum, err := syncer.Sync([]hosts.Entry{entry("10.1.1.1", "a.test")}, 29901)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Endpoint != "127.0.0.1:29901" {
		t.Errorf("endpoint = %s, want reassigned port surfaced", sum.Endpoint)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		"PrivateKey = secret-key-stays",
		"PublicKey = server-key-stays",
		"Jc = 3",
		"# hand-written note",
		"Endpoint = 127.0.0.1:29901",
		"MTU = 1280",
		"DNS = 1.1.1.1",
		"PersistentKeepalive = 25",
		"AllowedIPs = 10.1.1.1/32",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in synced config:\n%s", want, text)
		}
	}
	if strings.Contains(text, "198.51.100.1") {
		t.Errorf("old endpoint survived:\n%s", text)
	}
	if strings.Contains(text, "0.0.0.0/0") {
		t.Errorf("old AllowedIPs survived:\n%s", text)
	}
}

// TestSyncAllowedIPsCap: 150 resolved IPs with a cap of 100 yields exactly 100
// routes in stable sorted order, with the required extras always kept.
func TestSyncAllowedIPsCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wg0.conf")
	env := testEnv(path)
	env.AllowedIPsExtra = []netip.Prefix{netip.MustParsePrefix("10.8.0.0/24")}

	var entries []hosts.Entry
	for i := 0; i < 150; i++ {
		entries = append(entries, entry(fmt.Sprintf("10.1.%d.%d", i/250, i%250+1), fmt.Sprintf("d%d.test", i)))
	}

	syncer := NewSyncer(env, core.Log)
	sum, err := syncer.Sync(entries, env.UDPPort)
	if err != nil {
		t.Fatal(err)
	}
	if sum.AllowedIPs != 100 {
		t.Errorf("AllowedIPs = %d, want capped 100", sum.AllowedIPs)
	}
	if sum.Capped != 51 {
		t.Errorf("Capped = %d, want 51 (150 resolved, 99 kept)", sum.Capped)
	}

	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(first), "10.8.0.0/24") {
		t.Errorf("required extra prefix dropped by cap")
	}

	// A second run over the same inputs must produce identical ordering.
	if _, err := syncer.Sync(entries, env.UDPPort); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("AllowedIPs ordering not stable across runs")
	}
}

// TestSyncBootstrapsMissingConfig creates the file from the template and syncs
// the owned fields in the same run.
func TestSyncBootstrapsMissingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "wg0.conf")
	syncer := NewSyncer(testEnv(path), core.Log)

	if _, err := syncer.Sync([]hosts.Entry{entry("10.1.1.1", "a.test")}, 29900); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "[Interface]") || !strings.Contains(text, "[Peer]") {
		t.Errorf("bootstrapped config missing sections:\n%s", text)
	}
	if !strings.Contains(text, "Endpoint = 127.0.0.1:29900") {
		t.Errorf("bootstrapped config not synced:\n%s", text)
	}
}

// TestSyncKeepsOriginalCopy: the first managed edit of a pre-existing file
// leaves a .orig snapshot; later edits do not overwrite it.
func TestSyncKeepsOriginalCopy(t *testing.T) {
	conf := "[Interface]\nPrivateKey = k\n[Peer]\nPublicKey = p\n"
	path := filepath.Join(t.TempDir(), "wg0.conf")
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	syncer := NewSyncer(testEnv(path), core.Log)
	if _, err := syncer.Sync(nil, 29900); err != nil {
		t.Fatal(err)
	}

	orig, err := os.ReadFile(path + ".orig")
	if err != nil {
		t.Fatalf("no .orig copy: %v", err)
	}
	if string(orig) != conf {
		t.Errorf(".orig = %q, want pristine %q", orig, conf)
	}

	if _, err := syncer.Sync(nil, 29900); err != nil {
		t.Fatal(err)
	}
	again, err := os.ReadFile(path + ".orig")
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != conf {
		t.Errorf(".orig overwritten by a later sync")
	}
}

// TestDocumentSetFieldInserts adds a missing field at the end of its section.
func TestDocumentSetFieldInserts(t *testing.T) {
	doc := ParseDocumentString("[Interface]\nPrivateKey = k\n\n[Peer]\nPublicKey = p\n")
	if err := doc.SetField("Interface", "MTU", "1280"); err != nil {
		t.Fatal(err)
	}
	text := string(doc.Bytes())
	iface := strings.Index(text, "[Interface]")
	peer := strings.Index(text, "[Peer]")
	mtu := strings.Index(text, "MTU = 1280")
	if mtu < iface || mtu > peer {
		t.Errorf("MTU inserted outside [Interface]:\n%s", text)
	}
}

func TestDocumentSetFieldMissingSection(t *testing.T) {
	doc := ParseDocumentString("[Interface]\nPrivateKey = k\n")
	if err := doc.SetField("Peer", "Endpoint", "x"); err == nil {
		t.Error("expected error for missing [Peer] section")
	}
}
