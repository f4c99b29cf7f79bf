package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

const sampleClients = `
[[client]]
id = "demo-client"
name = "Demo"
zone_id = "zone-123"
domain = "example.com"
timezone = "Europe/Berlin"
performance_urls = ["https://example.com/", "https://example.com/pricing"]

[[client]]
id = "second"
zone_id = "zone-456"
domain = "second.example.org"
`

func TestParseClients(t *testing.T) {
	t.Parallel()

	reg, err := ParseClients(sampleClients)
	if err != nil {
		t.Fatalf("ParseClients: %v", err)
	}

	all := reg.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(all))
	}
	if all[0].ID != "demo-client" || all[1].ID != "second" {
		t.Errorf("expected file order, got %q, %q", all[0].ID, all[1].ID)
	}

	demo, err := reg.Get("demo-client")
	if err != nil {
		t.Fatalf("Get(demo-client): %v", err)
	}
	if demo.ZoneID != "zone-123" {
		t.Errorf("expected zone-123, got %s", demo.ZoneID)
	}
	wantURLs := []string{"https://example.com/", "https://example.com/pricing"}
	if !slices.Equal(demo.PerformanceURLs, wantURLs) {
		t.Errorf("expected %v, got %v", wantURLs, demo.PerformanceURLs)
	}
	if got := demo.Location().String(); got != "Europe/Berlin" {
		t.Errorf("expected Europe/Berlin location, got %s", got)
	}
	if got := demo.TimezoneName(); got != "Europe/Berlin" {
		t.Errorf("expected Europe/Berlin name, got %s", got)
	}

	second, err := reg.Get("second")
	if err != nil {
		t.Fatalf("Get(second): %v", err)
	}
	if second.TimezoneName() != "UTC" || second.Location().String() != "UTC" {
		t.Errorf("expected UTC fallback, got %s / %s", second.TimezoneName(), second.Location())
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	_, err = reg.Get("missing")
	if !errors.Is(err, ErrClientNotFound) {
		t.Errorf("expected ErrClientNotFound, got %v", err)
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	t.Parallel()

	valid := Client{ID: "ok", ZoneID: "z", Domain: "example.com"}

	tests := []struct {
		name    string
		clients []Client
	}{
		{"missing id", []Client{{ZoneID: "z", Domain: "example.com"}}},
		{"missing zone", []Client{{ID: "a", Domain: "example.com"}}},
		{"bad domain", []Client{{ID: "a", ZoneID: "z", Domain: "not a host"}}},
		{"slash in id", []Client{{ID: "a/b", ZoneID: "z", Domain: "example.com"}}},
		{"space in id", []Client{{ID: "a b", ZoneID: "z", Domain: "example.com"}}},
		{"dot id", []Client{{ID: ".", ZoneID: "z", Domain: "example.com"}}},
		{"parent dir id", []Client{{ID: "..", ZoneID: "z", Domain: "example.com"}}},
		{"backslash in id", []Client{{ID: `a\b`, ZoneID: "z", Domain: "example.com"}}},
		{"leading dash", []Client{{ID: "-a", ZoneID: "z", Domain: "example.com"}}},
		{"bad timezone", []Client{{ID: "a", ZoneID: "z", Domain: "example.com", Timezone: "Mars/Olympus"}}},
		{"bad url", []Client{{ID: "a", ZoneID: "z", Domain: "example.com", PerformanceURLs: []string{"ftp://example.com"}}}},
		{"duplicate", []Client{valid, valid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewRegistry(tt.clients...); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestNewRegistry_AcceptsKeySafeIDs(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"acme", "demo-client", "client_2", "A1"} {
		if _, err := NewRegistry(Client{ID: id, ZoneID: "z", Domain: "example.com"}); err != nil {
			t.Errorf("id %q: unexpected error %v", id, err)
		}
	}
}

func TestLoadClients_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clients.toml")
	if err := os.WriteFile(path, []byte(sampleClients), 0o600); err != nil {
		t.Fatalf("write clients file: %v", err)
	}

	reg, err := LoadClients(path)
	if err != nil {
		t.Fatalf("LoadClients: %v", err)
	}
	if n := len(reg.All()); n != 2 {
		t.Errorf("expected 2 clients, got %d", n)
	}

	if _, err := LoadClients(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}
