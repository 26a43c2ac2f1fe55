package device

import (
	"os"
	"path/filepath"
	"testing"
)

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing inventory: %v", err)
	}
	return path
}

func TestLoadRegistry(t *testing.T) {
	path := writeInventory(t, `{
		"devices": [
			{"name": "heater", "device_type": "P110", "ip_addr": "192.168.1.20"},
			{"name": "dryer", "device_type": "P115", "ip_addr": "192.168.1.21"},
			{"name": "fridge", "device_type": "P110", "ip_addr": "192.168.1.22"}
		]
	}`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry() error: %v", err)
	}

	if reg.Count() != 3 {
		t.Errorf("Count() = %d, want 3", reg.Count())
	}

	// Order must match the file
	wantOrder := []string{"heater", "dryer", "fridge"}
	for i, d := range reg.All() {
		if d.Name != wantOrder[i] {
			t.Errorf("All()[%d].Name = %q, want %q", i, d.Name, wantOrder[i])
		}
	}

	d, ok := reg.Get("dryer")
	if !ok {
		t.Fatal("Get(dryer) not found")
	}
	if d.Type != "P115" || d.IPAddr != "192.168.1.21" {
		t.Errorf("Get(dryer) = %+v, unexpected fields", d)
	}

	if _, ok := reg.Get("toaster"); ok {
		t.Error("Get(toaster) found, want not found")
	}
}

func TestLoadRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "empty device list",
			content: `{"devices": []}`,
		},
		{
			name:    "missing name",
			content: `{"devices": [{"device_type": "P110", "ip_addr": "192.168.1.20"}]}`,
		},
		{
			name:    "missing device_type",
			content: `{"devices": [{"name": "heater", "ip_addr": "192.168.1.20"}]}`,
		},
		{
			name:    "missing ip_addr",
			content: `{"devices": [{"name": "heater", "device_type": "P110"}]}`,
		},
		{
			name: "duplicate names",
			content: `{"devices": [
				{"name": "heater", "device_type": "P110", "ip_addr": "192.168.1.20"},
				{"name": "heater", "device_type": "P115", "ip_addr": "192.168.1.21"}
			]}`,
		},
		{
			name:    "malformed json",
			content: `{"devices": [`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeInventory(t, tt.content)
			if _, err := LoadRegistry(path); err == nil {
				t.Error("LoadRegistry() expected error, got nil")
			}
		})
	}
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("LoadRegistry() expected error for missing file, got nil")
	}
}

func TestRegistry_AllReturnsCopy(t *testing.T) {
	path := writeInventory(t, `{
		"devices": [{"name": "heater", "device_type": "P110", "ip_addr": "192.168.1.20"}]
	}`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry() error: %v", err)
	}

	reg.All()[0].Name = "mutated"

	if d, _ := reg.Get("heater"); d.Name != "heater" {
		t.Error("mutating All() result changed registry contents")
	}
}

func TestDescriptor_RouteType(t *testing.T) {
	d := Descriptor{Name: "heater", Type: "P110", IPAddr: "192.168.1.20"}
	if got := d.RouteType(); got != "p110" {
		t.Errorf("RouteType() = %q, want %q", got, "p110")
	}
}
