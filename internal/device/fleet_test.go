package device

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starweaver/starweaver/internal/constellation"
)

const fleetYAML = `
devices:
  - id: android-1
    type: ANDROID
    capabilities: [ui, camera]
    latency: 150ms
    metadata:
      region: us-east
  - id: linux-1
    type: LINUX
`

func TestParseFleet(t *testing.T) {
	m, err := ParseFleet([]byte(fleetYAML))
	if err != nil {
		t.Fatalf("ParseFleet: %v", err)
	}

	connected := m.ListConnected()
	if len(connected) != 2 {
		t.Fatalf("ListConnected = %d devices, want 2", len(connected))
	}
	if connected[0].ID != "android-1" || connected[1].ID != "linux-1" {
		t.Errorf("fleet order = [%s %s], want [android-1 linux-1]", connected[0].ID, connected[1].ID)
	}

	android, err := m.GetInfo("android-1")
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	if android.Type != constellation.DeviceAndroid {
		t.Errorf("Type = %s, want ANDROID", android.Type)
	}
	if len(android.Capabilities) != 2 || android.Capabilities[0] != "ui" || android.Capabilities[1] != "camera" {
		t.Errorf("Capabilities = %v", android.Capabilities)
	}
	if android.Metadata["region"] != "us-east" {
		t.Errorf("Metadata = %v", android.Metadata)
	}

	if got := m.Latency("android-1"); got != 150*time.Millisecond {
		t.Errorf("Latency(android-1) = %v, want 150ms", got)
	}
	if got := m.Latency("linux-1"); got != 0 {
		t.Errorf("Latency(linux-1) = %v, want 0", got)
	}
}

func TestParseFleetErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "\t"},
		{"no devices", "devices: []"},
		{"missing id", "devices:\n  - type: LINUX"},
		{"duplicate id", "devices:\n  - id: a\n  - id: a"},
		{"bad type", "devices:\n  - id: a\n    type: TOASTER"},
		{"bad latency", "devices:\n  - id: a\n    latency: fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFleet([]byte(tt.yaml)); err == nil {
				t.Fatalf("ParseFleet(%q) succeeded, want error", tt.yaml)
			}
		})
	}
}

func TestLoadFleet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(fleetYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := LoadFleet(path)
	if err != nil {
		t.Fatalf("LoadFleet: %v", err)
	}
	if len(m.ListConnected()) != 2 {
		t.Errorf("ListConnected = %d devices, want 2", len(m.ListConnected()))
	}
}

func TestLoadFleetMissingFile(t *testing.T) {
	if _, err := LoadFleet(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFleet of a missing file succeeded")
	}
}
