package device

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
)

// fleetFile is the YAML schema for a simulated fleet definition:
//
//	devices:
//	  - id: android-1
//	    type: ANDROID
//	    capabilities: [ui, camera]
//	    latency: 150ms
//	    metadata:
//	      region: us-east
type fleetFile struct {
	Devices []fleetDevice `yaml:"devices"`
}

type fleetDevice struct {
	ID           string            `yaml:"id"`
	Type         string            `yaml:"type"`
	Capabilities []string          `yaml:"capabilities"`
	Latency      string            `yaml:"latency"`
	Metadata     map[string]string `yaml:"metadata"`
}

// ParseFleet builds a SimManager from a YAML fleet definition. Latencies are
// Go duration strings ("150ms", "2s"); an omitted latency means immediate.
func ParseFleet(data []byte, opts ...SimOption) (*SimManager, error) {
	var f fleetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.NewValidationError("invalid fleet definition").WithCause(err)
	}
	if len(f.Devices) == 0 {
		return nil, errors.NewValidationError("fleet defines no devices").WithField("devices")
	}

	m := NewSimManager(opts...)
	seen := make(map[string]bool, len(f.Devices))
	for i, d := range f.Devices {
		if d.ID == "" {
			return nil, errors.NewValidationError("fleet device requires an id").
				WithField(fmt.Sprintf("devices[%d].id", i))
		}
		if seen[d.ID] {
			return nil, errors.NewValidationError("duplicate fleet device id").
				WithField(fmt.Sprintf("devices[%d].id", i)).WithValue(d.ID)
		}
		seen[d.ID] = true

		deviceType, err := constellation.ParseDeviceType(d.Type)
		if err != nil {
			return nil, errors.NewValidationError("invalid fleet device type").
				WithField(fmt.Sprintf("devices[%d].type", i)).WithValue(d.Type).WithCause(err)
		}

		m.Connect(Info{
			ID:           d.ID,
			Type:         deviceType,
			Capabilities: d.Capabilities,
			Metadata:     d.Metadata,
		})

		if d.Latency != "" {
			latency, err := time.ParseDuration(d.Latency)
			if err != nil {
				return nil, errors.NewValidationError("invalid fleet device latency").
					WithField(fmt.Sprintf("devices[%d].latency", i)).WithValue(d.Latency).WithCause(err)
			}
			m.SetLatency(d.ID, latency)
		}
	}
	return m, nil
}

// LoadFleet reads a YAML fleet definition from disk.
func LoadFleet(path string, opts ...SimOption) (*SimManager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fleet file: %w", err)
	}
	return ParseFleet(data, opts...)
}
