package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/starweaver/starweaver/internal/config"
	"github.com/starweaver/starweaver/internal/device"
	"github.com/starweaver/starweaver/internal/logging"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices in a fleet file",
	Long: `List the simulated devices a fleet file declares, with their types,
capabilities, and configured latencies.`,
	RunE: runDevices,
}

var (
	devicesFleet string
	devicesJSON  bool
)

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().StringVarP(&devicesFleet, "fleet", "F", "", "fleet file with simulated devices (YAML)")
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "print the fleet as JSON")
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fleetPath := devicesFleet
	if fleetPath == "" {
		fleetPath = cfg.Devices.FleetFile
	}
	if fleetPath == "" {
		return fmt.Errorf("no fleet file: pass --fleet or set devices.fleet_file in the config")
	}

	fleet, err := device.LoadFleet(fleetPath, device.WithSimLogger(logging.NopLogger()))
	if err != nil {
		return fmt.Errorf("failed to load fleet: %w", err)
	}

	infos := fleet.ListConnected()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	if devicesJSON {
		type deviceRow struct {
			ID           string            `json:"id"`
			Type         string            `json:"type"`
			Capabilities []string          `json:"capabilities,omitempty"`
			LatencyMs    int64             `json:"latency_ms"`
			Metadata     map[string]string `json:"metadata,omitempty"`
		}
		rows := make([]deviceRow, 0, len(infos))
		for _, info := range infos {
			rows = append(rows, deviceRow{
				ID:           info.ID,
				Type:         string(info.Type),
				Capabilities: info.Capabilities,
				LatencyMs:    fleet.Latency(info.ID).Milliseconds(),
				Metadata:     info.Metadata,
			})
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode fleet: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printHeader(fmt.Sprintf("Fleet: %s (%d device(s))", fleetPath, len(infos)))
	if len(infos) == 0 {
		fmt.Println("No devices declared.")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("  %-16s %-10s latency=%s", info.ID, info.Type, fleet.Latency(info.ID))
		if len(info.Capabilities) > 0 {
			fmt.Printf("  [%s]", strings.Join(info.Capabilities, ", "))
		}
		fmt.Println()
	}
	return nil
}
