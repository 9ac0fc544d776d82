package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/starweaver/starweaver/internal/config"
	"github.com/starweaver/starweaver/internal/logging"
	"github.com/starweaver/starweaver/internal/store"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots [constellation-id]",
	Short: "List or inspect stored constellation snapshots",
	Long: `List the constellation snapshots in the local store, dump a single
snapshot as JSON, or delete one.

Runs snapshot automatically unless autosave is disabled, so the store
holds the latest observed version of each constellation that ran here.

Examples:
  # List all snapshots
  starweaver snapshots

  # Dump one snapshot (can be fed back to 'starweaver run')
  starweaver snapshots c-a1b2c3d4 > plan.json

  # Delete one snapshot
  starweaver snapshots c-a1b2c3d4 --delete`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSnapshots,
}

var (
	snapshotsStore  string
	snapshotsDelete bool
)

func init() {
	rootCmd.AddCommand(snapshotsCmd)

	snapshotsCmd.Flags().StringVar(&snapshotsStore, "store", "", "store directory (default from config)")
	snapshotsCmd.Flags().BoolVar(&snapshotsDelete, "delete", false, "delete the named snapshot")
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	storePath := snapshotsStore
	if storePath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		storePath = cfg.ResolveStorePath(cwd)
	}

	st, err := store.Open(storePath, store.WithLogger(logging.NopLogger()))
	if err != nil {
		return fmt.Errorf("failed to open store at %s: %w", storePath, err)
	}
	defer func() { _ = st.Close() }()

	if len(args) == 0 {
		if snapshotsDelete {
			return fmt.Errorf("--delete requires a constellation ID")
		}
		return listSnapshots(st, storePath)
	}

	id := args[0]
	if snapshotsDelete {
		if err := st.Delete(id); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
		fmt.Printf("Deleted snapshot %s\n", id)
		return nil
	}

	doc, err := st.LoadDocument(id)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func listSnapshots(st *store.Store, storePath string) error {
	manifests, err := st.List()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	printHeader(fmt.Sprintf("Snapshots: %s", storePath))
	if len(manifests) == 0 {
		fmt.Println("No snapshots stored.")
		return nil
	}
	for _, m := range manifests {
		name := m.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %-14s %-24s %-17s %3d task(s)  %s\n",
			m.ID, truncate(name, 24), m.State, m.Tasks,
			m.UpdatedAt.Format(time.RFC822))
	}
	return nil
}
