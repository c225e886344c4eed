package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spideynolove/memory-bank-mcp/internal/migrate"
	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import a legacy memory_storage.json snapshot",
		Long:  "Move the flat JSON snapshot at the project root into the SQLite store. Runs once per project; the snapshot is copied to a timestamped backup afterwards.",
		Run:   runMigrate,
	}
	migrateCmd.Flags().Bool("force", false, "Run even if the store already holds data")
	migrateCmd.Flags().Bool("status", false, "Report migration state without running")
	RootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")
	statusOnly, _ := cmd.Flags().GetBool("status")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	engine := migrate.New(e.store, e.root, e.log)

	if statusOnly {
		status, err := engine.Detect(cmd.Context())
		if err != nil {
			exitErr("migrate status", err)
		}
		printJSON(map[string]any{
			"status":   status,
			"snapshot": engine.SnapshotPath(),
		})
		return
	}

	result, err := engine.Run(cmd.Context(), force || e.cfg.ForceMigration)
	if err != nil && !errors.Is(err, model.ErrMigrationPartial) {
		exitErr("migrate", err)
	}
	if errors.Is(err, model.ErrMigrationPartial) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %d entities could not be migrated\n", len(result.Skipped))
	}
	printJSON(result)
}
