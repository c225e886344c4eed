package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spideynolove/memory-bank-mcp/internal/analysis"
)

func init() {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a session as JSON",
		Run:   runExport,
	}
	exportCmd.Flags().StringP("session", "s", "", "Session id (default: active session)")
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	RootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")
	output, _ := cmd.Flags().GetString("output")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessionID, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("export", err)
	}

	dump, err := e.store.Export(cmd.Context(), sessionID)
	if err != nil {
		exitErr("export", err)
	}
	report, err := analysis.New(e.store, analysis.DefaultConfig()).Analyze(cmd.Context(), sessionID)
	if err != nil {
		exitErr("export", err)
	}
	dump["metrics"] = report

	if output == "" {
		printJSON(dump)
		return
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		exitErr("export", err)
	}
	if err := os.WriteFile(output, append(data, '\n'), 0o644); err != nil {
		exitErr("export", err)
	}
	fmt.Printf("Exported session %s to %s\n", sessionID, output)
}
