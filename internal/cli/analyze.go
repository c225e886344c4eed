package cli

import (
	"github.com/spf13/cobra"

	"github.com/spideynolove/memory-bank-mcp/internal/analysis"
)

func init() {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Derive quality signals for a session",
		Long:  "Scan a session's memories for contradictions, recurring reasoning terms, and confidence trends, and persist the detected patterns.",
		Run:   runAnalyze,
	}
	analyzeCmd.Flags().StringP("session", "s", "", "Session id (default: active session)")
	RootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessionID, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("analyze", err)
	}

	engine := analysis.New(e.store, analysis.DefaultConfig())
	report, err := engine.Analyze(cmd.Context(), sessionID)
	if err != nil {
		exitErr("analyze", err)
	}
	printJSON(report)
}
