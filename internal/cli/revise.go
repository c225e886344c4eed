package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "revise [memory-id] [content]",
		Short: "Revise a memory",
		Long:  "Insert a new memory superseding the given one. The original stays readable for audit.",
		Args:  cobra.MinimumNArgs(2),
		Run:   runRevise,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (default: active session)")
	cmd.Flags().Float64P("confidence", "c", 0.8, "Confidence, 0.0 to 1.0")

	RootCmd.AddCommand(cmd)
}

func runRevise(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")
	confidence, _ := cmd.Flags().GetFloat64("confidence")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessionID, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("revise", err)
	}

	mem, err := e.store.ReviseMemory(cmd.Context(), store.ReviseMemoryParams{
		SessionID:  sessionID,
		MemoryID:   args[0],
		Content:    strings.Join(args[1:], " "),
		Confidence: confidence,
	})
	if err != nil {
		exitErr("revise", err)
	}

	printJSON(mem)
}
