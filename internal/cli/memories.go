package cli

import (
	"github.com/spf13/cobra"

	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: "List a session's memories",
		Run:   runMemories,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (default: active session)")
	cmd.Flags().Bool("current", false, "Only current memories (exclude revised-away ancestors)")
	cmd.Flags().String("collection", "", "Only members of this collection")
	cmd.Flags().StringP("tag", "t", "", "Only memories with this tag")

	RootCmd.AddCommand(cmd)
}

func runMemories(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")
	current, _ := cmd.Flags().GetBool("current")
	collection, _ := cmd.Flags().GetString("collection")
	tag, _ := cmd.Flags().GetString("tag")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessionID, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("memories", err)
	}

	memories, err := e.store.ListMemories(cmd.Context(), store.ListMemoriesParams{
		SessionID:    sessionID,
		CurrentOnly:  current,
		CollectionID: collection,
		Tag:          tag,
	})
	if err != nil {
		exitErr("memories", err)
	}

	printJSON(memories)
}
