package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

func init() {
	collectionCmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage memory collections",
	}

	createCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a collection from a seed memory",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCollectionCreate,
	}
	createCmd.Flags().StringP("session", "s", "", "Session id (default: active session)")
	createCmd.Flags().String("from", "", "Seed memory id (required)")
	createCmd.Flags().String("purpose", "", "What this collection explores")
	createCmd.MarkFlagRequired("from")

	addCmd := &cobra.Command{
		Use:   "add [collection-id] [memory-id]",
		Short: "Attach a memory to a collection",
		Args:  cobra.ExactArgs(2),
		Run:   runCollectionAdd,
	}
	addCmd.Flags().StringP("session", "s", "", "Session id (default: active session)")

	mergeCmd := &cobra.Command{
		Use:   "merge [source-id] [target-id]",
		Short: "Fold one collection into another",
		Long:  "Append the source collection's members to the target. The source row persists, frozen and pointing at the target.",
		Args:  cobra.ExactArgs(2),
		Run:   runCollectionMerge,
	}
	mergeCmd.Flags().StringP("session", "s", "", "Session id (default: active session)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a session's collections",
		Run:   runCollectionList,
	}
	listCmd.Flags().StringP("session", "s", "", "Session id (default: active session)")

	collectionCmd.AddCommand(createCmd, addCmd, mergeCmd, listCmd)
	RootCmd.AddCommand(collectionCmd)
}

func runCollectionCreate(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")
	from, _ := cmd.Flags().GetString("from")
	purpose, _ := cmd.Flags().GetString("purpose")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessionID, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("collection create", err)
	}

	coll, err := e.store.CreateCollection(cmd.Context(), store.CreateCollectionParams{
		SessionID:    sessionID,
		Name:         strings.Join(args, " "),
		SeedMemoryID: from,
		Purpose:      purpose,
	})
	if err != nil {
		exitErr("collection create", err)
	}
	printJSON(coll)
}

func runCollectionAdd(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessionID, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("collection add", err)
	}

	coll, err := e.store.AddToCollection(cmd.Context(), sessionID, args[0], args[1])
	if err != nil {
		exitErr("collection add", err)
	}
	printJSON(coll)
}

func runCollectionMerge(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessionID, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("collection merge", err)
	}

	target, err := e.store.MergeCollections(cmd.Context(), sessionID, args[0], args[1])
	if err != nil {
		exitErr("collection merge", err)
	}
	printJSON(target)
}

func runCollectionList(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessionID, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("collection list", err)
	}

	colls, err := e.store.ListCollections(cmd.Context(), sessionID)
	if err != nil {
		exitErr("collection list", err)
	}
	printJSON(colls)
}
