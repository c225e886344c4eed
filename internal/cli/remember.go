package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a memory in a session",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runRemember,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (default: active session)")
	cmd.Flags().Float64P("confidence", "c", 0.8, "Confidence, 0.0 to 1.0")
	cmd.Flags().StringP("deps", "d", "", "Comma-separated dependency memory ids")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("collection", "", "Collection id to attach to")
	cmd.Flags().Int("total", 0, "Estimated total memories for the session (advisory)")
	cmd.Flags().Bool("checkpoint", false, "Mark as a synthesis checkpoint")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	deps, _ := cmd.Flags().GetString("deps")
	tags, _ := cmd.Flags().GetString("tags")
	collection, _ := cmd.Flags().GetString("collection")
	total, _ := cmd.Flags().GetInt("total")
	checkpoint, _ := cmd.Flags().GetBool("checkpoint")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("remember", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessionID, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("remember", err)
	}

	mem, err := e.store.AddMemory(cmd.Context(), store.AddMemoryParams{
		SessionID:      sessionID,
		Content:        content,
		Confidence:     confidence,
		Dependencies:   splitCSV(deps),
		Tags:           splitCSV(tags),
		CollectionID:   collection,
		TotalEstimated: total,
		IsCheckpoint:   checkpoint,
	})
	if err != nil {
		exitErr("remember", err)
	}

	printJSON(mem)
}
