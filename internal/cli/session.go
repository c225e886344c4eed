package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

func init() {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage thinking sessions",
	}

	startCmd := &cobra.Command{
		Use:   "start [problem]",
		Short: "Start a new session",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSessionStart,
	}
	startCmd.Flags().String("criteria", "", "Success criteria")
	startCmd.Flags().String("constraints", "", "Comma-separated constraints")
	startCmd.Flags().String("type", "", "Session type: coding, debugging, architecture")
	startCmd.Flags().String("language", "", "Project language (typed sessions)")
	startCmd.Flags().String("framework", "", "Project framework (typed sessions)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Run:   runSessionList,
	}

	showCmd := &cobra.Command{
		Use:   "show [session-id]",
		Short: "Show one session",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSessionShow,
	}

	closeCmd := &cobra.Command{
		Use:   "close [session-id]",
		Short: "Close a session (marks it inactive, never deletes)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSessionClose,
	}

	useCmd := &cobra.Command{
		Use:   "use [session-id]",
		Short: "Make a session the active one",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionUse,
	}

	trackCmd := &cobra.Command{
		Use:   "track [counter]",
		Short: "Bump a typed-session counter (packages_discovered, patterns_stored, validation_checks)",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionTrack,
	}
	trackCmd.Flags().StringP("session", "s", "", "Session id (default: active session)")

	sessionCmd.AddCommand(startCmd, listCmd, showCmd, closeCmd, useCmd, trackCmd)
	RootCmd.AddCommand(sessionCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) {
	criteria, _ := cmd.Flags().GetString("criteria")
	constraintsStr, _ := cmd.Flags().GetString("constraints")
	sessionType, _ := cmd.Flags().GetString("type")
	language, _ := cmd.Flags().GetString("language")
	framework, _ := cmd.Flags().GetString("framework")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sess, err := e.store.StartSession(cmd.Context(), store.StartSessionParams{
		Problem:     strings.Join(args, " "),
		Criteria:    criteria,
		Constraints: splitCSV(constraintsStr),
		Type:        model.SessionType(sessionType),
		ProjectPath: e.root,
		Language:    language,
		Framework:   framework,
	})
	if err != nil {
		exitErr("session start", err)
	}

	printJSON(sess)
}

func runSessionList(cmd *cobra.Command, args []string) {
	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	sessions, err := e.store.ListSessions(cmd.Context())
	if err != nil {
		exitErr("session list", err)
	}
	printJSON(sessions)
}

func runSessionShow(cmd *cobra.Command, args []string) {
	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	id, err = resolveSession(cmd.Context(), e, id)
	if err != nil {
		exitErr("session show", err)
	}

	sess, err := e.store.GetSession(cmd.Context(), id)
	if err != nil {
		exitErr("session show", err)
	}
	printJSON(sess)
}

func runSessionClose(cmd *cobra.Command, args []string) {
	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	id, err = resolveSession(cmd.Context(), e, id)
	if err != nil {
		exitErr("session close", err)
	}

	if err := e.store.CloseSession(cmd.Context(), id); err != nil {
		exitErr("session close", err)
	}
	fmt.Printf(`{"ok":true,"closed":%q}`+"\n", id)
}

func runSessionUse(cmd *cobra.Command, args []string) {
	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	if err := e.store.SetActiveSession(cmd.Context(), args[0]); err != nil {
		exitErr("session use", err)
	}
	fmt.Printf(`{"ok":true,"active":%q}`+"\n", args[0])
}

func runSessionTrack(cmd *cobra.Command, args []string) {
	sessionFlag, _ := cmd.Flags().GetString("session")

	e, err := openEnv()
	if err != nil {
		exitErr("open store", err)
	}
	defer e.close()

	id, err := resolveSession(cmd.Context(), e, sessionFlag)
	if err != nil {
		exitErr("session track", err)
	}

	if err := e.store.IncrementSessionCounter(cmd.Context(), id, args[0]); err != nil {
		exitErr("session track", err)
	}
	sess, err := e.store.GetSession(cmd.Context(), id)
	if err != nil {
		exitErr("session track", err)
	}
	printJSON(sess)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
