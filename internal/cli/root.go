// Package cli implements the memory-bank CLI commands. The commands are
// a thin dispatch layer: they resolve configuration, open the
// project-scoped store and thread an explicit session id into the core.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spideynolove/memory-bank-mcp/internal/config"
	"github.com/spideynolove/memory-bank-mcp/internal/logging"
	"github.com/spideynolove/memory-bank-mcp/internal/model"
	"github.com/spideynolove/memory-bank-mcp/internal/project"
	"github.com/spideynolove/memory-bank-mcp/internal/store"
)

var (
	projectFlag string
	dbNameFlag  string
	debugFlag   bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memory-bank",
	Short: "Project-scoped thinking sessions",
	Long: "A project-scoped knowledge store for structured thinking: sessions, revisable " +
		"memories, collections and derived quality metrics. SQLite-backed, one database per project.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project path (default: auto-detected from cwd)")
	RootCmd.PersistentFlags().StringVar(&dbNameFlag, "db-name", "", "Database file name (default: memory.db)")
	RootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

// env is the resolved runtime for one command invocation.
type env struct {
	cfg   *config.Config
	root  string
	store *store.SQLiteStore
	log   *zap.Logger
}

func openEnv() (*env, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root := project.FindRoot(cwd)
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if projectFlag != "" {
		cfg.ProjectPath = projectFlag
	}
	if dbNameFlag != "" {
		cfg.DBName = dbNameFlag
	}
	if debugFlag {
		cfg.Debug = true
	}
	if cfg.ProjectPath != "" {
		root = cfg.ProjectPath
	}

	log := logging.New(cfg.Debug)
	s, err := store.NewSQLiteStore(cfg.DBPath(root))
	if err != nil {
		return nil, err
	}
	log.Debug("store opened", zap.String("db", cfg.DBPath(root)))
	return &env{cfg: cfg, root: root, store: s, log: log}, nil
}

func (e *env) close() {
	e.store.Close()
	e.log.Sync()
}

// resolveSession returns the explicit --session value, falling back to
// the stored active session id. The fallback is a CLI convenience; the
// core always receives an explicit id.
func resolveSession(ctx context.Context, e *env, sessionFlag string) (string, error) {
	if sessionFlag != "" {
		return sessionFlag, nil
	}
	id, err := e.store.ActiveSessionID(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", fmt.Errorf("no active session; pass --session or run 'memory-bank session start'")
		}
		return "", err
	}
	return id, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
