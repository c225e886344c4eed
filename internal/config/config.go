// Package config resolves the runtime options before the core is
// invoked: project path override, database file name, debug logging and
// the forced-migration flag. Precedence is defaults, then an optional
// .memory-bank.yaml in the project root, then MEMORY_BANK_* environment
// variables; command-line flags are applied on top by the CLI.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/m-mizutani/goerr/v2"

	"github.com/spideynolove/memory-bank-mcp/internal/model"
)

// FileName is the optional per-project config file.
const FileName = ".memory-bank.yaml"

const envPrefix = "MEMORY_BANK_"

// Config holds the resolved options.
type Config struct {
	ProjectPath    string `koanf:"project_path"`
	DBName         string `koanf:"db_name"`
	Debug          bool   `koanf:"debug"`
	ForceMigration bool   `koanf:"force_migration"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		DBName: "memory.db",
	}
}

// Load resolves configuration for a project root.
func Load(projectRoot string) (*Config, error) {
	k := koanf.New(".")

	path := filepath.Join(projectRoot, FileName)
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, goerr.Wrap(model.ErrStorageIO, "read config file", goerr.V("path", path))
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, goerr.Wrap(model.ErrConstraintViolation, "parse config file",
				goerr.V("path", path), goerr.V("cause", err.Error()))
		}
	}

	// MEMORY_BANK_DB_NAME -> db_name, MEMORY_BANK_DEBUG -> debug.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "load environment",
			goerr.V("cause", err.Error()))
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, goerr.Wrap(model.ErrConstraintViolation, "unmarshal config",
			goerr.V("cause", err.Error()))
	}
	if cfg.DBName == "" {
		cfg.DBName = Default().DBName
	}
	return &cfg, nil
}

// DBPath returns the database location inside the resolved project root.
func (c *Config) DBPath(projectRoot string) string {
	root := projectRoot
	if c.ProjectPath != "" {
		root = c.ProjectPath
	}
	return filepath.Join(root, c.DBName)
}
