package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "memory.db", cfg.DBName)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.ForceMigration)
}

func TestLoadFromFile(t *testing.T) {
	root := t.TempDir()
	content := "db_name: custom.db\ndebug: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "custom.db", cfg.DBName)
	assert.True(t, cfg.Debug)
}

func TestEnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("db_name: from-file.db\n"), 0o644))
	t.Setenv("MEMORY_BANK_DB_NAME", "from-env.db")
	t.Setenv("MEMORY_BANK_FORCE_MIGRATION", "true")

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.DBName)
	assert.True(t, cfg.ForceMigration)
}

func TestLoadBadYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(":\n\t- not yaml"), 0o644))

	_, err := Load(root)
	assert.Error(t, err)
}

func TestDBPath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/proj", "memory.db"), cfg.DBPath("/proj"))

	cfg.ProjectPath = "/elsewhere"
	cfg.DBName = "x.db"
	assert.Equal(t, filepath.Join("/elsewhere", "x.db"), cfg.DBPath("/proj"))
}
