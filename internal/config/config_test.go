package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "data/necmis_data.json", cfg.Run.Output)
	assert.Equal(t, 4, cfg.Run.Concurrency)
	assert.True(t, cfg.Run.News)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	yml := `logging:
  level: debug
  format: console
run:
  output: out/ledger.json
  concurrency: 2
  news: false
baselines:
  construction_spending:
    score: 6.4
    trend: down
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("LEDGER_RUN_CONCURRENCY", "6")
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost:5432/ledger")
	t.Setenv("ADMIN_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "out/ledger.json", cfg.Run.Output)
	assert.Equal(t, 6, cfg.Run.Concurrency)
	assert.False(t, cfg.Run.News)
	assert.Equal(t, "postgres://ledger@localhost:5432/ledger", cfg.Database.URL)
	assert.Equal(t, "s3cret", cfg.Server.AdminSecret)
	assert.Equal(t, Baseline{Score: 6.4, Trend: "down"}, cfg.Baselines["construction_spending"])
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("baselines:\n  x:\n    score: 12\n    trend: up\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
