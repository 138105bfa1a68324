package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "https://google.serper.dev", cfg.Serper.BaseURL)
	assert.Equal(t, 10, cfg.Serper.ResultsPerQuery)
	assert.Equal(t, 4, cfg.Scan.Concurrency)
	assert.Equal(t, 30, cfg.Scan.RunTimeoutMins)
	assert.Equal(t, 20, cfg.Health.EvidenceCeiling)
	assert.Equal(t, "0 7 * * 1", cfg.Schedule.Report)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RADAR_STORE_DRIVER", "sqlite")
	t.Setenv("RADAR_SERPER_KEY", "env-key")
	t.Setenv("RADAR_SCAN_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "env-key", cfg.Serper.Key)
	assert.Equal(t, 8, cfg.Scan.Concurrency)
}

func TestLoadTopics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
topics:
  - name: vertical-saas
    weight: 1.0
    queries:
      - "vertical saas acquisition"
      - "vertical saas for sale"
  - name: fintech
    queries:
      - "fintech takeover"
`), 0o644))

	topics, err := LoadTopics(path)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "vertical-saas", topics[0].Name)
	assert.Len(t, topics[0].Queries, 2)
	assert.Equal(t, 1.0, topics[0].Weight)
}

func TestLoadTopics_Invalid(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("topics: []\n"), 0o644))
	_, err := LoadTopics(empty)
	assert.Error(t, err)

	noQueries := filepath.Join(dir, "noqueries.yaml")
	require.NoError(t, os.WriteFile(noQueries, []byte("topics:\n  - name: fintech\n"), 0o644))
	_, err = LoadTopics(noQueries)
	assert.Error(t, err)

	_, err = LoadTopics(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
