package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/", cfg.Source.BaseURL)
	assert.Equal(t, 6, cfg.Source.MaxRetries)
	assert.Equal(t, 2.0, cfg.Source.RatePerSec)
	assert.Equal(t, "data", cfg.Paths.DataDir)
	assert.Equal(t, "docs", cfg.Paths.DocsDir)
	assert.Equal(t, DefaultQuery, cfg.Harvest.Query)
	assert.Equal(t, 500, cfg.Harvest.MaxPerCall)
	assert.Equal(t, int64(50*1024*1024), cfg.Export.MaxOutputBytes)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HARVESTER_SOURCE_API_KEY", "sekrit")
	t.Setenv("HARVESTER_HARVEST_RECENT_DAYS", "14")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sekrit", cfg.Source.APIKey)
	assert.Equal(t, 14, cfg.Harvest.RecentDays)
}

func TestLoad_ConfigFile(t *testing.T) {
	chdirTemp(t)
	content := "source:\n  email: lab@example.org\nharvest:\n  debug: true\n"
	require.NoError(t, os.WriteFile("config.yaml", []byte(content), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "lab@example.org", cfg.Source.Email)
	assert.True(t, cfg.Harvest.Debug)
}
