package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-dialog/internal/companion"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"MEAL_DIALOG_DB_PATH", "FINELI_BASE_URL", "GEMINI_API_KEY", "MCP_PROXY_URL", "MCP_PROXY_API_KEY", "OPENROUTER_MODEL", "MEAL_DIALOG_PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
engine:
  language: en
  search_timeout: 2s
fineli:
  catalog_path: configs/foods.yaml
nlu:
  provider: gateway
  enable_responder: true
companions:
  pasta: [parmesan]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "configs/foods.yaml", cfg.Fineli.CatalogPath)
	assert.Equal(t, ProviderGateway, cfg.NLU.Provider)
	assert.True(t, cfg.NLU.EnableResponder)
	assert.Equal(t, map[string][]string{"pasta": {"parmesan"}}, cfg.CompanionTable())

	dc := cfg.DialogConfig()
	assert.Equal(t, "en", dc.Language)
	assert.Equal(t, 2*time.Second, dc.SearchTimeout)
	assert.Equal(t, 3*time.Second, dc.RankTimeout)
	assert.Equal(t, 2, dc.MaxNoMatchRetries)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "server: ["))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "engine:\n  search_timeout: soon\n"))
	assert.ErrorContains(t, err, "engine.search_timeout")

	_, err = Load(writeConfig(t, "nlu:\n  provider: crystal-ball\n"))
	assert.ErrorContains(t, err, "crystal-ball")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("gemini key selects gemini", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "g-key")
		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, "g-key", cfg.NLU.APIKey)
		assert.Equal(t, ProviderGemini, cfg.NLU.Provider)
	})

	t.Run("gateway settings apply to the gateway provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MCP_PROXY_URL", "http://proxy:1")
		t.Setenv("MCP_PROXY_API_KEY", "p-key")
		t.Setenv("OPENROUTER_MODEL", "some/model")
		cfg := Default()
		cfg.NLU.Provider = ProviderGateway
		cfg.applyEnvOverrides()
		assert.Equal(t, "http://proxy:1", cfg.NLU.ProxyURL)
		assert.Equal(t, "p-key", cfg.NLU.APIKey)
		assert.Equal(t, "some/model", cfg.NLU.Model)
	})

	t.Run("paths and port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEAL_DIALOG_DB_PATH", "/tmp/x.db")
		t.Setenv("FINELI_BASE_URL", "http://fineli.local")
		t.Setenv("MEAL_DIALOG_PORT", "7000")
		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/tmp/x.db", cfg.Server.DBPath)
		assert.Equal(t, "http://fineli.local", cfg.Fineli.BaseURL)
		assert.Equal(t, 7000, cfg.Server.Port)
	})
}

func TestCompanionTableDefault(t *testing.T) {
	assert.Equal(t, companion.DefaultTable, Default().CompanionTable())
}

func TestShippedConfigLoads(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("../../configs/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "fi", cfg.Engine.Language)
}
