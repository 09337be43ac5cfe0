package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  host: 127.0.0.1\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "deepseek/deepseek-r1", cfg.AI.OpenRouter.Model)
	assert.Equal(t, 60*time.Second, cfg.AI.OpenRouter.Timeout)
	assert.Equal(t, "user_data", cfg.Game.DataDir)
	assert.Equal(t, 8000, cfg.Game.MaxContextTokens)
	assert.Equal(t, 24*time.Hour, cfg.Game.SessionTTL)
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  host: 0.0.0.0
  port: 8080
ai:
  openrouter:
    api_key: file-key
    model: meta-llama/llama-3-70b
    timeout_seconds: 15
game:
  data_dir: /tmp/stories
  max_context_tokens: 4000
  session_ttl_hours: 2
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "meta-llama/llama-3-70b", cfg.AI.OpenRouter.Model)
	assert.Equal(t, 15*time.Second, cfg.AI.OpenRouter.Timeout)
	assert.Equal(t, "/tmp/stories", cfg.Game.DataDir)
	assert.Equal(t, 4000, cfg.Game.MaxContextTokens)
	assert.Equal(t, 2*time.Hour, cfg.Game.SessionTTL)
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	cfg, err := Load(writeConfig(t, "ai:\n  openrouter:\n    api_key: file-key\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.AI.OpenRouter.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err)
}
