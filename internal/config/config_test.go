package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 300*time.Second, cfg.Scheduler.FleetInterval)
	assert.Equal(t, 900*time.Second, cfg.Scheduler.AnalyticsInterval)
	assert.Equal(t, 0.8, cfg.Behavior.MaxPostProbability)
	assert.Equal(t, "gpt-4", cfg.AI.OpenAI.Model)
	assert.NoError(t, Validate(cfg, false))
	assert.Error(t, Validate(cfg, true))
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "botnet.toml")
	require.NoError(t, InitConfig(path))
	assert.Error(t, InitConfig(path), "refuses to overwrite")

	t.Setenv("DATABASE_URL", "postgres://env/botnet")
	t.Setenv("OPENAI_API_KEY", "sk-live")
	t.Setenv("BOTNET_SCHEDULER__FLEET_INTERVAL", "60s")
	t.Setenv("BOTNET_BEHAVIOR__DISCOVERY_PROBABILITY", "0.5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/botnet", cfg.Database.URL)
	assert.Equal(t, "sk-live", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, "your-anthropic-api-key", cfg.AI.Anthropic.APIKey)
	assert.Equal(t, time.Minute, cfg.Scheduler.FleetInterval)
	assert.Equal(t, 0.5, cfg.Behavior.DiscoveryProbability)
	assert.Equal(t, 2*time.Minute, cfg.Queue.JobTimeout)
	assert.NoError(t, Validate(cfg, true))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Behavior.MaxPostProbability = 1.5
	cfg.Scheduler.FleetInterval = 0
	cfg.Queue.MaxWorkers = 0
	cfg.Agents.DiscoveryCandidates = -1

	err := Validate(cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_post_probability")
	assert.Contains(t, err.Error(), "fleet schedule")
	assert.Contains(t, err.Error(), "max_workers")
	assert.Contains(t, err.Error(), "agents.discovery_candidates")

	assert.NoError(t, Validate(Default(), false))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "ai.openai.requests_per_minute", envKey("BOTNET_AI__OPENAI__REQUESTS_PER_MINUTE"))
	assert.Equal(t, "server.port", envKey("BOTNET_SERVER__PORT"))
}

func TestMain(m *testing.M) {
	for name := range conventionalEnv {
		os.Unsetenv(name)
	}
	os.Exit(m.Run())
}
