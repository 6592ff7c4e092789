package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 18800
  host: localhost
store:
  driver: sqlite
  sqlite_path: /tmp/taskbot.db
inference:
  engines:
    - name: cloud
      type: openai-compatible
      url: https://api.openai.com/v1
      models: [gpt-4o-mini]
  lanes:
    - name: default
      engine: cloud
  default_lane: default
dispatch:
  llm_timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 18800, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "default", cfg.Inference.DefaultLane)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.GetLLMTimeout())

	// defaults
	assert.Equal(t, "0 8 * * *", cfg.Scheduler.DailySummaryCron)
	assert.Equal(t, "America/Sao_Paulo", cfg.Dispatch.Timezone)
	assert.Equal(t, 8, cfg.Agent.MaxConcurrent)
	assert.Equal(t, "taskbot:messages", cfg.Redis.Stream)
	assert.Equal(t, time.Hour, cfg.Redis.GetDedupTTL())
	assert.Equal(t, 2*time.Second, cfg.Scheduler.GetSendInterval())
	assert.Equal(t, "v21.0", cfg.Channels.WhatsApp.APIVersion)

	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
inference:
  engines:
    - name: cloud
      type: openai-compatible
    - name: flash
      type: gemini
  lanes:
    - name: default
      engine: cloud
`)
	t.Setenv("TASKBOT_PORT", "9090")
	t.Setenv("SUPABASE_URL", "https://x.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "gm-test")
	t.Setenv("DAILY_SUMMARY_CRON", "30 7 * * 1-5")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://x.supabase.co", cfg.Store.Supabase.URL)
	assert.Equal(t, "sk-test", cfg.Inference.Engines[0].APIKey)
	assert.Equal(t, "gm-test", cfg.Inference.Engines[1].APIKey)
	assert.Equal(t, "30 7 * * 1-5", cfg.Scheduler.DailySummaryCron)
	assert.Equal(t, time.UTC, cfg.Dispatch.Location())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Store:     StoreConfig{Driver: "sqlite", SQLitePath: "x.db"},
			Inference: InferenceConfig{Lanes: []LaneConfig{{Name: "local", Provider: "ollama", BaseURL: "http://localhost:11434"}}},
		}
		cfg.applyDefaults()
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"invalid port":      func(c *Config) { c.Server.Port = -1 },
		"unknown driver":    func(c *Config) { c.Store.Driver = "mongo" },
		"postgrest no key":  func(c *Config) { c.Store.Driver = "postgrest" },
		"no lanes":          func(c *Config) { c.Inference.Lanes = nil },
		"bad timezone":      func(c *Config) { c.Dispatch.Timezone = "Mars/Olympus" },
		"bad cron":          func(c *Config) { c.Scheduler.DailySummaryCron = "every morning" },
		"whatsapp no token": func(c *Config) { c.Channels.WhatsApp.Enabled = true },
		"telegram no token": func(c *Config) { c.Channels.Telegram.Enabled = true },
		"discord no token":  func(c *Config) { c.Channels.Discord.Enabled = true },
		"webchat no token":  func(c *Config) { c.Channels.WebChat.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
