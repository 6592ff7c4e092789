package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the task bot
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Inference InferenceConfig `yaml:"inference"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Agent     AgentConfig     `yaml:"agent"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig defines HTTP server settings
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	DebugAPI bool   `yaml:"debug_api"`
}

// StoreConfig selects the task repository backend
type StoreConfig struct {
	Driver     string         `yaml:"driver"` // postgrest | sqlite
	SQLitePath string         `yaml:"sqlite_path"`
	Supabase   SupabaseConfig `yaml:"supabase"`
}

// SupabaseConfig defines the PostgREST endpoint of the hosted store
type SupabaseConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
	Timeout string `yaml:"timeout"`
}

// GetTimeout returns the timeout as a time.Duration
func (s *SupabaseConfig) GetTimeout() time.Duration {
	return parseDuration(s.Timeout, 15*time.Second)
}

// ChannelsConfig defines channel configurations
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	WebChat  WebChatConfig  `yaml:"webchat"`
}

// WhatsAppConfig defines WhatsApp Cloud API settings
type WhatsAppConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PhoneNumberID string `yaml:"phone_number_id"`
	AccessToken   string `yaml:"access_token"`
	VerifyToken   string `yaml:"verify_token"`
	AppSecret     string `yaml:"app_secret"`
	APIVersion    string `yaml:"api_version"`
	BaseURL       string `yaml:"base_url,omitempty"`
}

// TelegramConfig defines Telegram channel settings
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	// Phones maps chat IDs to user phones for chats that never shared
	// a contact.
	Phones map[string]string `yaml:"phones,omitempty"`
}

// DiscordConfig defines Discord channel settings
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	// Phones maps Discord user IDs to user phones.
	Phones map[string]string `yaml:"phones,omitempty"`
}

// WebChatConfig defines the websocket chat channel
type WebChatConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Token          string   `yaml:"token"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// EngineConfig defines an inference engine configuration
type EngineConfig struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"` // openai-compatible | ollama | gemini
	URL     string   `yaml:"url,omitempty"`
	APIKey  string   `yaml:"api_key,omitempty"`
	Models  []string `yaml:"models,omitempty"`
	Timeout string   `yaml:"timeout,omitempty"`
}

// GetTimeout returns the HTTP timeout of the engine client
func (e *EngineConfig) GetTimeout() time.Duration {
	return parseDuration(e.Timeout, 60*time.Second)
}

// LaneConfig defines an inference lane configuration
type LaneConfig struct {
	Name     string   `yaml:"name"`
	Engine   string   `yaml:"engine,omitempty"`   // reference to engine
	Provider string   `yaml:"provider,omitempty"` // shorthand: implicit engine
	BaseURL  string   `yaml:"base_url,omitempty"`
	APIKey   string   `yaml:"api_key,omitempty"`
	Models   []string `yaml:"models,omitempty"`
	Strategy string   `yaml:"strategy,omitempty"`
}

// TranscriptionConfig names the engine used for voice notes
type TranscriptionConfig struct {
	Engine string `yaml:"engine"`
	Model  string `yaml:"model,omitempty"`
}

// InferenceConfig defines inference configurations
type InferenceConfig struct {
	Engines       []EngineConfig      `yaml:"engines,omitempty"`
	Lanes         []LaneConfig        `yaml:"lanes"`
	DefaultLane   string              `yaml:"default_lane,omitempty"`
	Transcription TranscriptionConfig `yaml:"transcription"`
}

// DispatchConfig defines message handling settings
type DispatchConfig struct {
	LLMTimeout string `yaml:"llm_timeout"`
	Timezone   string `yaml:"timezone"`
}

// GetLLMTimeout returns the per-call LLM deadline
func (d *DispatchConfig) GetLLMTimeout() time.Duration {
	return parseDuration(d.LLMTimeout, 15*time.Second)
}

// Location loads the configured IANA timezone, falling back to UTC.
func (d *DispatchConfig) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AgentConfig defines inbound processing limits
type AgentConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// SchedulerConfig defines the daily digest job
type SchedulerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DailySummaryCron string `yaml:"daily_summary_cron"`
	SendInterval     string `yaml:"send_interval"`
}

// GetSendInterval returns the pause between digest sends
func (s *SchedulerConfig) GetSendInterval() time.Duration {
	return parseDuration(s.SendInterval, 2*time.Second)
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	DedupTTL string `yaml:"dedup_ttl"`
	Stream   string `yaml:"stream"`
}

// GetDedupTTL returns how long a message ID stays claimed
func (r *RedisConfig) GetDedupTTL() time.Duration {
	return parseDuration(r.DedupTTL, time.Hour)
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns a configuration with defaults and environment overrides
// applied, for running without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return &cfg
}

// applyEnvOverrides applies environment variable overrides to the config
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("TASKBOT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if url := os.Getenv("SUPABASE_URL"); url != "" {
		c.Store.Supabase.URL = url
	}
	if key := os.Getenv("SUPABASE_ANON_KEY"); key != "" {
		c.Store.Supabase.AnonKey = key
	}
	if token := os.Getenv("WHATSAPP_ACCESS_TOKEN"); token != "" {
		c.Channels.WhatsApp.AccessToken = token
	}
	if token := os.Getenv("WHATSAPP_VERIFY_TOKEN"); token != "" {
		c.Channels.WhatsApp.VerifyToken = token
	}
	if secret := os.Getenv("WHATSAPP_APP_SECRET"); secret != "" {
		c.Channels.WhatsApp.AppSecret = secret
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		c.Channels.Telegram.Token = token
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		c.Channels.Discord.Token = token
	}
	if token := os.Getenv("WEBCHAT_TOKEN"); token != "" {
		c.Channels.WebChat.Token = token
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.setAPIKey(apiKey, "openai", "openai-compatible", "openrouter")
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		c.setAPIKey(apiKey, "gemini")
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if expr := os.Getenv("DAILY_SUMMARY_CRON"); expr != "" {
		c.Scheduler.DailySummaryCron = expr
	}
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		c.Dispatch.Timezone = tz
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// setAPIKey fills the key on engines and shorthand lanes of the given types
// that do not carry one in the file.
func (c *Config) setAPIKey(key string, types ...string) {
	match := func(t string) bool {
		for _, want := range types {
			if t == want {
				return true
			}
		}
		return false
	}
	for i := range c.Inference.Lanes {
		if match(c.Inference.Lanes[i].Provider) && c.Inference.Lanes[i].APIKey == "" {
			c.Inference.Lanes[i].APIKey = key
		}
	}
	for i := range c.Inference.Engines {
		if match(c.Inference.Engines[i].Type) && c.Inference.Engines[i].APIKey == "" {
			c.Inference.Engines[i].APIKey = key
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "postgrest"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "data/taskbot.db"
	}
	if c.Channels.WhatsApp.APIVersion == "" {
		c.Channels.WhatsApp.APIVersion = "v21.0"
	}
	if c.Dispatch.Timezone == "" {
		c.Dispatch.Timezone = "America/Sao_Paulo"
	}
	if c.Agent.MaxConcurrent <= 0 {
		c.Agent.MaxConcurrent = 8
	}
	if c.Scheduler.DailySummaryCron == "" {
		c.Scheduler.DailySummaryCron = "0 8 * * *"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "taskbot:messages"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "postgrest":
		if c.Store.Supabase.URL == "" || c.Store.Supabase.AnonKey == "" {
			return fmt.Errorf("supabase url and anon_key are required for the postgrest store")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}

	if len(c.Inference.Lanes) == 0 {
		return fmt.Errorf("at least one inference lane is required")
	}

	if c.Channels.WhatsApp.Enabled {
		wa := c.Channels.WhatsApp
		if wa.PhoneNumberID == "" || wa.AccessToken == "" || wa.VerifyToken == "" {
			return fmt.Errorf("whatsapp requires phone_number_id, access_token and verify_token")
		}
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required when telegram is enabled")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return fmt.Errorf("discord token is required when discord is enabled")
	}
	if c.Channels.WebChat.Enabled && c.Channels.WebChat.Token == "" {
		return fmt.Errorf("webchat token is required when webchat is enabled")
	}

	if _, err := time.LoadLocation(c.Dispatch.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Dispatch.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.Scheduler.DailySummaryCron); err != nil {
		return fmt.Errorf("invalid daily_summary_cron %q: %w", c.Scheduler.DailySummaryCron, err)
	}
	return nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
