// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token              string `yaml:"token"`
	Mode               string `yaml:"mode"` // polling | console
	Username           string `yaml:"username"`
	Workers            int    `yaml:"workers"` // update-handling workers
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port           int           `yaml:"port"` // 0 disables the admin HTTP server
	AllowedOrigins []string      `yaml:"allowed_origins"`
	JWTSecret      string        `yaml:"jwt_secret"` // empty leaves /api open
	TokenTTL       time.Duration `yaml:"token_ttl"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend"` // file|redis|postgres|sqlite
	Dir           string `yaml:"dir"`
	DatabaseURL   string `yaml:"database_url"`
	SQLitePath    string `yaml:"sqlite_path"`
	EncryptionKey string `yaml:"encryption_key"` // base64, 32 bytes; empty disables encryption
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TurnLock bool          `yaml:"turn_lock"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type AIConfig struct {
	Provider        string            `yaml:"provider"` // default provider: openai|metis|gemini
	OpenAIKey       string            `yaml:"openai_key"`
	OpenAIBaseURL   string            `yaml:"openai_base_url"`
	GeminiKey       string            `yaml:"gemini_key"`
	GeminiBaseURL   string            `yaml:"gemini_base_url"`
	MetisKey        string            `yaml:"metis_key"`
	MetisBaseURL    string            `yaml:"metis_base_url"`
	DefaultModel    string            `yaml:"default_model"`
	ModelProviders  map[string]string `yaml:"model_providers"`  // model -> provider
	ConcurrentLimit int               `yaml:"concurrent_limit"` // max concurrent AI calls
	ContextLimit    int               `yaml:"context_limit"`
	ResetMargin     float64           `yaml:"reset_margin"`
	StripLabels     []string          `yaml:"strip_labels"`
	SystemPrompt    string            `yaml:"system_prompt"`
	Timeout         time.Duration     `yaml:"timeout"`
}

type SpeechConfig struct {
	OpenAIKey    string            `yaml:"openai_key"`
	BaseURL      string            `yaml:"base_url"`
	TTSModel     string            `yaml:"tts_model"`
	STTModel     string            `yaml:"stt_model"`
	Voices       map[string]string `yaml:"voices"` // ISO 639-1 -> voice
	DefaultVoice string            `yaml:"default_voice"`
}

type LocaleConfig struct {
	Default string `yaml:"default"`
}

type Config struct {
	Bot     BotConfig     `yaml:"bot"`
	Log     LogConfig     `yaml:"log"`
	Admin   AdminConfig   `yaml:"admin"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	AI      AIConfig      `yaml:"ai"`
	Speech  SpeechConfig  `yaml:"speech"`
	Locale  LocaleConfig  `yaml:"locale"`

	Runtime RuntimeConfig `yaml:"-"`
}

// DefaultStripLabels are the speaker labels removed from replies.
var DefaultStripLabels = []string{"AI:", "Bot:", "Robot:", "Computer:", "Chatbot:"}

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	return Load(configPath, dev)
}

// Load reads, expands and validates the YAML file at path.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse expands ${VAR} references from the environment, then decodes and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 24 * time.Hour
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/assistant.db"
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 2 * time.Minute
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.MetisBaseURL == "" {
		cfg.AI.MetisBaseURL = "https://api.metisai.ir/openai/v1"
	}
	if cfg.AI.ContextLimit <= 0 {
		cfg.AI.ContextLimit = 4096
	}
	if cfg.AI.ResetMargin <= 0 {
		cfg.AI.ResetMargin = 0.01
	}
	if cfg.AI.StripLabels == nil {
		cfg.AI.StripLabels = append([]string(nil), DefaultStripLabels...)
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.Speech.BaseURL == "" {
		cfg.Speech.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Speech.OpenAIKey == "" {
		cfg.Speech.OpenAIKey = cfg.AI.OpenAIKey
	}
	if cfg.Speech.TTSModel == "" {
		cfg.Speech.TTSModel = "tts-1"
	}
	if cfg.Speech.STTModel == "" {
		cfg.Speech.STTModel = "whisper-1"
	}
	if cfg.Speech.DefaultVoice == "" {
		cfg.Speech.DefaultVoice = "alloy"
	}
	if cfg.Locale.Default == "" {
		cfg.Locale.Default = "en"
	}
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch c.Bot.Mode {
	case "polling":
		if c.Bot.Token == "" {
			return errors.New("bot.token is required")
		}
	case "console":
	default:
		return fmt.Errorf("bot.mode %q is not supported", c.Bot.Mode)
	}
	switch c.Storage.Backend {
	case "file", "sqlite":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for storage.backend=redis")
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return errors.New("storage.database_url is required for storage.backend=postgres")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Redis.TurnLock && c.Redis.URL == "" {
		return errors.New("redis.turn_lock requires redis.url")
	}
	switch c.AI.Provider {
	case "", "openai", "metis", "gemini":
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if c.AI.ResetMargin >= 100 {
		return errors.New("ai.reset_margin must be below 100")
	}
	return nil
}
