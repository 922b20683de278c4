package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Gateways  GatewaysConfig            `yaml:"gateways"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Memory    MemoryConfig              `yaml:"memory"`
	Retry     RetryConfig               `yaml:"retry"`
	Scheduler SchedulerConfig           `yaml:"scheduler"`
	Policy    PolicyConfig              `yaml:"policy"`
	GitHub    GitHubConfig              `yaml:"github"`
	Gmail     GmailConfig               `yaml:"gmail"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	DataDir string `yaml:"data_dir"`
	// PromptsDir holds planner.md, <kind>.md and context files.
	PromptsDir string `yaml:"prompts_dir"`
	LogDir     string `yaml:"log_dir"`
}

type GatewaysConfig struct {
	Console  ConsoleConfig  `yaml:"console"`
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Email    EmailConfig    `yaml:"email"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TelegramConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
	// ChatID receives reports; AllowedChats may send requests.
	ChatID       int64   `yaml:"chat_id"`
	AllowedChats []int64 `yaml:"allowed_chats"`
}

type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
	Enabled   bool   `yaml:"enabled"`
}

type EmailConfig struct {
	Enabled bool       `yaml:"enabled"`
	To      []string   `yaml:"to"`
	SMTP    SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type MemoryConfig struct {
	Path                string  `yaml:"path"`
	RetentionDays       int     `yaml:"retention_days"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	CandidateFloor      float64 `yaml:"candidate_floor"`
}

type RetryConfig struct {
	Ceiling    int           `yaml:"ceiling"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Multiplier float64       `yaml:"multiplier"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

type SchedulerConfig struct {
	Workers      int           `yaml:"workers"`
	DBPath       string        `yaml:"db_path"`
	SyncInterval time.Duration `yaml:"sync_interval"`
	// BypassMemory is a pointer so an explicit false survives defaults.
	BypassMemory *bool  `yaml:"bypass_memory"`
	Timezone     string `yaml:"timezone"`
}

// PolicyConfig lists deny rules. DeniedPatterns apply to every kind,
// KindPatterns only to the kind they are keyed by.
type PolicyConfig struct {
	DeniedKinds    []string            `yaml:"denied_kinds"`
	DeniedPatterns []string            `yaml:"denied_patterns"`
	KindPatterns   map[string][]string `yaml:"kind_patterns"`
}

type GitHubConfig struct {
	Token       string `yaml:"token"`
	APIURL      string `yaml:"api_url"`
	DefaultRepo string `yaml:"default_repo"`
}

type GmailConfig struct {
	// AccessToken is an OAuth token with the gmail.readonly scope.
	AccessToken string `yaml:"access_token"`
}

// LoadConfig reads a YAML config file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "autotasker"
	}
	if c.App.DataDir == "" {
		c.App.DataDir = "data"
	}
	if c.App.PromptsDir == "" {
		c.App.PromptsDir = "prompts"
	}
	if c.App.LogDir == "" {
		c.App.LogDir = "logs"
	}

	if c.Memory.Path == "" {
		c.Memory.Path = filepath.Join(c.App.DataDir, "memory")
	}
	if c.Memory.RetentionDays <= 0 {
		c.Memory.RetentionDays = 30
	}
	if c.Memory.SimilarityThreshold <= 0 {
		c.Memory.SimilarityThreshold = 0.8
	}
	if c.Memory.CandidateFloor <= 0 {
		c.Memory.CandidateFloor = 0.5
	}

	if c.Retry.Ceiling <= 0 {
		c.Retry.Ceiling = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = time.Second
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = 2
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 60 * time.Second
	}

	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = 10
	}
	if c.Scheduler.DBPath == "" {
		c.Scheduler.DBPath = filepath.Join(c.App.DataDir, "autotasker.db")
	}
	if c.Scheduler.SyncInterval <= 0 {
		c.Scheduler.SyncInterval = 30 * time.Second
	}
	if c.Scheduler.BypassMemory == nil {
		bypass := true
		c.Scheduler.BypassMemory = &bypass
	}

	if c.Policy.KindPatterns == nil {
		c.Policy.KindPatterns = map[string][]string{"calendar": {`"action":"delete_all"`}}
	}
	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = "https://api.github.com"
	}
	if c.Gateways.Email.SMTP.Port == 0 {
		c.Gateways.Email.SMTP.Port = 587
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AUTOTASKER_OPENAI_API_KEY"); v != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p := c.Providers["openai"]
		p.APIKey = v
		p.Enabled = true
		c.Providers["openai"] = p
	}
	if v := os.Getenv("AUTOTASKER_TELEGRAM_TOKEN"); v != "" {
		c.Gateways.Telegram.Token = v
		c.Gateways.Telegram.Enabled = true
	}
	if v := os.Getenv("AUTOTASKER_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Gateways.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("AUTOTASKER_GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("AUTOTASKER_GMAIL_TOKEN"); v != "" {
		c.Gmail.AccessToken = v
	}
}

// GetDefaultProvider returns the enabled provider with an api key,
// preferring openai, then openrouter, then any other.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for _, name := range []string{"openai", "openrouter"} {
		if p, ok := c.Providers[name]; ok && p.Enabled && p.APIKey != "" {
			return name, p
		}
	}
	for name, p := range c.Providers {
		if p.Enabled && p.APIKey != "" {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (TelegramConfig, bool) {
	tg := c.Gateways.Telegram
	if tg.Enabled && tg.Token != "" {
		return tg, true
	}
	return TelegramConfig{}, false
}

// Location returns the scheduler time zone, falling back to local time.
func (c *Config) Location() *time.Location {
	if c.Scheduler.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
