package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "PAPERTRIAGE_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	redisURLEnv       = "REDIS_URL"
	openAIAPIKeyEnv   = "OPENAI_API_KEY"
	openAIModelEnv    = "OPENAI_MODEL"
	deepSeekAPIKeyEnv = "DEEPSEEK_API_KEY"
	deepSeekModelEnv  = "DEEPSEEK_MODEL"
	llmProviderEnv    = "LLM_PROVIDER"
	categoriesEnv     = "ARXIV_CATEGORIES"
	windowDaysEnv     = "ARXIV_WINDOW_DAYS"
	maxResultsEnv     = "ARXIV_MAX_RESULTS"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
	metricsAddrEnv    = "METRICS_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Catalog       CatalogConfig      `yaml:"catalog"`
	LLM           LLMConfig          `yaml:"llm"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Tagging       TaggingConfig      `yaml:"tagging"`
	Batch         BatchConfig        `yaml:"batch"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN keeps
// records in memory.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig points the ETag cache at Redis. Empty means in-process.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// CatalogConfig drives the fetch client.
type CatalogConfig struct {
	Source          string         `yaml:"source"`
	APIURL          string         `yaml:"apiUrl"`
	OAIURL          string         `yaml:"oaiUrl"`
	Categories      []string       `yaml:"categories"`
	WindowDays      int            `yaml:"windowDays"`
	MaxResults      int            `yaml:"maxResults"`
	PageSize        int            `yaml:"pageSize"`
	RequestInterval time.Duration  `yaml:"requestInterval"`
	Timeout         time.Duration  `yaml:"timeout"`
	UserAgent       string         `yaml:"userAgent"`
	Timezone        string         `yaml:"timezone"`
	Retry           RetryConfig    `yaml:"retry"`
	location        *time.Location `yaml:"-"`
}

// Location resolves the record timezone.
func (c CatalogConfig) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	return time.UTC
}

// RetryConfig is the transient-failure policy for one catalog page.
type RetryConfig struct {
	MaxRetries int           `yaml:"maxRetries"`
	BaseDelay  time.Duration `yaml:"baseDelay"`
	Factor     float64       `yaml:"factor"`
	MaxDelay   time.Duration `yaml:"maxDelay"`
}

// LLMConfig lists vendors by name.
type LLMConfig struct {
	DefaultProvider string                    `yaml:"defaultProvider"`
	Timeout         time.Duration             `yaml:"timeout"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig defines how to contact an OpenAI-compatible chat API.
type ProviderConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// Available reports whether the provider can be called.
func (p ProviderConfig) Available() bool {
	return p.APIKey != "" && p.Endpoint != "" && p.Model != ""
}

// ScoringConfig holds calibration constants and the reader's interests.
type ScoringConfig struct {
	Shrink    float64  `yaml:"shrink"`
	Baseline  float64  `yaml:"baseline"`
	Interests []string `yaml:"interests"`
}

// TaggingConfig bounds tag suggestions.
type TaggingConfig struct {
	MaxTags int `yaml:"maxTags"`
}

// BatchConfig holds defaults for score/suggest batches.
type BatchConfig struct {
	DelayMS int `yaml:"delayMs"`
	Limit   int `yaml:"limit"`
}

// SchedulerConfig defines how often ingestion runs in watch mode.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MetricsConfig is the listen address for the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the YAML file named by PAPERTRIAGE_CONFIG (if set) and applies
// environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom is Load with an explicit file path. An empty path uses defaults
// plus environment overrides.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Catalog.Categories) == 0 {
		cfg.Catalog.Categories = defaultConfig().Catalog.Categories
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(redisURLEnv); v != "" {
		c.Redis.URL = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(metricsAddrEnv); v != "" {
		c.Metrics.Addr = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(categoriesEnv); strings.TrimSpace(v) != "" {
		c.Catalog.Categories = SplitList(v)
	}

	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(windowDaysEnv))); err == nil && v > 0 {
		c.Catalog.WindowDays = v
	}

	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(maxResultsEnv))); err == nil && v > 0 {
		c.Catalog.MaxResults = v
	}

	if v := os.Getenv(llmProviderEnv); v != "" {
		c.LLM.DefaultProvider = v
	}

	c.overrideProvider("openai", openAIAPIKeyEnv, openAIModelEnv)
	c.overrideProvider("deepseek", deepSeekAPIKeyEnv, deepSeekModelEnv)
}

func (c *Config) overrideProvider(name, keyEnv, modelEnv string) {
	if c.LLM.Providers == nil {
		c.LLM.Providers = map[string]ProviderConfig{}
	}
	p := c.LLM.Providers[name]
	if v := os.Getenv(keyEnv); v != "" {
		p.APIKey = v
	}
	if v := os.Getenv(modelEnv); v != "" {
		p.Model = v
	}
	c.LLM.Providers[name] = p
}

func (c *Config) bindTimezone() {
	tz := c.Catalog.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc = time.UTC
	}
	c.Catalog.location = loc
}

// SplitList parses a comma-separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}
	if override.Redis.URL != "" {
		base.Redis = override.Redis
	}

	base.Catalog = mergeCatalog(base.Catalog, override.Catalog)

	if override.LLM.DefaultProvider != "" {
		base.LLM.DefaultProvider = override.LLM.DefaultProvider
	}
	if override.LLM.Timeout > 0 {
		base.LLM.Timeout = override.LLM.Timeout
	}
	for name, p := range override.LLM.Providers {
		current := base.LLM.Providers[name]
		if p.Endpoint != "" {
			current.Endpoint = p.Endpoint
		}
		if p.Model != "" {
			current.Model = p.Model
		}
		if p.APIKey != "" {
			current.APIKey = p.APIKey
		}
		if p.SystemPrompt != "" {
			current.SystemPrompt = p.SystemPrompt
		}
		base.LLM.Providers[name] = current
	}

	if override.Scoring.Shrink > 0 {
		base.Scoring.Shrink = override.Scoring.Shrink
	}
	if override.Scoring.Baseline > 0 {
		base.Scoring.Baseline = override.Scoring.Baseline
	}
	if len(override.Scoring.Interests) > 0 {
		base.Scoring.Interests = override.Scoring.Interests
	}

	if override.Tagging.MaxTags > 0 {
		base.Tagging.MaxTags = override.Tagging.MaxTags
	}

	if override.Batch.DelayMS > 0 {
		base.Batch.DelayMS = override.Batch.DelayMS
	}
	if override.Batch.Limit > 0 {
		base.Batch.Limit = override.Batch.Limit
	}

	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Metrics.Addr != "" {
		base.Metrics.Addr = override.Metrics.Addr
	}

	return base
}

func mergeCatalog(base, override CatalogConfig) CatalogConfig {
	if override.Source != "" {
		base.Source = override.Source
	}
	if override.APIURL != "" {
		base.APIURL = override.APIURL
	}
	if override.OAIURL != "" {
		base.OAIURL = override.OAIURL
	}
	if len(override.Categories) > 0 {
		base.Categories = override.Categories
	}
	if override.WindowDays > 0 {
		base.WindowDays = override.WindowDays
	}
	if override.MaxResults > 0 {
		base.MaxResults = override.MaxResults
	}
	if override.PageSize > 0 {
		base.PageSize = override.PageSize
	}
	if override.RequestInterval > 0 {
		base.RequestInterval = override.RequestInterval
	}
	if override.Timeout > 0 {
		base.Timeout = override.Timeout
	}
	if override.UserAgent != "" {
		base.UserAgent = override.UserAgent
	}
	if override.Timezone != "" {
		base.Timezone = override.Timezone
	}
	if override.Retry.MaxRetries > 0 {
		base.Retry.MaxRetries = override.Retry.MaxRetries
	}
	if override.Retry.BaseDelay > 0 {
		base.Retry.BaseDelay = override.Retry.BaseDelay
	}
	if override.Retry.Factor > 0 {
		base.Retry.Factor = override.Retry.Factor
	}
	if override.Retry.MaxDelay > 0 {
		base.Retry.MaxDelay = override.Retry.MaxDelay
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{DSN: ""},
		Catalog: CatalogConfig{
			Source:          "arxiv",
			APIURL:          "https://export.arxiv.org/api/query",
			OAIURL:          "https://oaipmh.arxiv.org/oai",
			Categories:      []string{"cs.CV", "cs.LG"},
			WindowDays:      1,
			MaxResults:      200,
			PageSize:        100,
			RequestInterval: 3 * time.Second,
			Timeout:         30 * time.Second,
			UserAgent:       "PaperTriage/1.0",
			Timezone:        defaultTimezone,
			Retry: RetryConfig{
				MaxRetries: 3,
				BaseDelay:  time.Second,
				Factor:     2,
				MaxDelay:   15 * time.Second,
			},
			location: time.UTC,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Timeout:         60 * time.Second,
			Providers: map[string]ProviderConfig{
				"openai": {
					Endpoint:     "https://api.openai.com/v1/chat/completions",
					Model:        "gpt-4o-mini",
					SystemPrompt: "You are a careful reviewer of research paper abstracts. Answer with JSON only.",
				},
				"deepseek": {
					Endpoint:     "https://api.deepseek.com/chat/completions",
					Model:        "deepseek-chat",
					SystemPrompt: "You are a careful reviewer of research paper abstracts. Answer with JSON only.",
				},
			},
		},
		Scoring:   ScoringConfig{Shrink: 0.6, Baseline: 3},
		Tagging:   TaggingConfig{MaxTags: 8},
		Batch:     BatchConfig{DelayMS: 800, Limit: 20},
		Scheduler: SchedulerConfig{Interval: 24 * time.Hour},
	}
}
