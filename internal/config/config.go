package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "CURATOR_CONFIG"
	dotenvPathEnv     = "CURATOR_DOTENV"
	logLevelEnv       = "LOG_LEVEL"
	logFormatEnv      = "LOG_FORMAT"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	openAIKeyEnv      = "OPENAI_API_KEY"
	openAIModelEnv    = "OPENAI_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	httpAddrEnv       = "HTTP_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Completion    CompletionConfig   `yaml:"completion"`
	Bulk          BulkConfig         `yaml:"bulk"`
	Generation    GenerationConfig   `yaml:"generation"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Taxonomy      TaxonomyConfig     `yaml:"taxonomy"`
	Notifications NotificationConfig `yaml:"notifications"`
	HTTP          HTTPConfig         `yaml:"http"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig selects the SQL driver and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CompletionConfig defines how to contact the OpenAI-compatible API.
type CompletionConfig struct {
	BaseURL          string        `yaml:"baseUrl"`
	APIKey           string        `yaml:"apiKey"`
	Model            string        `yaml:"model"`
	JudgeModel       string        `yaml:"judgeModel"`
	Temperature      float64       `yaml:"temperature"`
	JudgeTemperature float64       `yaml:"judgeTemperature"`
	Timeout          time.Duration `yaml:"timeout"`
}

// BulkConfig controls bulk-job submission and caller-side polling.
type BulkConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	CompletionWindow string        `yaml:"completionWindow"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	PollTimeout      time.Duration `yaml:"pollTimeout"`
}

// GenerationConfig scopes generated records and seed diversity.
type GenerationConfig struct {
	Dataset         string `yaml:"dataset"`
	Author          string `yaml:"author"`
	SeedBatchSize   int    `yaml:"seedBatchSize"`
	TrackerCapacity int    `yaml:"trackerCapacity"`
}

// ScoringConfig tunes automatic decisions.
type ScoringConfig struct {
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	Concurrency         int     `yaml:"concurrency"`
}

// TaxonomyConfig points at an optional taxonomy file; otherwise the built-in one is used.
type TaxonomyConfig struct {
	File       string `yaml:"file"`
	CorpusSize int    `yaml:"corpusSize"`
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

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	dotenv := os.Getenv(dotenvPathEnv)
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load %s: %v", dotenv, err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg, err := Parse(raw)
			if err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Parse decodes a YAML document without applying defaults.
func Parse(raw []byte) (Config, error) {
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, err
	}
	return fileCfg, nil
}

// Validate reports settings that make the application unusable.
func (c Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}
	if c.Scoring.ConfidenceThreshold < 0 || c.Scoring.ConfidenceThreshold > 1 {
		problems = append(problems, "scoring.confidenceThreshold must be within [0,1]")
	}
	if c.Scoring.Concurrency <= 0 {
		problems = append(problems, "scoring.concurrency must be positive")
	}
	if c.Taxonomy.CorpusSize < 0 {
		problems = append(problems, "taxonomy.corpusSize must not be negative")
	}
	if c.Bulk.PollInterval <= 0 {
		problems = append(problems, "bulk.pollInterval must be positive")
	}
	if c.Generation.Dataset == "" {
		problems = append(problems, "generation.dataset is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.Completion.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.Completion.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Completion.BaseURL != "" {
		base.Completion.BaseURL = strings.TrimRight(override.Completion.BaseURL, "/")
	}
	if override.Completion.APIKey != "" {
		base.Completion.APIKey = override.Completion.APIKey
	}
	if override.Completion.Model != "" {
		base.Completion.Model = override.Completion.Model
	}
	if override.Completion.JudgeModel != "" {
		base.Completion.JudgeModel = override.Completion.JudgeModel
	}
	if override.Completion.Temperature != 0 {
		base.Completion.Temperature = override.Completion.Temperature
	}
	if override.Completion.JudgeTemperature != 0 {
		base.Completion.JudgeTemperature = override.Completion.JudgeTemperature
	}
	if override.Completion.Timeout != 0 {
		base.Completion.Timeout = override.Completion.Timeout
	}

	if override.Bulk.Endpoint != "" {
		base.Bulk.Endpoint = override.Bulk.Endpoint
	}
	if override.Bulk.CompletionWindow != "" {
		base.Bulk.CompletionWindow = override.Bulk.CompletionWindow
	}
	if override.Bulk.PollInterval != 0 {
		base.Bulk.PollInterval = override.Bulk.PollInterval
	}
	if override.Bulk.PollTimeout != 0 {
		base.Bulk.PollTimeout = override.Bulk.PollTimeout
	}

	if override.Generation.Dataset != "" {
		base.Generation.Dataset = override.Generation.Dataset
	}
	if override.Generation.Author != "" {
		base.Generation.Author = override.Generation.Author
	}
	if override.Generation.SeedBatchSize != 0 {
		base.Generation.SeedBatchSize = override.Generation.SeedBatchSize
	}
	if override.Generation.TrackerCapacity != 0 {
		base.Generation.TrackerCapacity = override.Generation.TrackerCapacity
	}

	if override.Scoring.ConfidenceThreshold != 0 {
		base.Scoring.ConfidenceThreshold = override.Scoring.ConfidenceThreshold
	}
	if override.Scoring.Concurrency != 0 {
		base.Scoring.Concurrency = override.Scoring.Concurrency
	}

	if override.Taxonomy.File != "" {
		base.Taxonomy.File = override.Taxonomy.File
	}
	if override.Taxonomy.CorpusSize != 0 {
		base.Taxonomy.CorpusSize = override.Taxonomy.CorpusSize
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}
	if len(override.HTTP.AllowedOrigins) > 0 {
		base.HTTP.AllowedOrigins = override.HTTP.AllowedOrigins
	}

	return base
}

// Default returns the settings used when no file or environment overrides apply.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:curator.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		Completion: CompletionConfig{
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-4o-mini",
			JudgeModel:       "gpt-4o",
			Temperature:      0.8,
			JudgeTemperature: 0.1,
			Timeout:          60 * time.Second,
		},
		Bulk: BulkConfig{
			Endpoint:         "/v1/chat/completions",
			CompletionWindow: "24h",
			PollInterval:     time.Minute,
			PollTimeout:      24 * time.Hour,
		},
		Generation: GenerationConfig{
			Dataset:         "default",
			Author:          "curator",
			SeedBatchSize:   10,
			TrackerCapacity: 50,
		},
		Scoring:  ScoringConfig{ConfidenceThreshold: 0.8, Concurrency: 4},
		Taxonomy: TaxonomyConfig{CorpusSize: 500},
		HTTP:     HTTPConfig{Addr: ":8080", AllowedOrigins: []string{"*"}},
	}
}
