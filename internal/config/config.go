package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server
	HTTPAddr string
	LogLevel string

	// Storage
	DBPath string

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration

	// Redis-backed reward rate limiting; disabled when RedisAddr is empty
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RewardRateLimit int

	// Elasticsearch transaction archive; disabled when ElasticsearchURL is empty
	ElasticsearchURL       string
	ElasticsearchUsername  string
	ElasticsearchPassword  string
	ElasticsearchPrefix    string
	ElasticsearchRetention time.Duration
	ElasticsearchArchive   string // Directory pruned indices are exported to
	ElasticsearchRotation  time.Duration
	ElasticsearchPrune     time.Duration

	// Hosted tutor model; the keyword table answers alone when GeminiAPIKey is empty
	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	// Discord grant announcements; disabled unless both are set
	DiscordToken     string
	DiscordChannelID string

	// Environment
	Environment string // "development" or "production"
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	return FromEnv()
}

// FromEnv builds a Config from the current process environment
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:              getEnvWithDefault("HTTP_ADDR", ":8080"),
		LogLevel:              getEnvWithDefault("LOG_LEVEL", "info"),
		DBPath:                getEnvWithDefault("STEMVERSE_DB", filepath.Join("db", "stemverse.sqlite")),
		SessionSecret:         os.Getenv("SESSION_SECRET"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		ElasticsearchURL:      os.Getenv("ELASTICSEARCH_URL"),
		ElasticsearchUsername: os.Getenv("ELASTICSEARCH_USERNAME"),
		ElasticsearchPassword: os.Getenv("ELASTICSEARCH_PASSWORD"),
		ElasticsearchPrefix:   getEnvWithDefault("ELASTICSEARCH_INDEX_PREFIX", "stemverse"),
		ElasticsearchArchive:  getEnvWithDefault("ELASTICSEARCH_ARCHIVE_PATH", "archives"),
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		GeminiModel:           getEnvWithDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		DiscordToken:          os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID:      os.Getenv("DISCORD_CHANNEL_ID"),
		Environment:           getEnvWithDefault("ENVIRONMENT", "development"),
	}

	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ElasticsearchRetention, err = getDuration("ELASTICSEARCH_RETENTION", 90*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ElasticsearchRotation, err = getDuration("ELASTICSEARCH_ROTATION_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ElasticsearchPrune, err = getDuration("ELASTICSEARCH_PRUNE_INTERVAL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.GeminiTimeout, err = getDuration("GEMINI_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RewardRateLimit, err = getInt("REWARD_RATE_LIMIT", 60); err != nil {
		return nil, err
	}

	if cfg.SessionSecret == "" && cfg.IsDevelopment() {
		cfg.SessionSecret = "stemverse-dev-secret"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks if all required configuration is present
func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("STEMVERSE_DB must not be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.RewardRateLimit <= 0 {
		return fmt.Errorf("REWARD_RATE_LIMIT must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ArchiveEnabled reports whether granted transactions are indexed
func (c *Config) ArchiveEnabled() bool {
	return c.ElasticsearchURL != ""
}

// TutorModelEnabled reports whether the tutor asks the hosted model first
func (c *Config) TutorModelEnabled() bool {
	return c.GeminiAPIKey != ""
}

// AnnouncerEnabled reports whether grants are posted to Discord
func (c *Config) AnnouncerEnabled() bool {
	return c.DiscordToken != "" && c.DiscordChannelID != ""
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
