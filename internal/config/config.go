package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Persistence
	DatabaseURL string
	RedisURL    string // optional; digest run lock falls back to in-process only

	// Reddit API credentials
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string

	// Minimum delay between requests to a new subreddit. Production
	// deployments use a larger value than development.
	RedditRequestDelay time.Duration

	// Batch scanner limits
	ColdStartLimit  int
	ColdStartWindow string // Reddit "t" parameter: hour, day, week, month, year, all
	CatchUpLimit    int

	// Stream monitor
	StreamPollInterval time.Duration

	// Telegram alerts
	TelegramBotToken string

	// Relevance scoring collaborator; empty disables scoring and every
	// new mention gets the default evaluation.
	ScoringEndpoint string

	// Digest email
	DigestSchedule  string // "daily" or "weekly"
	DigestFromEmail string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	EmailSendDelay  time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUserAgent:    getEnv("REDDIT_USER_AGENT", "reddit-mentions-bot/1.0"),
		RedditRequestDelay: getDurationEnv("REDDIT_REQUEST_DELAY", time.Second),

		ColdStartLimit:  getIntEnv("COLD_START_LIMIT", 200),
		ColdStartWindow: getEnv("COLD_START_WINDOW", "month"),
		CatchUpLimit:    getIntEnv("CATCH_UP_LIMIT", 100),

		StreamPollInterval: getDurationEnv("STREAM_POLL_INTERVAL", 15*time.Second),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		ScoringEndpoint:  getEnv("SCORING_ENDPOINT", ""),

		DigestSchedule:  getEnv("DIGEST_SCHEDULE", "daily"),
		DigestFromEmail: getEnv("DIGEST_FROM_EMAIL", "noreply@sneakyguy.com"),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getIntEnv("SMTP_PORT", 587),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		EmailSendDelay:  getDurationEnv("EMAIL_SEND_DELAY", 500*time.Millisecond),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DigestSchedule != "daily" && c.DigestSchedule != "weekly" {
		return fmt.Errorf("DIGEST_SCHEDULE must be 'daily' or 'weekly'")
	}

	switch c.ColdStartWindow {
	case "hour", "day", "week", "month", "year", "all":
	default:
		return fmt.Errorf("COLD_START_WINDOW must be a valid Reddit time filter, got %q", c.ColdStartWindow)
	}

	return nil
}

// RedditEnabled reports whether Reddit API credentials are configured.
func (c *Config) RedditEnabled() bool {
	return c.RedditClientID != "" && c.RedditClientSecret != ""
}

// EmailEnabled reports whether SMTP delivery is configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
