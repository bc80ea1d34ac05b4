package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Pipeline authentication
	CronSecret string

	// Schedule configuration
	PipelineSchedule string // cron spec for the daily pipeline run
	DigestSchedule   string // cron spec for the digest-only run
	TimeZone         string

	// Database configuration
	DatabaseURL string

	// Content scope
	TopicKey string // topic the deployment evaluates for, e.g. "devtools"
	FeedName string // source feed, e.g. "r/startups"

	// LLM configuration (generator + scorer)
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Email configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	AppURL       string

	// Batch tuning
	IngestBatchSize   int
	EvaluateBatchSize int
	DigestMaxIdeas    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		CronSecret: getEnv("CRON_SECRET", ""),

		PipelineSchedule: getEnv("PIPELINE_SCHEDULE", "0 0 6 * * *"),
		DigestSchedule:   getEnv("DIGEST_SCHEDULE", "0 0 */6 * * *"),
		TimeZone:         getEnv("TIMEZONE", "UTC"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		TopicKey: getEnv("TOPIC_KEY", "devtools"),
		FeedName: getEnv("FEED_NAME", "r/startups"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  getEnv("LLM_API_KEY", ""),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getIntEnv("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		EmailFrom:    getEnv("EMAIL_FROM", "ThreadSign <digest@threadsign.dev>"),
		AppURL:       getEnv("APP_URL", "http://localhost:3000"),

		IngestBatchSize:   getIntEnv("INGEST_BATCH_SIZE", 5),
		EvaluateBatchSize: getIntEnv("EVALUATE_BATCH_SIZE", 10),
		DigestMaxIdeas:    getIntEnv("DIGEST_MAX_IDEAS", 10),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}

	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}

	if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
		return fmt.Errorf("SMTP configuration is required (SMTP_HOST, SMTP_USERNAME, SMTP_PASSWORD)")
	}

	if c.IngestBatchSize <= 0 || c.EvaluateBatchSize <= 0 || c.DigestMaxIdeas <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}

	return nil
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
