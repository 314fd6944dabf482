package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Database configuration
	DatabaseURL string

	// Feed source configuration
	FeedBaseURL     string
	FeedUserAgent   string
	RequestDelayMs  int
	DefaultChannels []string
	MaxPosts        int
	MaxComments     int

	// Classifier configuration
	OpenAIAPIKey     string
	OpenAIModel      string
	ClassifyTimeoutS int
	ClassifyWorkers  int

	// Scheduler configuration
	SweepIntervalMinutes int
	MaxConcurrentCycles  int
	DefaultFetchInterval int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		FeedBaseURL:    getEnv("FEED_BASE_URL", "https://www.reddit.com"),
		FeedUserAgent:  getEnv("FEED_USER_AGENT", "KeywordRadar/1.0"),
		RequestDelayMs: getIntEnv("FEED_REQUEST_DELAY_MS", 1100),
		DefaultChannels: getSliceEnv("FEED_DEFAULT_CHANNELS", []string{
			"technology",
			"programming",
			"askreddit",
		}),
		MaxPosts:    getIntEnv("FEED_MAX_POSTS", 25),
		MaxComments: getIntEnv("FEED_MAX_COMMENTS", 10),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ClassifyTimeoutS: getIntEnv("CLASSIFY_TIMEOUT_SECONDS", 8),
		ClassifyWorkers:  getIntEnv("CLASSIFY_WORKERS", 4),

		SweepIntervalMinutes: getIntEnv("SWEEP_INTERVAL_MINUTES", 5),
		MaxConcurrentCycles:  getIntEnv("MAX_CONCURRENT_CYCLES", 3),
		DefaultFetchInterval: getIntEnv("DEFAULT_FETCH_INTERVAL_HOURS", 24),
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

	if c.DefaultFetchInterval < 1 || c.DefaultFetchInterval > 168 {
		return fmt.Errorf("DEFAULT_FETCH_INTERVAL_HOURS must be between 1 and 168")
	}

	if c.MaxConcurrentCycles < 1 {
		return fmt.Errorf("MAX_CONCURRENT_CYCLES must be at least 1")
	}

	if c.SweepIntervalMinutes < 1 {
		return fmt.Errorf("SWEEP_INTERVAL_MINUTES must be at least 1")
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

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
