// Package config loads service configuration from the environment, an optional .env file
// and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// AI providers.
const (
	AIProviderNone      = "none"
	AIProviderGemini    = "gemini"
	AIProviderAnthropic = "anthropic"
	AIProviderBayes     = "bayes"
)

// Config holds all configuration. Every field can come from the environment; the YAML file
// named by CATEGORIZER_CONFIG overrides the keys it sets.
type Config struct {
	// Core settings
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	APIToken string `yaml:"api_token"`

	// Storage
	BoltPath  string `yaml:"bolt_path"`
	JobDBPath string `yaml:"job_db_path"`

	// Jobs
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`

	// AI fallback
	AIProvider      string        `yaml:"ai_provider"`
	GeminiModel     string        `yaml:"gemini_model"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	AnthropicModel  string        `yaml:"anthropic_model"`
	AITimeout       time.Duration `yaml:"ai_timeout"`
	AIRateInterval  time.Duration `yaml:"ai_rate_interval"`
	AIRateBurst     int           `yaml:"ai_rate_burst"`

	// Categorization
	RuleTablesPath            string        `yaml:"rule_tables_path"`
	ReviewConfidenceThreshold float64       `yaml:"review_confidence_threshold"`
	RulesCacheTTL             time.Duration `yaml:"rules_cache_ttl"`
	DefaultCurrency           string        `yaml:"default_currency"`

	// Google Cloud
	GCSBucket       string `yaml:"gcs_bucket"`
	BigQueryProject string `yaml:"bigquery_project"`
	BigQueryDataset string `yaml:"bigquery_dataset"`

	// Notion review queue
	NotionToken            string `yaml:"notion_token"`
	NotionReviewDatabaseID string `yaml:"notion_review_database_id"`
	ReviewDryRun           bool   `yaml:"review_dry_run"`
}

// Load reads .env (current directory, then parent), the environment and the optional YAML overlay.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../.env")
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		APIToken:  getEnv("API_TOKEN", ""),
		BoltPath:  getEnv("BOLT_PATH", "./categorizer.db"),
		JobDBPath: getEnv("JOB_DB_PATH", "./jobs.db"),
		Workers:   getEnvAsInt("WORKERS", 5),
		QueueSize: getEnvAsInt("QUEUE_SIZE", 100),

		AIProvider:      strings.ToLower(getEnv("AI_PROVIDER", AIProviderNone)),
		GeminiModel:     getEnv("GEMINI_MODEL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", ""),
		AITimeout:       getEnvAsDuration("AI_TIMEOUT", 30*time.Second),
		AIRateInterval:  getEnvAsDuration("AI_RATE_INTERVAL", 200*time.Millisecond),
		AIRateBurst:     getEnvAsInt("AI_RATE_BURST", 1),

		RuleTablesPath:            getEnv("RULE_TABLES_PATH", ""),
		ReviewConfidenceThreshold: getEnvAsFloat("REVIEW_CONFIDENCE_THRESHOLD", 0.75),
		RulesCacheTTL:             getEnvAsDuration("RULES_CACHE_TTL", time.Minute),
		DefaultCurrency:           getEnv("DEFAULT_CURRENCY", "USD"),

		GCSBucket:       getEnv("GCS_BUCKET", ""),
		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "categorizer"),

		NotionToken:            getEnv("NOTION_TOKEN", ""),
		NotionReviewDatabaseID: getEnv("NOTION_REVIEW_DATABASE_ID", ""),
		ReviewDryRun:           getEnvAsBool("REVIEW_DRY_RUN", false),
	}

	if path := getEnv("CATEGORIZER_CONFIG", ""); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Load: reading %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("Load: parsing %s: %w", path, err)
	}
	c.AIProvider = strings.ToLower(c.AIProvider)
	return nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.AIProvider {
	case AIProviderNone, AIProviderGemini, AIProviderAnthropic, AIProviderBayes:
	default:
		return fmt.Errorf("Validate: unknown AI_PROVIDER %q", c.AIProvider)
	}
	if c.ReviewConfidenceThreshold < 0 || c.ReviewConfidenceThreshold > 1 {
		return fmt.Errorf("Validate: REVIEW_CONFIDENCE_THRESHOLD must be within [0, 1], got %v", c.ReviewConfidenceThreshold)
	}
	if c.AIProvider == AIProviderAnthropic && c.AnthropicAPIKey == "" {
		return fmt.Errorf("Validate: ANTHROPIC_API_KEY is required for the anthropic provider")
	}
	return nil
}

// ReviewEnabled reports whether flagged transactions are pushed to Notion.
func (c *Config) ReviewEnabled() bool {
	return c.NotionToken != "" && c.NotionReviewDatabaseID != ""
}

// WarehouseEnabled reports whether BigQuery is configured.
func (c *Config) WarehouseEnabled() bool {
	return c.BigQueryProject != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
