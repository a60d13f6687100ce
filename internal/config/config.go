// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// ReviewFrequencies maps the supported review cadences onto cron specs (with seconds)
var ReviewFrequencies = map[string]string{
	"monthly":     "0 0 9 1 * *",
	"quarterly":   "0 0 9 1 1,4,7,10 *",
	"semi-annual": "0 0 9 1 1,7 *",
	"annual":      "0 0 9 1 1 *",
}

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for the ledger database (always absolute)
	Port       int
	LogLevel   string
	DevMode    bool
	PolicyFile string

	ReviewFrequency   string // monthly, quarterly, semi-annual, annual
	ReviewSchedule    string // explicit cron spec, overrides ReviewFrequency
	ReviewConcurrency int

	AuditArchive AuditArchiveConfig

	Policy Policy
}

// AuditArchiveConfig configures the optional S3 audit archive
type AuditArchiveConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // S3-compatible endpoint, empty for AWS
	AccessKeyID     string // static credentials, empty for the default chain
	SecretAccessKey string
	BatchSize       int
	Schedule        string // cron spec for archive runs
}

// Enabled reports whether an archive bucket is configured
func (a AuditArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Load reads configuration from environment variables and the policy file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ADVISOR_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("ADVISOR_PORT", 8080),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		PolicyFile:        getEnv("ADVISOR_POLICY_FILE", ""),
		ReviewFrequency:   getEnv("REVIEW_FREQUENCY", "quarterly"),
		ReviewSchedule:    getEnv("REVIEW_SCHEDULE", ""),
		ReviewConcurrency: getEnvAsInt("REVIEW_CONCURRENCY", 4),
		AuditArchive: AuditArchiveConfig{
			Bucket:          getEnv("AUDIT_S3_BUCKET", ""),
			Prefix:          getEnv("AUDIT_S3_PREFIX", "audit"),
			Region:          getEnv("AUDIT_S3_REGION", "us-east-1"),
			Endpoint:        getEnv("AUDIT_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("AUDIT_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AUDIT_S3_SECRET_ACCESS_KEY", ""),
			BatchSize:       getEnvAsInt("AUDIT_S3_BATCH_SIZE", 500),
			Schedule:        getEnv("AUDIT_S3_SCHEDULE", "0 0 2 * * *"),
		},
	}

	policy, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	// Environment overrides for the knobs operators tune most often
	policy.DriftThreshold = getEnvAsFloat("DRIFT_THRESHOLD", policy.DriftThreshold)
	policy.MinTradeWeight = getEnvAsFloat("MIN_TRADE_WEIGHT", policy.MinTradeWeight)
	policy.CostPerTurnover = getEnvAsFloat("COST_PER_TURNOVER", policy.CostPerTurnover)
	cfg.Policy = policy

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ReviewSpec returns the cron spec the drift review runs on
func (c *Config) ReviewSpec() (string, error) {
	if c.ReviewSchedule != "" {
		return c.ReviewSchedule, nil
	}
	spec, ok := ReviewFrequencies[c.ReviewFrequency]
	if !ok {
		return "", fmt.Errorf("unknown review frequency %q", c.ReviewFrequency)
	}
	return spec, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ReviewConcurrency < 1 {
		return fmt.Errorf("REVIEW_CONCURRENCY must be positive")
	}
	if _, err := c.ReviewSpec(); err != nil {
		return err
	}
	if c.AuditArchive.Enabled() && c.AuditArchive.BatchSize < 1 {
		return fmt.Errorf("AUDIT_S3_BATCH_SIZE must be positive")
	}
	return c.Policy.Validate()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
