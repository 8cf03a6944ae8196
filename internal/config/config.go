// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the SQLite database (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	AI    AIConfig
	Alert AlertConfig
}

// AIConfig holds external AI evaluation configuration.
// An empty APIKey is a valid state: evaluation degrades to NEEDS_DATA results
// and governance gating is disabled.
type AIConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	MinScore            int  // minimum ai_score required to accept a recommendation
	GovernanceRequired  bool // gate OPEN -> ACCEPTED behind the AI evaluation
	AllowManualOverride bool // bypass the governance gate
	MaxEvalPerBatch     int  // cap per evaluation request
	TimeoutSeconds      int
}

// Configured reports whether the external AI service can be called at all.
func (c AIConfig) Configured() bool {
	return c.APIKey != ""
}

// AlertConfig holds daily alert (email) configuration.
// Delivery is optional: missing SMTP settings turn the job into a no-op skip.
type AlertConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	To           string
	From         string
	WindowDays   int
	CronSpec     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("INVPANEL_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8000),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		AI: AIConfig{
			APIKey:              getEnv("AI_API_KEY", ""),
			BaseURL:             getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
			Model:               getEnv("AI_MODEL", "gpt-4o-mini"),
			MinScore:            getEnvAsInt("AI_MIN_SCORE", 70),
			GovernanceRequired:  getEnvAsBool("AI_GOVERNANCE_REQUIRED", true),
			AllowManualOverride: getEnvAsBool("AI_ALLOW_MANUAL_OVERRIDE", false),
			MaxEvalPerBatch:     getEnvAsInt("AI_MAX_EVAL_PER_BATCH", 5),
			TimeoutSeconds:      getEnvAsInt("AI_TIMEOUT_SECONDS", 30),
		},
		Alert: AlertConfig{
			SMTPHost:     getEnv("EMAIL_HOST", ""),
			SMTPPort:     getEnvAsInt("EMAIL_PORT", 587),
			SMTPUser:     getEnv("EMAIL_HOST_USER", ""),
			SMTPPassword: getEnv("EMAIL_HOST_PASSWORD", ""),
			To:           getEnv("ALERT_EMAIL_TO", ""),
			From:         getEnv("ALERT_FROM_EMAIL", ""),
			WindowDays:   getEnvAsInt("ALERT_WINDOW_DAYS", 90),
			CronSpec:     getEnv("ALERT_CRON", "0 12 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.AI.MinScore < 0 || c.AI.MinScore > 100 {
		return fmt.Errorf("AI_MIN_SCORE must be within 0..100, got %d", c.AI.MinScore)
	}
	if c.AI.MaxEvalPerBatch < 1 {
		return fmt.Errorf("AI_MAX_EVAL_PER_BATCH must be at least 1, got %d", c.AI.MaxEvalPerBatch)
	}
	return nil
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
