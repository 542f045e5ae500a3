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
	DataDir       string // Base directory for the portfolio and cache databases
	LogLevel      string
	Port          int
	DevMode       bool
	RiskFreeRate  float64 // Annualized, used by Sharpe calculations
	SweepSchedule string  // Cron expression for the risk limit sweep job
	SweepEnabled  bool
	// SimWorkers is the Monte Carlo worker pool size. It is part of the
	// seeding scheme, so it is pinned rather than derived from the host
	// core count; the same seed must reproduce on any machine.
	SimWorkers int
}

// Load reads configuration from environment variables (and a .env file
// when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("VIGIL_DATA_DIR", "")
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
		DataDir:       absDataDir,
		Port:          getEnvAsInt("VIGIL_PORT", 8002),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		RiskFreeRate:  getEnvAsFloat("RISK_FREE_RATE", 0.02),
		SweepSchedule: getEnv("LIMIT_SWEEP_SCHEDULE", "0 */15 * * * *"), // Every 15 minutes
		SweepEnabled:  getEnvAsBool("LIMIT_SWEEP_ENABLED", true),
		SimWorkers:    getEnvAsInt("SIM_WORKERS", 4),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.RiskFreeRate < 0 {
		return fmt.Errorf("risk free rate must be non-negative, got %v", c.RiskFreeRate)
	}
	if c.SimWorkers < 1 {
		return fmt.Errorf("simulation worker count must be positive, got %d", c.SimWorkers)
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
