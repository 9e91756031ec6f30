// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	DBPath   string
	HTTPAddr string
	LogMode  string

	Scheduler SchedulerConfig
	Enrich    EnrichConfig
}

// SchedulerConfig holds scheduler and retry settings.
type SchedulerConfig struct {
	TickInterval  time.Duration
	PoolSize      int64
	AdmissionMode string
	JobTimeout    time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
}

// EnrichConfig selects and configures the enrichment adapter.
type EnrichConfig struct {
	Adapter     string // "remote" or "webfetch"
	Endpoint    string
	Timeout     time.Duration
	BrowserPath string
	Proxy       string
	Stealth     bool
}

// Load reads configuration from environment variables, with defaults.
func Load() *Config {
	return &Config{
		DBPath:   getEnv("DB_PATH", "./data/firmfeed.db"),
		HTTPAddr: ":" + getEnv("PORT", "8080"),
		LogMode:  getEnv("LOG_MODE", "dev"),
		Scheduler: SchedulerConfig{
			TickInterval:  getEnvAsDuration("TICK_INTERVAL", 5*time.Second),
			PoolSize:      int64(getEnvAsInt("WORKER_POOL_SIZE", 4)),
			AdmissionMode: getEnv("ADMISSION_MODE", "per_submitter"),
			JobTimeout:    getEnvAsDuration("JOB_TIMEOUT", 30*time.Minute),
			MaxRetries:    getEnvAsInt("MAX_RETRIES", 3),
			RetryDelay:    getEnvAsDuration("RETRY_DELAY", time.Second),
		},
		Enrich: EnrichConfig{
			Adapter:     getEnv("ENRICHER", "remote"),
			Endpoint:    getEnv("ENRICH_ENDPOINT", ""),
			Timeout:     getEnvAsDuration("ENRICH_TIMEOUT", 5*time.Minute),
			BrowserPath: getEnv("BROWSER_PATH", ""),
			Proxy:       getEnv("BROWSER_PROXY", ""),
			Stealth:     getEnvAsBool("BROWSER_STEALTH", true),
		},
	}
}

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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
