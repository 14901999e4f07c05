// Package config provides application configuration management with support
// for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Store     StoreConfig
	AutoCare  AutoCareConfig
	AI        AIConfig
	Sync      SyncConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
	Search    SearchConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// StoreConfig holds relational store configuration. Path is the SQLite
// database file; the host/port/user/password/name fields mirror the
// deployment environment contract and feed future drivers.
type StoreConfig struct {
	Path     string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// AutoCareConfig holds upstream catalog API configuration.
type AutoCareConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	PageSize     int
	// Timeout is the per-HTTP-call timeout (default: 60s).
	Timeout time.Duration
	// MaxRetries bounds the sync engine's retry budget for transient
	// failures per entity.
	MaxRetries int
}

// AIConfig holds the AI completion service configuration.
type AIConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	Timeout    time.Duration
}

// SyncConfig holds sync engine configuration.
type SyncConfig struct {
	// MinInterval is the minimum age of the last successful run before a
	// non-forced sync proceeds (default: 2160h, about 90 days).
	MinInterval time.Duration
	// StaleRunThreshold is how long a running SyncRun may go without
	// finishing before the daily status check alerts (default: 12h).
	StaleRunThreshold time.Duration
	// MaxSuccessAge is the last-success age beyond which the daily status
	// check emits a staleness alert (default: 2880h, about 120 days).
	MaxSuccessAge time.Duration
}

// WorkerConfig holds job worker configuration.
type WorkerConfig struct {
	// MaxConcurrent is the number of worker goroutines (default: 4).
	MaxConcurrent int
	// PollInterval is the fallback poll cadence when no notification
	// arrives (default: 5s).
	PollInterval time.Duration
	// StaleClaimThreshold is how long a running claim may sit without
	// finishing before another worker may reclaim it (default: 30m).
	StaleClaimThreshold time.Duration
	// MaxAttempts is the claim count after which a job fails as abandoned
	// (default: 3).
	MaxAttempts int
	// JobTimeout is the per-job wall-clock budget (default: 15m).
	JobTimeout time.Duration
}

// SchedulerConfig holds periodic trigger configuration.
type SchedulerConfig struct {
	// Cron expressions interpreted in Timezone, not server local time.
	QuarterlySyncSpec string // default: "0 2 1 1,4,7,10 *"
	DailyCheckSpec    string // default: "0 6 * * *"
	NextRunSpec       string // default: "0 3 1 1,4,7,10 *"
	Timezone          string // IANA name, default: "America/Chicago"
}

// SearchConfig holds the candidate search index configuration.
type SearchConfig struct {
	DataPath string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")

	serverPort := flag.String("port", "", "Server port (default: 8080)")

	storePath := flag.String("store-path", "", "Path to the SQLite database file")
	searchPath := flag.String("search-path", "", "Directory for the search index")

	autocareURL := flag.String("autocare-url", "", "Base URL of the AutoCare catalog API")
	aiEndpoint := flag.String("ai-endpoint", "", "AI completion service endpoint")

	syncMinInterval := flag.String("sync-min-interval", "", "Minimum interval between non-forced syncs (default: 2160h)")
	workerConcurrency := flag.String("worker-concurrency", "", "Number of job workers (default: 4)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
		Store: StoreConfig{
			Path:     getConfigValue(*storePath, "DB_PATH", "fitment.db"),
			Host:     getConfigValue("", "DB_HOST", "localhost"),
			Port:     getConfigValue("", "DB_PORT", "5432"),
			User:     getConfigValue("", "DB_USER", ""),
			Password: getConfigValue("", "DB_PASSWORD", ""),
			Name:     getConfigValue("", "DB_NAME", "fitment"),
		},
		AutoCare: AutoCareConfig{
			BaseURL:      getConfigValue(*autocareURL, "AUTOCARE_BASE_URL", "https://api.autocarevip.com"),
			ClientID:     getConfigValue("", "AUTOCARE_CLIENT_ID", ""),
			ClientSecret: getConfigValue("", "AUTOCARE_CLIENT_SECRET", ""),
			PageSize:     getIntConfigValue("", "AUTOCARE_PAGE_SIZE", 500),
			MaxRetries:   getIntConfigValue("", "AUTOCARE_MAX_RETRIES", 3),
		},
		AI: AIConfig{
			Endpoint:   getConfigValue(*aiEndpoint, "AI_ENDPOINT", ""),
			APIKey:     getConfigValue("", "AI_API_KEY", ""),
			Deployment: getConfigValue("", "AI_DEPLOYMENT", "gpt-4o"),
			APIVersion: getConfigValue("", "AI_API_VERSION", "2024-06-01"),
		},
		Worker: WorkerConfig{
			MaxConcurrent: getIntConfigValue(*workerConcurrency, "WORKER_CONCURRENCY", 4),
			MaxAttempts:   getIntConfigValue("", "WORKER_MAX_ATTEMPTS", 3),
		},
		Scheduler: SchedulerConfig{
			QuarterlySyncSpec: getConfigValue("", "SCHEDULE_QUARTERLY_SYNC", "0 2 1 1,4,7,10 *"),
			DailyCheckSpec:    getConfigValue("", "SCHEDULE_DAILY_CHECK", "0 6 * * *"),
			NextRunSpec:       getConfigValue("", "SCHEDULE_NEXT_RUN", "0 3 1 1,4,7,10 *"),
			Timezone:          getConfigValue("", "SCHEDULE_TIMEZONE", "America/Chicago"),
		},
		Search: SearchConfig{
			DataPath: getConfigValue(*searchPath, "SEARCH_PATH", "search-index"),
		},
	}

	// Parse durations.
	durations := []struct {
		dst      *time.Duration
		flagVal  string
		envKey   string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, "", "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, "", "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, "", "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.AutoCare.Timeout, "", "AUTOCARE_TIMEOUT", "60s"},
		{&cfg.AI.Timeout, "", "AI_TIMEOUT", "60s"},
		{&cfg.Sync.MinInterval, *syncMinInterval, "SYNC_MIN_INTERVAL", "2160h"},
		{&cfg.Sync.StaleRunThreshold, "", "SYNC_STALE_THRESHOLD", "12h"},
		{&cfg.Sync.MaxSuccessAge, "", "SYNC_MAX_SUCCESS_AGE", "2880h"},
		{&cfg.Worker.PollInterval, "", "WORKER_POLL_INTERVAL", "5s"},
		{&cfg.Worker.StaleClaimThreshold, "", "WORKER_STALE_THRESHOLD", "30m"},
		{&cfg.Worker.JobTimeout, "", "WORKER_JOB_TIMEOUT", "15m"},
	}
	for _, d := range durations {
		str := getConfigValue(d.flagVal, d.envKey, d.fallback)
		parsed, err := time.ParseDuration(str)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, str, err)
		}
		*d.dst = parsed
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Store.Path == "" {
		return errors.New("DB_PATH cannot be empty")
	}

	if c.AutoCare.PageSize <= 0 {
		return fmt.Errorf("invalid AutoCare page size: %d", c.AutoCare.PageSize)
	}

	if c.Worker.MaxConcurrent <= 0 {
		return fmt.Errorf("invalid worker concurrency: %d", c.Worker.MaxConcurrent)
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("invalid worker max attempts: %d", c.Worker.MaxAttempts)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}

	// AI endpoint may be empty in development; the worker falls back to
	// failing jobs with a configuration error.

	return nil
}

// Location returns the scheduler's time.Location. Validate has already
// checked the name parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
