package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backends accepted by DATA_BACKEND.
var validBackends = []string{"memory", "sheets", "sqlite", "api"}

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend   string
	DataDirectory string

	// Database
	SQLiteDBPath string

	// Remote sales API
	SalesAPIURL        string
	SalesAPIToken      string
	SalesAPITimeout    time.Duration
	SalesAPIMaxRetries int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSalesSheetName     string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// History
	HistoryMonths    int
	HistoryCacheTTL  time.Duration
	HistoryCacheSize int
	Timezone         string

	// Refresher
	RefreshInterval    time.Duration
	RefreshMaxAge      time.Duration
	RefreshConcurrency int

	// Admin
	AdminToken         string
	LockoutMaxAttempts int
	LockoutDuration    time.Duration

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:   getEnv("DATA_BACKEND", "memory"),
		DataDirectory: getEnv("DATA_DIRECTORY", "data"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/storico.db"),

		SalesAPIURL:        getEnv("SALES_API_URL", ""),
		SalesAPIToken:      getEnv("SALES_API_TOKEN", ""),
		SalesAPITimeout:    getEnvDuration("SALES_API_TIMEOUT", 10*time.Second),
		SalesAPIMaxRetries: getEnvInt("SALES_API_MAX_RETRIES", 3),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "storico"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sale_recorded"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSalesSheetName:     getEnv("GOOGLE_SALES_SHEET_NAME", "Sales"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		HistoryMonths:    getEnvInt("HISTORY_MONTHS", 6),
		HistoryCacheTTL:  getEnvDuration("HISTORY_CACHE_TTL", 5*time.Minute),
		HistoryCacheSize: getEnvInt("HISTORY_CACHE_SIZE", 200),
		Timezone:         getEnv("TZ_NAME", "Local"),

		RefreshInterval:    getEnvDuration("REFRESH_INTERVAL", time.Minute),
		RefreshMaxAge:      getEnvDuration("REFRESH_MAX_AGE", 15*time.Minute),
		RefreshConcurrency: getEnvInt("REFRESH_CONCURRENCY", 4),

		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		LockoutMaxAttempts: getEnvInt("LOCKOUT_MAX_ATTEMPTS", 5),
		LockoutDuration:    getEnvDuration("LOCKOUT_DURATION", 15*time.Minute),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Location resolves Timezone. "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// The api backend and the sqlite snapshot refresh both read the remote API
	if c.DataBackend == "api" && c.SalesAPIURL == "" {
		errors = append(errors, "SALES_API_URL is required when using api backend")
	}
	if c.SalesAPIURL != "" {
		if u, err := url.Parse(c.SalesAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid sales API URL '%s': must be an absolute http(s) URL", c.SalesAPIURL))
		}
	}
	if c.SalesAPITimeout < 100*time.Millisecond || c.SalesAPITimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sales API timeout %v: must be between 100ms and 5m", c.SalesAPITimeout))
	}
	if c.SalesAPIMaxRetries < 0 || c.SalesAPIMaxRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid sales API max retries %d: must be between 0 and 10", c.SalesAPIMaxRetries))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if backend is sheets
	if c.DataBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Validate history configuration
	if c.HistoryMonths < 1 || c.HistoryMonths > 24 {
		errors = append(errors, fmt.Sprintf("invalid history months %d: must be between 1 and 24", c.HistoryMonths))
	}
	if c.HistoryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid history cache size %d: must be at least 1", c.HistoryCacheSize))
	}
	if c.HistoryCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid history cache TTL %v: must be at least 1 second", c.HistoryCacheTTL))
	}
	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	// Validate refresher configuration
	if c.RefreshInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 1 second", c.RefreshInterval))
	} else if c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 24 hours", c.RefreshInterval))
	}
	if c.RefreshMaxAge < c.RefreshInterval {
		errors = append(errors, fmt.Sprintf("invalid refresh max age %v: must be at least the refresh interval", c.RefreshMaxAge))
	}
	if c.RefreshConcurrency < 1 || c.RefreshConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid refresh concurrency %d: must be between 1 and 64", c.RefreshConcurrency))
	}

	// Validate admin configuration
	if c.AdminToken != "" && len(c.AdminToken) < 16 {
		errors = append(errors, "ADMIN_TOKEN must be at least 16 characters")
	}
	if c.LockoutMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid lockout max attempts %d: must be at least 1", c.LockoutMaxAttempts))
	}
	if c.LockoutDuration < time.Second {
		errors = append(errors, fmt.Sprintf("invalid lockout duration %v: must be at least 1 second", c.LockoutDuration))
	}

	// Validate rate limiting
	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	// Validate logging
	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
