package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/efreitasn/stockledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the ledger server.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// DatabaseURL selects the Postgres store; empty keeps state in memory.
	DatabaseURL  string
	DBMinConns   int
	DBMaxConns   int
	StoreTimeout time.Duration

	QuoteAPIURL     string
	QuoteAPIKey     string
	QuoteTimeout    time.Duration
	QuoteMaxRetries int
	// QuoteFile, when set, serves quotes from a YAML price table instead
	// of the HTTP provider.
	QuoteFile string

	InitialCash decimal.Decimal
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	minConns, err := getInt("DB_MIN_CONNS", 1)
	if err != nil || minConns < 0 {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: must be a non-negative integer")
	}

	maxConns, err := getInt("DB_MAX_CONNS", 10)
	if err != nil || maxConns < 1 {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: must be a positive integer")
	}
	if minConns > maxConns {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %d exceeds DB_MAX_CONNS %d", minConns, maxConns)
	}

	storeTimeout, err := getDuration("STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}

	quoteTimeout, err := getDuration("QUOTE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_TIMEOUT: %w", err)
	}

	quoteRetries, err := getInt("QUOTE_MAX_RETRIES", 2)
	if err != nil || quoteRetries < 0 {
		return nil, fmt.Errorf("invalid QUOTE_MAX_RETRIES: must be a non-negative integer")
	}

	quoteURL := getStr("QUOTE_API_URL", "")
	quoteKey := getStr("QUOTE_API_KEY", "")
	quoteFile := getStr("QUOTE_FILE", "")
	if quoteFile == "" && quoteURL == "" {
		return nil, errors.New("no quote source: set QUOTE_FILE or QUOTE_API_URL")
	}
	if quoteFile == "" && quoteKey == "" {
		return nil, errors.New("QUOTE_API_KEY not set")
	}

	initialCash, err := getDecimal("INITIAL_CASH", decimal.NewFromInt(10000))
	if err != nil {
		return nil, fmt.Errorf("invalid INITIAL_CASH: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
		DatabaseURL:     getStr("DATABASE_URL", ""),
		DBMinConns:      minConns,
		DBMaxConns:      maxConns,
		StoreTimeout:    storeTimeout,
		QuoteAPIURL:     quoteURL,
		QuoteAPIKey:     quoteKey,
		QuoteTimeout:    quoteTimeout,
		QuoteMaxRetries: quoteRetries,
		QuoteFile:       quoteFile,
		InitialCash:     initialCash,
	}, nil
}

// SlogLevel returns the slog level named by LogLevel.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return domain.ParseCash(key, v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
