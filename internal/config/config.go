// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/joho/godotenv"
)

const (
	DefaultPort        = "8080"
	DefaultCacheSize   = 256
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultHistoryKeep = 1000
)

// Config holds every runtime setting. The zero value is not valid; use Load
// or Default.
type Config struct {
	Port          string
	KnowledgeBase string // YAML knowledge base path, empty for the embedded one
	Catalog       string // YAML fact catalog path, empty for the embedded one
	CacheSize     int    // report cache entries, 0 disables caching
	LogLevel      string
	LogFormat     string
	GeminiAPIKey  string
	GeminiModel   string
	HistoryDir    string // run history directory, empty disables history
	HistoryKeep   int    // runs kept in history, 0 keeps everything
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Port:        DefaultPort,
		CacheSize:   DefaultCacheSize,
		LogLevel:    "info",
		LogFormat:   "json",
		GeminiModel: DefaultGeminiModel,
		HistoryKeep: DefaultHistoryKeep,
	}
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (Config, error) {
	cfg := Default()

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if port := os.Getenv("VULTESTER_PORT"); port != "" {
		cfg.Port = port
	}
	cfg.KnowledgeBase = os.Getenv("VULTESTER_KB")
	cfg.Catalog = os.Getenv("VULTESTER_CATALOG")

	if v := os.Getenv("VULTESTER_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: VULTESTER_CACHE_SIZE: %v", errors.ErrInvalidInput, err)
		}
		cfg.CacheSize = n
	}
	if v := os.Getenv("VULTESTER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("VULTESTER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	cfg.HistoryDir = os.Getenv("VULTESTER_HISTORY_DIR")
	if v := os.Getenv("VULTESTER_HISTORY_KEEP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: VULTESTER_HISTORY_KEEP: %v", errors.ErrInvalidInput, err)
		}
		cfg.HistoryKeep = n
	}
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.GeminiModel = model
	}

	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: invalid port %q", errors.ErrInvalidInput, c.Port)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache size must not be negative", errors.ErrInvalidInput)
	}
	if c.HistoryKeep < 0 {
		return fmt.Errorf("%w: history retention must not be negative", errors.ErrInvalidInput)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", errors.ErrInvalidInput, c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown log format %q", errors.ErrInvalidInput, c.LogFormat)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// AIEnabled reports whether report narration can be offered.
func (c Config) AIEnabled() bool {
	return c.GeminiAPIKey != ""
}
