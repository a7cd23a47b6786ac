// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	FrontendURL        string
	DBPath             string
	MaxIterations      int
	ObservationTimeout time.Duration
	ScreenshotDir      string
	DebugDumpDir       string
	ArchiveDir         string
	ShareTTLSweep      time.Duration
	Oracle             OracleConfig
	Patch              PatchConfig
}

// OracleConfig selects and authenticates the completion backend.
type OracleConfig struct {
	Backend          string // default backend name for new sessions
	OpenRouterAPIKey string
	OpenRouterModel  string
}

// PatchConfig authenticates the patch-application service.
type PatchConfig struct {
	MorphAPIKey string
	MorphModel  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	maxIterations := getEnvInt("MAX_ITERATIONS", 10)
	if maxIterations <= 0 {
		maxIterations = 10
	}

	observationTimeout := getEnvInt("OBSERVATION_TIMEOUT_SECONDS", 30)
	if observationTimeout <= 0 {
		observationTimeout = 30
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		DBPath:             getEnv("DB_PATH", "./data/lemur.db"),
		MaxIterations:      maxIterations,
		ObservationTimeout: time.Duration(observationTimeout) * time.Second,
		ScreenshotDir:      getEnv("SCREENSHOT_DIR", "./data/screenshots"),
		DebugDumpDir:       getEnv("DEBUG_DUMP_DIR", "./data/debug"),
		ArchiveDir:         getEnv("SESSION_ARCHIVE_DIR", "./data/sessions"),
		ShareTTLSweep:      time.Duration(getEnvInt("SHARE_TTL_SWEEP_MINUTES", 60)) * time.Minute,
		Oracle: OracleConfig{
			Backend:          getEnv("ORACLE_BACKEND", "openrouter"),
			OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
			OpenRouterModel:  getEnv("OPENROUTER_MODEL", "meta-llama/llama-4-maverick"),
		},
		Patch: PatchConfig{
			MorphAPIKey: getEnv("MORPH_API_KEY", ""),
			MorphModel:  getEnv("MORPH_MODEL", "morph-v3-fast"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Oracle.OpenRouterAPIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY cannot be empty")
	}
	if c.Patch.MorphAPIKey == "" {
		return fmt.Errorf("MORPH_API_KEY cannot be empty")
	}
	if c.Oracle.Backend == "" {
		return fmt.Errorf("ORACLE_BACKEND cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
