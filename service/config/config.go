package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported values for CHAIN.
const (
	ChainEVM    = "evm"
	ChainSolana = "solana"
)

// Supported values for STORAGE_BACKEND.
const (
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	ServerURL  string
	LogLevel   string

	// Generative backend configuration. An empty key runs the oracle with
	// fallback phrases only.
	GeminiAPIKey string
	GeminiModel  string

	// Chain configuration
	Chain        string
	EVMRPCURL    string
	SolanaRPCURL string // comma-separated list, one is picked at random

	// Storage configuration
	StorageBackend string
	StateDir       string
	RedisURL       string
	DatabaseURL    string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	RitualSchedule    string

	// Oracle timing
	MinSpeakDuration time.Duration
	PerCharDuration  time.Duration
	RitualPause      time.Duration
	TributeCost      float64
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.ServerURL = getEnvOrDefault("SERVER_URL", "http://localhost:8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Generative backend configuration
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash")

	// Chain configuration
	cfg.Chain = strings.ToLower(getEnvOrDefault("CHAIN", ChainEVM))
	cfg.EVMRPCURL = getEnvOrDefault("EVM_RPC_URL", "https://testnet-rpc.monad.xyz")
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://api.devnet.solana.com")

	// Storage configuration
	cfg.StorageBackend = strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", StorageFile))
	cfg.StateDir = getEnvOrDefault("STATE_DIR", ".bukeqi")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "bukeqi-closing-ritual")
	cfg.RitualSchedule = getEnvOrDefault("RITUAL_SCHEDULE", "0 0 * * *")

	// Oracle timing
	minSpeak, err := parseDuration("MIN_SPEAK_DURATION", "8s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinSpeakDuration = minSpeak
	}

	perChar, err := parseDuration("PER_CHAR_DURATION", "50ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PerCharDuration = perChar
	}

	pause, err := parseDuration("RITUAL_PAUSE", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RitualPause = pause
	}

	tribute, err := parseFloat("TRIBUTE_COST", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TributeCost = tribute
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.Chain {
	case ChainEVM:
		if c.EVMRPCURL == "" {
			errs = append(errs, fmt.Errorf("EVM_RPC_URL is required when CHAIN=evm"))
		}
	case ChainSolana:
		if strings.Trim(c.SolanaRPCURL, " ,") == "" {
			errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required when CHAIN=solana"))
		}
	default:
		errs = append(errs, fmt.Errorf("CHAIN must be %q or %q, got %q", ChainEVM, ChainSolana, c.Chain))
	}

	switch c.StorageBackend {
	case StorageFile:
		if c.StateDir == "" {
			errs = append(errs, fmt.Errorf("STATE_DIR is required when STORAGE_BACKEND=file"))
		}
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL is required when STORAGE_BACKEND=redis"))
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be one of file, redis, postgres, memory, got %q", c.StorageBackend))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}
	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}
	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}
	if len(strings.Fields(c.RitualSchedule)) != 5 {
		errs = append(errs, fmt.Errorf("RITUAL_SCHEDULE must be a 5-field cron expression, got %q", c.RitualSchedule))
	}

	if c.MinSpeakDuration <= 0 {
		errs = append(errs, fmt.Errorf("MIN_SPEAK_DURATION must be positive"))
	}
	if c.PerCharDuration <= 0 {
		errs = append(errs, fmt.Errorf("PER_CHAR_DURATION must be positive"))
	}
	if c.RitualPause < 0 {
		errs = append(errs, fmt.Errorf("RITUAL_PAUSE cannot be negative"))
	}
	if c.TributeCost <= 0 {
		errs = append(errs, fmt.Errorf("TRIBUTE_COST must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ParseLogLevel maps LOG_LEVEL values to slog levels.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: unknown level %q", level)
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
