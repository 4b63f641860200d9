package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call dispatcher.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	ModulesDir    string
	WatchDebounce time.Duration

	// StoreBackends is the backend preference order; memory is always tried
	// last even when omitted.
	StoreBackends []string
	DBPath        string
	DuckDBPath    string
	DatabaseURL   string
	HistoryLimit  int

	LogLevel string

	// ConfigFile is the overlay file that was applied, if any.
	ConfigFile string
}

func defaults() Config {
	return Config{
		BindAddr:         ":8080",
		ShutdownTimeout:  15 * time.Second,
		MetricsNamespace: "calld",
		ModulesDir:       "scripts",
		WatchDebounce:    100 * time.Millisecond,
		StoreBackends:    []string{"postgres", "sqlite", "duckdb", "memory"},
		DBPath:           "calls.db",
		DuckDBPath:       "calls.duckdb",
		HistoryLimit:     10,
		LogLevel:         "info",
	}
}

// Load reads environment variables and applies safe defaults. When
// APP_CONFIG_FILE is set its values are applied first and the environment
// overrides them.
func Load() (Config, error) {
	return LoadFile(stringsTrimSpace("APP_CONFIG_FILE"))
}

// LoadFile is Load with an explicit overlay file; an empty path means none.
func LoadFile(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
		cfg.ConfigFile = path
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.ModulesDir = envOrDefault("MODULES_DIR", cfg.ModulesDir)
	cfg.DBPath = envOrDefault("DB_PATH", cfg.DBPath)
	cfg.DuckDBPath = envOrDefault("DUCKDB_PATH", cfg.DuckDBPath)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	if v := stringsTrimSpace("STORE_BACKENDS"); v != "" {
		cfg.StoreBackends = splitList(v)
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WatchDebounce, err = durationFromEnv("WATCH_DEBOUNCE", cfg.WatchDebounce)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("APP_BIND_ADDR must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.ModulesDir) == "" {
		return fmt.Errorf("MODULES_DIR must not be empty")
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("WATCH_DEBOUNCE must be >= 0")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	for _, b := range c.StoreBackends {
		switch b {
		case "postgres", "sqlite", "duckdb", "memory":
		default:
			return fmt.Errorf("STORE_BACKENDS: unknown backend %q", b)
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
