package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for the optional overlay file. Durations are
// strings such as "15s".
type fileConfig struct {
	BindAddr         string   `toml:"bind_addr" yaml:"bind_addr"`
	ShutdownTimeout  string   `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	MetricsNamespace string   `toml:"metrics_namespace" yaml:"metrics_namespace"`
	AllowAnyOrigin   *bool    `toml:"allow_any_origin" yaml:"allow_any_origin"`
	ModulesDir       string   `toml:"modules_dir" yaml:"modules_dir"`
	WatchDebounce    string   `toml:"watch_debounce" yaml:"watch_debounce"`
	StoreBackends    []string `toml:"store_backends" yaml:"store_backends"`
	DBPath           string   `toml:"db_path" yaml:"db_path"`
	DuckDBPath       string   `toml:"duckdb_path" yaml:"duckdb_path"`
	DatabaseURL      string   `toml:"database_url" yaml:"database_url"`
	HistoryLimit     int      `toml:"history_limit" yaml:"history_limit"`
	LogLevel         string   `toml:"log_level" yaml:"log_level"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config file %s: unsupported extension %q (expected .toml, .yaml or .yml)", path, ext)
	}

	setString(&cfg.BindAddr, fc.BindAddr)
	setString(&cfg.MetricsNamespace, fc.MetricsNamespace)
	setString(&cfg.ModulesDir, fc.ModulesDir)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.DuckDBPath, fc.DuckDBPath)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.LogLevel, fc.LogLevel)
	if fc.AllowAnyOrigin != nil {
		cfg.AllowAnyOrigin = *fc.AllowAnyOrigin
	}
	if len(fc.StoreBackends) > 0 {
		cfg.StoreBackends = splitList(strings.Join(fc.StoreBackends, ","))
	}
	if fc.HistoryLimit != 0 {
		cfg.HistoryLimit = fc.HistoryLimit
	}
	if err := setDuration(&cfg.ShutdownTimeout, "shutdown_timeout", fc.ShutdownTimeout); err != nil {
		return err
	}
	return setDuration(&cfg.WatchDebounce, "watch_debounce", fc.WatchDebounce)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config file %s parse error: %w", key, err)
	}
	*dst = d
	return nil
}
