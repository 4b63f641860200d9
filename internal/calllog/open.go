package calllog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendDuckDB   = "duckdb"
	BackendMemory   = "memory"
)

// Factory opens one kind of backend.
type Factory struct {
	Name string
	Open func(ctx context.Context) (Backend, error)
}

// Options selects and configures backends.
type Options struct {
	// Backends lists backend names in preference order. The memory backend
	// is appended when missing so a store can always be opened.
	Backends    []string
	SQLitePath  string
	DuckDBPath  string
	DatabaseURL string
}

// Factories turns opts into the ordered factory list. Postgres is skipped
// when no DatabaseURL is configured.
func Factories(opts Options) ([]Factory, error) {
	var out []Factory
	seen := make(map[string]bool)
	for _, raw := range opts.Backends {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case BackendPostgres:
			if strings.TrimSpace(opts.DatabaseURL) == "" {
				continue
			}
			out = append(out, PostgresFactory(opts.DatabaseURL))
		case BackendSQLite:
			out = append(out, SQLiteFactory(opts.SQLitePath))
		case BackendDuckDB:
			out = append(out, DuckDBFactory(opts.DuckDBPath))
		case BackendMemory:
			out = append(out, MemoryFactory())
		default:
			return nil, fmt.Errorf("unknown store backend %q (expected postgres|sqlite|duckdb|memory)", raw)
		}
	}
	if !seen[BackendMemory] {
		out = append(out, MemoryFactory())
	}
	return out, nil
}

// Open tries each factory in order and keeps the first backend that opens.
func Open(ctx context.Context, logger *slog.Logger, factories ...Factory) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, f := range factories {
		b, err := f.Open(ctx)
		if err != nil {
			logger.Warn("store backend unavailable, trying next", "backend", f.Name, "error", err)
			continue
		}
		logger.Info("store backend selected", "backend", b.Name())
		return NewStore(b, logger), nil
	}
	return nil, ErrNoBackend
}
