//go:build cgo

package calllog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// DuckDBFactory opens the duckdb file at path. An empty path opens an
// in-memory database.
func DuckDBFactory(path string) Factory {
	return Factory{Name: BackendDuckDB, Open: func(ctx context.Context) (Backend, error) {
		if path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create duckdb dir: %w", err)
			}
		}
		return openSQL(ctx, duckdbDialect, path)
	}}
}
