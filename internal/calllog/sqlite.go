package calllog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteFactory opens (creating when needed) the sqlite file at path.
// ":memory:" opens a private in-memory database.
func SQLiteFactory(path string) Factory {
	return Factory{Name: BackendSQLite, Open: func(ctx context.Context) (Backend, error) {
		return OpenSQLite(ctx, path)
	}}
}

func OpenSQLite(ctx context.Context, path string) (*SQLBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return openSQL(ctx, sqliteDialect, dsn)
}
