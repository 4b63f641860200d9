package calllog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type sqlDialect struct {
	name   string
	driver string
	schema []string
	// like is the case-insensitive pattern operator.
	like string
}

var (
	sqliteDialect = sqlDialect{
		name:   BackendSQLite,
		driver: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS calls (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				call_string TEXT,
				result TEXT
			)`,
		},
		like: "LIKE",
	}
	duckdbDialect = sqlDialect{
		name:   BackendDuckDB,
		driver: "duckdb",
		schema: []string{
			`CREATE SEQUENCE IF NOT EXISTS calls_id_seq START 1`,
			`CREATE TABLE IF NOT EXISTS calls (
				id BIGINT PRIMARY KEY DEFAULT nextval('calls_id_seq'),
				call_string VARCHAR,
				result VARCHAR
			)`,
		},
		like: "ILIKE",
	}
)

// SQLBackend stores calls through database/sql. It is used for the embedded
// engines, which are opened with a single connection.
type SQLBackend struct {
	db      *sql.DB
	dialect sqlDialect
}

func openSQL(ctx context.Context, d sqlDialect, dsn string) (*SQLBackend, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init %s schema failed on %q: %w", d.name, stmt, err)
		}
	}
	return &SQLBackend{db: db, dialect: d}, nil
}

func (b *SQLBackend) Name() string { return b.dialect.name }

func (b *SQLBackend) Insert(ctx context.Context, callString, result string) (int64, error) {
	var id int64
	err := b.db.QueryRowContext(ctx,
		`INSERT INTO calls (call_string, result) VALUES (?, ?) RETURNING id`,
		callString, result,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert call: %w", err)
	}
	return id, nil
}

func (b *SQLBackend) Recent(ctx context.Context, limit int) ([]Row, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, call_string, result FROM calls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	return scanCallRows(rows)
}

func (b *SQLBackend) ByID(ctx context.Context, id int64) (Row, error) {
	var (
		r      Row
		callS  sql.NullString
		result sql.NullString
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT id, call_string, result FROM calls WHERE id = ?`, id,
	).Scan(&r.ID, &callS, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, errNotFound(id)
	}
	if err != nil {
		return Row{}, fmt.Errorf("query call: %w", err)
	}
	r.CallString, r.Result = callS.String, nullText(result)
	return r, nil
}

func (b *SQLBackend) Search(ctx context.Context, keyword string) ([]Row, error) {
	pattern := "%" + escapeLike(keyword) + "%"
	q := fmt.Sprintf(
		`SELECT id, call_string, result FROM calls
		 WHERE call_string %[1]s ? ESCAPE '\' OR result %[1]s ? ESCAPE '\'
		 ORDER BY id DESC`, b.dialect.like)
	rows, err := b.db.QueryContext(ctx, q, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search calls: %w", err)
	}
	return scanCallRows(rows)
}

func (b *SQLBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}

func (b *SQLBackend) Query(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if raw, ok := vals[i].([]byte); ok {
				row[c] = string(raw)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query rows: %w", err)
	}
	return out, nil
}

// load inserts rows keeping their ids.
func (b *SQLBackend) load(ctx context.Context, rows []Row) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO calls (id, call_string, result) VALUES (?, ?, ?)`,
			r.ID, r.CallString, r.Result); err != nil {
			return fmt.Errorf("load call %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

func scanCallRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()
	out := make([]Row, 0)
	for rows.Next() {
		var (
			r      Row
			callS  sql.NullString
			result sql.NullString
		)
		if err := rows.Scan(&r.ID, &callS, &result); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		r.CallString, r.Result = callS.String, nullText(result)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return out, nil
}

// nullText maps a NULL result column to the JSON null literal.
func nullText(s sql.NullString) string {
	if !s.Valid {
		return "null"
	}
	return s.String
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
