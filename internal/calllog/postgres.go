package calllog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/calld/internal/reliability"
)

const postgresConnectAttempts = 3

// PostgresBackend stores calls in PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func PostgresFactory(databaseURL string) Factory {
	return Factory{Name: BackendPostgres, Open: func(ctx context.Context) (Backend, error) {
		return NewPostgresBackend(ctx, databaseURL)
	}}
}

func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pingWithBackoff(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if err := initCallSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresBackend{pool: pool}, nil
}

func pingWithBackoff(ctx context.Context, pool *pgxpool.Pool) error {
	err := reliability.Retry(ctx, postgresConnectAttempts, 200*time.Millisecond, 2*time.Second, pool.Ping)
	if err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func initCallSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			id BIGSERIAL PRIMARY KEY,
			call_string TEXT,
			result TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (b *PostgresBackend) Name() string { return BackendPostgres }

func (b *PostgresBackend) Insert(ctx context.Context, callString, result string) (int64, error) {
	var id int64
	err := b.pool.QueryRow(ctx,
		`INSERT INTO calls (call_string, result) VALUES ($1, $2) RETURNING id`,
		callString, result,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert call: %w", err)
	}
	return id, nil
}

func (b *PostgresBackend) Recent(ctx context.Context, limit int) ([]Row, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT id, call_string, result FROM calls ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	return collectCallRows(rows)
}

func (b *PostgresBackend) ByID(ctx context.Context, id int64) (Row, error) {
	var (
		r      Row
		callS  *string
		result *string
	)
	err := b.pool.QueryRow(ctx,
		`SELECT id, call_string, result FROM calls WHERE id = $1`, id,
	).Scan(&r.ID, &callS, &result)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, errNotFound(id)
	}
	if err != nil {
		return Row{}, fmt.Errorf("query call: %w", err)
	}
	r.CallString, r.Result = deref(callS, ""), deref(result, "null")
	return r, nil
}

func (b *PostgresBackend) Search(ctx context.Context, keyword string) ([]Row, error) {
	pattern := "%" + escapeLike(keyword) + "%"
	rows, err := b.pool.Query(ctx,
		`SELECT id, call_string, result FROM calls
		 WHERE call_string ILIKE $1 ESCAPE '\' OR result ILIKE $1 ESCAPE '\'
		 ORDER BY id DESC`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search calls: %w", err)
	}
	return collectCallRows(rows)
}

func (b *PostgresBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.pool.QueryRow(ctx, `SELECT COUNT(*) FROM calls`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}

// Query runs inside a read-only transaction so the server enforces what
// the textual check already filtered.
func (b *PostgresBackend) Query(ctx context.Context, query string) ([]map[string]any, error) {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query rows: %w", err)
	}
	return out, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func collectCallRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()
	out := make([]Row, 0)
	for rows.Next() {
		var (
			r      Row
			callS  *string
			result *string
		)
		if err := rows.Scan(&r.ID, &callS, &result); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		r.CallString, r.Result = deref(callS, ""), deref(result, "null")
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return out, nil
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
