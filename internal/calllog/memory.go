package calllog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MemoryBackend keeps rows in process memory. Everything is lost on restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	rows   []Row
	nextID int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{nextID: 1}
}

func MemoryFactory() Factory {
	return Factory{Name: BackendMemory, Open: func(context.Context) (Backend, error) {
		return NewMemoryBackend(), nil
	}}
}

func (b *MemoryBackend) Name() string { return BackendMemory }

func (b *MemoryBackend) Insert(_ context.Context, callString, result string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.rows = append(b.rows, Row{ID: id, CallString: callString, Result: result})
	return id, nil
}

func (b *MemoryBackend) Recent(_ context.Context, limit int) ([]Row, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || limit > len(b.rows) {
		limit = len(b.rows)
	}
	out := make([]Row, 0, limit)
	for i := len(b.rows) - 1; i >= len(b.rows)-limit; i-- {
		out = append(out, b.rows[i])
	}
	return out, nil
}

func (b *MemoryBackend) ByID(_ context.Context, id int64) (Row, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	// ids are dense and start at 1.
	if id < 1 || id > int64(len(b.rows)) {
		return Row{}, errNotFound(id)
	}
	return b.rows[id-1], nil
}

func (b *MemoryBackend) Search(_ context.Context, keyword string) ([]Row, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	kw := strings.ToLower(keyword)
	var out []Row
	for i := len(b.rows) - 1; i >= 0; i-- {
		r := b.rows[i]
		if strings.Contains(strings.ToLower(r.CallString), kw) || strings.Contains(strings.ToLower(r.Result), kw) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *MemoryBackend) Count(context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.rows)), nil
}

// Query copies the rows into a scratch in-memory sqlite database and runs
// query there.
func (b *MemoryBackend) Query(ctx context.Context, query string) ([]map[string]any, error) {
	b.mu.RLock()
	rows := slices.Clone(b.rows)
	b.mu.RUnlock()

	scratch, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open scratch database: %w", err)
	}
	defer scratch.Close()
	if err := scratch.load(ctx, rows); err != nil {
		return nil, err
	}
	return scratch.Query(ctx, query)
}

func (b *MemoryBackend) Close() error { return nil }
