package calllog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ent0n29/calld/internal/policy"
)

// DefaultRecentLimit is used when Recent is asked for a non-positive limit.
const DefaultRecentLimit = 10

// Store serializes results on the way in and decodes them on the way out.
// Writes are serialized with a single lock whatever the backend.
type Store struct {
	backend Backend
	logger  *slog.Logger

	writeMu sync.Mutex
}

func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger.With("backend", backend.Name())}
}

// Backend names the selected backend, e.g. "sqlite" or "memory".
func (s *Store) Backend() string { return s.backend.Name() }

// Save appends a record and returns its id.
func (s *Store) Save(ctx context.Context, callString string, result any) (int64, error) {
	text := Serialize(result)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	id, err := s.backend.Insert(ctx, callString, text)
	if err != nil {
		return 0, fmt.Errorf("save call: %w", err)
	}
	s.logger.Debug("call saved", "id", id, "call_string", callString)
	return id, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.backend.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent calls: %w", err)
	}
	return decodeRows(rows), nil
}

func (s *Store) ByID(ctx context.Context, id int64) (CallRecord, error) {
	row, err := s.backend.ByID(ctx, id)
	if err != nil {
		return CallRecord{}, fmt.Errorf("call %d: %w", id, err)
	}
	return decodeRow(row), nil
}

// Search matches keyword as a case-insensitive substring of the call string
// or the stored result text.
func (s *Store) Search(ctx context.Context, keyword string) ([]CallRecord, error) {
	rows, err := s.backend.Search(ctx, strings.TrimSpace(keyword))
	if err != nil {
		return nil, fmt.Errorf("search calls: %w", err)
	}
	return decodeRows(rows), nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.backend.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}

// Query runs a read-only statement. Anything policy.CheckQuery rejects
// fails with policy.ErrQueryForbidden before reaching the backend.
func (s *Store) Query(ctx context.Context, query string) ([]map[string]any, error) {
	if err := policy.CheckQuery(query); err != nil {
		return nil, err
	}
	rows, err := s.backend.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	return rows, nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func decodeRow(r Row) CallRecord {
	return CallRecord{ID: r.ID, CallString: r.CallString, Result: Deserialize(r.Result)}
}

func decodeRows(rows []Row) []CallRecord {
	out := make([]CallRecord, len(rows))
	for i, r := range rows {
		out[i] = decodeRow(r)
	}
	return out
}
