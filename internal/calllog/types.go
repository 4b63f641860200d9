// Package calllog persists every dispatched call together with its result.
//
// The store is append-only: records get an increasing id from the backend
// and are never updated or deleted. One backend is selected at startup from
// an ordered list of factories and kept for the life of the process.
package calllog

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("call record not found")
	ErrNoBackend = errors.New("no store backend could be opened")
)

// CallRecord is one persisted call. Result holds the decoded stored text, or
// the raw text when it does not decode.
type CallRecord struct {
	ID         int64  `json:"id"`
	CallString string `json:"call_string"`
	Result     any    `json:"result"`
}

// Row is the stored form of a CallRecord.
type Row struct {
	ID         int64
	CallString string
	Result     string
}

// Backend stores rows. Implementations assign ids and return rows newest
// first from Recent and Search.
type Backend interface {
	Name() string
	Insert(ctx context.Context, callString, result string) (int64, error)
	Recent(ctx context.Context, limit int) ([]Row, error)
	ByID(ctx context.Context, id int64) (Row, error)
	Search(ctx context.Context, keyword string) ([]Row, error)
	Count(ctx context.Context) (int64, error)
	Query(ctx context.Context, query string) ([]map[string]any, error)
	Close() error
}

type notFoundError struct {
	id int64
}

func (e *notFoundError) Error() string { return fmt.Sprintf("no call record with id %d", e.id) }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

func errNotFound(id int64) error { return &notFoundError{id: id} }
