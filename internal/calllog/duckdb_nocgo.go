//go:build !cgo

package calllog

import (
	"context"
	"errors"
)

// DuckDBFactory always fails in builds without cgo.
func DuckDBFactory(string) Factory {
	return Factory{Name: BackendDuckDB, Open: func(context.Context) (Backend, error) {
		return nil, errors.New("duckdb backend requires a cgo build")
	}}
}
