package calllog

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ent0n29/calld/internal/modules"
)

// ModuleName is the name the store is exposed under to callers.
const ModuleName = "db"

// Module exposes read access to s as a handler module:
//
//	db.getRecent(limit?)  db.getById(id)  db.search(keyword)  db.count()
func Module(s *Store) func() *modules.Module {
	return func() *modules.Module {
		return modules.NewModule(ModuleName, "").
			Define("getRecent", func(ctx context.Context, args []any) (any, error) {
				limit := DefaultRecentLimit
				if len(args) > 0 && args[0] != nil {
					n, err := intArg(args[0], "limit")
					if err != nil {
						return nil, err
					}
					limit = int(n)
				}
				return s.Recent(ctx, limit)
			}).
			Define("getById", func(ctx context.Context, args []any) (any, error) {
				if len(args) == 0 {
					return nil, fmt.Errorf("getById requires an id")
				}
				id, err := intArg(args[0], "id")
				if err != nil {
					return nil, err
				}
				return s.ByID(ctx, id)
			}).
			Define("search", func(ctx context.Context, args []any) (any, error) {
				if len(args) == 0 {
					return nil, fmt.Errorf("search requires a keyword")
				}
				return s.Search(ctx, fmt.Sprint(args[0]))
			}).
			Define("count", func(ctx context.Context, _ []any) (any, error) {
				return s.Count(ctx)
			})
	}
}

func intArg(v any, name string) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int64(x), nil
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%s must be an integer, got %v", name, v)
}
