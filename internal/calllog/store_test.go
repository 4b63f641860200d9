package calllog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/calld/internal/policy"
)

func newTestStores(t *testing.T) map[string]*Store {
	t.Helper()
	ctx := context.Background()

	sqlite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "calls.db"))
	require.NoError(t, err)

	stores := map[string]*Store{
		BackendMemory: NewStore(NewMemoryBackend(), nil),
		BackendSQLite: NewStore(sqlite, nil),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreSaveAndByID(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.Save(ctx, `cat.walk("tomy")`, map[string]any{"steps": 3})
			require.NoError(t, err)
			assert.Equal(t, int64(1), id)

			rec, err := s.ByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, CallRecord{
				ID:         1,
				CallString: `cat.walk("tomy")`,
				Result:     map[string]any{"steps": int64(3)},
			}, rec)
		})
	}
}

func TestStoreByIDMissing(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.ByID(context.Background(), 42)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStoreRecentNewestFirst(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 12; i++ {
				_, err := s.Save(ctx, "math.add(1, 2)", i)
				require.NoError(t, err)
			}

			recs, err := s.Recent(ctx, 0)
			require.NoError(t, err)
			require.Len(t, recs, DefaultRecentLimit)
			assert.Equal(t, int64(12), recs[0].ID)
			assert.Equal(t, int64(12), recs[0].Result)
			assert.Equal(t, int64(3), recs[len(recs)-1].ID)

			recs, err = s.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, int64(12), recs[0].ID)
			assert.Equal(t, int64(11), recs[1].ID)
		})
	}
}

func TestStoreRecentEmpty(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			recs, err := s.Recent(context.Background(), 5)
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestStoreSearchAndCount(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Save(ctx, `cat.walk("tomy")`, map[string]any{"steps": 3})
			require.NoError(t, err)
			_, err = s.Save(ctx, `cat.meow()`, "Meow")
			require.NoError(t, err)
			_, err = s.Save(ctx, `dog.bark()`, "woof 100%")
			require.NoError(t, err)

			recs, err := s.Search(ctx, "CAT")
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, `cat.meow()`, recs[0].CallString)
			assert.Equal(t, `cat.walk("tomy")`, recs[1].CallString)

			recs, err = s.Search(ctx, "meow")
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "Meow", recs[0].Result)

			recs, err = s.Search(ctx, "0%")
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, `dog.bark()`, recs[0].CallString)

			recs, err = s.Search(ctx, "nothing-like-this")
			require.NoError(t, err)
			assert.Empty(t, recs)

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)
		})
	}
}

func TestStoreConcurrentSaves(t *testing.T) {
	const n = 100
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ids := make([]int64, n)
			errs := make([]error, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ids[i], errs[i] = s.Save(ctx, fmt.Sprintf("cat.walk(%d)", i), i)
				}(i)
			}
			wg.Wait()

			seen := make(map[int64]int, n)
			for i := 0; i < n; i++ {
				require.NoError(t, errs[i])
				prev, dup := seen[ids[i]]
				require.False(t, dup, "id %d returned to saves %d and %d", ids[i], prev, i)
				seen[ids[i]] = i
			}
			for id := int64(1); id <= n; id++ {
				i, ok := seen[id]
				require.True(t, ok, "missing id %d", id)
				rec, err := s.ByID(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, fmt.Sprintf("cat.walk(%d)", i), rec.CallString)
			}

			count, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(n), count)

			recent, err := s.Recent(ctx, n)
			require.NoError(t, err)
			require.Len(t, recent, n)
			for i := 1; i < len(recent); i++ {
				assert.Greater(t, recent[i-1].ID, recent[i].ID)
			}
		})
	}
}

func TestStoreQuery(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	s := stores[BackendSQLite]
	_, err := s.Save(ctx, "cat.meow()", "Meow")
	require.NoError(t, err)

	rows, err := s.Query(ctx, "SELECT call_string, result FROM calls")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cat.meow()", rows[0]["call_string"])
	assert.Equal(t, `"Meow"`, rows[0]["result"])

	_, err = s.Query(ctx, "DELETE FROM calls")
	assert.True(t, errors.Is(err, policy.ErrQueryForbidden))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

}

func TestMemoryStoreAnswersQueries(t *testing.T) {
	broken := Factory{Name: "broken", Open: func(context.Context) (Backend, error) {
		return nil, errors.New("disk on fire")
	}}
	ctx := context.Background()
	s, err := Open(ctx, nil, broken, MemoryFactory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.Equal(t, BackendMemory, s.Backend())

	for _, call := range []string{"cat.meow()", `cat.walk("tomy")`, "math.add(1, 2)"} {
		_, err := s.Save(ctx, call, "ok")
		require.NoError(t, err)
	}

	rows, err := s.Query(ctx, "SELECT id, call_string FROM calls WHERE call_string LIKE 'cat.%' ORDER BY id DESC")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0]["id"])
	assert.Equal(t, `cat.walk("tomy")`, rows[0]["call_string"])
	assert.Equal(t, "cat.meow()", rows[1]["call_string"])

	rows, err = s.Query(ctx, "SELECT COUNT(*) AS n FROM calls")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"n": int64(3)}}, rows)

	_, err = s.Query(ctx, "DELETE FROM calls")
	assert.True(t, errors.Is(err, policy.ErrQueryForbidden))
}

func TestOpenFallsBackToNextFactory(t *testing.T) {
	broken := Factory{Name: "broken", Open: func(context.Context) (Backend, error) {
		return nil, errors.New("disk on fire")
	}}

	s, err := Open(context.Background(), nil, broken, MemoryFactory())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, BackendMemory, s.Backend())
}

func TestOpenWithoutFactories(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNoBackend))
}

func TestFactories(t *testing.T) {
	fs, err := Factories(Options{Backends: []string{"postgres", "SQLite", "sqlite"}, SQLitePath: "x.db"})
	require.NoError(t, err)
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	assert.Equal(t, []string{BackendSQLite, BackendMemory}, names)

	fs, err = Factories(Options{Backends: []string{"postgres"}, DatabaseURL: "postgres://localhost/calls"})
	require.NoError(t, err)
	require.Len(t, fs, 2)
	assert.Equal(t, BackendPostgres, fs[0].Name)

	_, err = Factories(Options{Backends: []string{"mongo"}})
	assert.Error(t, err)
}
