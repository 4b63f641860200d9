package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/calld/internal/calllog"
	"github.com/ent0n29/calld/internal/config"
	"github.com/ent0n29/calld/internal/execution"
	"github.com/ent0n29/calld/internal/modules"
	"github.com/ent0n29/calld/internal/notify"
	"github.com/ent0n29/calld/internal/protocol"
)

const catModule = `
function "walk" {
  params = [name]
  result = { name = name, steps = 3 }
}

function "meow" {
  params = []
  result = "Meow"
}
`

type testEnv struct {
	ts         *httptest.Server
	dispatcher *execution.Dispatcher
	store      *calllog.Store
	registry   *modules.Registry
	hub        *notify.Hub
	dir        string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cat.hcl"), []byte(catModule), 0o600))

	backend, err := calllog.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "calls.db"))
	require.NoError(t, err)
	store := calllog.NewStore(backend, nil)
	t.Cleanup(func() { _ = store.Close() })

	builtin := modules.NewBuiltinSource()
	builtin.Register(calllog.ModuleName, calllog.Module(store))
	registry := modules.NewRegistry(nil, builtin, modules.NewDirSource(dir))

	dispatcher := execution.NewDispatcher(registry, store, nil, nil)
	hub := notify.NewHub(nil, nil)
	srv := New(config.Config{HistoryLimit: 10}, dispatcher, store, registry, hub, nil, nil)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, dispatcher: dispatcher, store: store, registry: registry, hub: hub, dir: dir}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res, out
}

func (e *testEnv) getJSON(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	res, err := http.Get(e.ts.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	return res
}

func TestExecuteSuccess(t *testing.T) {
	env := newTestEnv(t)

	res, body := env.postJSON(t, "/execute", map[string]string{"callString": `cat.walk("tomy")`})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{"success": map[string]any{"name": "tomy", "steps": float64(3)}}, body)
}

func TestExecuteUnknownModule(t *testing.T) {
	env := newTestEnv(t)

	res, body := env.postJSON(t, "/execute", map[string]string{"callString": "ghost.run()"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, map[string]any{"error": "module ghost not found"}, body)
}

func TestExecuteRequiresCallString(t *testing.T) {
	env := newTestEnv(t)

	res, body := env.postJSON(t, "/execute", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body["error"], "callString")
}

func TestHistoryAndDBRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.postJSON(t, "/execute", map[string]string{"callString": `cat.walk("tomy")`})
	env.postJSON(t, "/execute", map[string]string{"callString": "cat.meow()"})
	env.postJSON(t, "/execute", map[string]string{"callString": "cat.nope()"})
	env.dispatcher.Wait()

	var history []calllog.CallRecord
	res := env.getJSON(t, "/history", &history)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, history, 2)
	assert.Equal(t, "cat.meow()", history[0].CallString)
	assert.Equal(t, `cat.walk("tomy")`, history[1].CallString)

	var count resultsResponse
	env.getJSON(t, "/api/db/count", &count)
	assert.Equal(t, float64(2), count.Results)

	var recent struct {
		Results []calllog.CallRecord `json:"results"`
	}
	env.getJSON(t, "/api/db/recent?limit=1", &recent)
	require.Len(t, recent.Results, 1)
	assert.Equal(t, "cat.meow()", recent.Results[0].CallString)

	var search struct {
		Results []calllog.CallRecord `json:"results"`
	}
	env.getJSON(t, "/api/db/search?term=TOMY", &search)
	require.Len(t, search.Results, 1)
	assert.Equal(t, map[string]any{"name": "tomy", "steps": float64(3)}, search.Results[0].Result)

	var one struct {
		Results calllog.CallRecord `json:"results"`
	}
	res = env.getJSON(t, "/api/db/calls/1", &one)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, `cat.walk("tomy")`, one.Results.CallString)

	var missing errorResponse
	res = env.getJSON(t, "/api/db/calls/99", &missing)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.NotEmpty(t, missing.Error)

	var bad errorResponse
	res = env.getJSON(t, "/api/db/search", &bad)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestQueryRejectsWrites(t *testing.T) {
	env := newTestEnv(t)
	env.postJSON(t, "/execute", map[string]string{"callString": "cat.meow()"})
	env.dispatcher.Wait()

	res, body := env.postJSON(t, "/api/db/query", map[string]string{"sql": "DELETE FROM calls"})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.NotEmpty(t, body["error"])

	n, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, body = env.postJSON(t, "/api/db/query", map[string]string{"sql": "SELECT call_string FROM calls"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []any{map[string]any{"call_string": "cat.meow()"}}, body["results"])
}

func TestDBModuleThroughExecute(t *testing.T) {
	env := newTestEnv(t)
	env.postJSON(t, "/execute", map[string]string{"callString": "cat.meow()"})
	env.dispatcher.Wait()

	_, body := env.postJSON(t, "/execute", map[string]string{"callString": "db.count()"})
	assert.Equal(t, map[string]any{"success": float64(1)}, body)
}

func TestModulesAndHealth(t *testing.T) {
	env := newTestEnv(t)

	var mods struct {
		Modules []modules.Descriptor `json:"modules"`
	}
	env.getJSON(t, "/modules", &mods)
	assert.Equal(t, []modules.Descriptor{
		{Name: "cat", Functions: []string{"walk", "meow"}},
		{Name: "db", Functions: []string{"getRecent", "getById", "search", "count"}},
	}, mods.Modules)

	var health map[string]any
	res := env.getJSON(t, "/healthz", &health)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "sqlite", health["store_backend"])
}

func TestWebsocketReceivesModuleUpdates(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUpdate := func() protocol.ModulesUpdated {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var msg protocol.ModulesUpdated
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := readUpdate()
	assert.Equal(t, protocol.TypeModulesUpdated, first.Type)
	assert.Len(t, first.Modules, 2)

	require.Eventually(t, func() bool { return env.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	dog := "function \"bark\" {\n  params = []\n  result = \"woof\"\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "dog.hcl"), []byte(dog), 0o600))
	require.NoError(t, notify.PublishModules(context.Background(), env.registry, env.hub))

	update := readUpdate()
	require.Len(t, update.Modules, 3)
	assert.Equal(t, "dog", update.Modules[2].Name)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	conn.Close()
	require.Eventually(t, func() bool { return env.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// changingLister publishes a module update from inside its first ListAll,
// as if a file changed while a new client's snapshot was being taken.
type changingLister struct {
	notify.Lister
	hub  *notify.Hub
	once sync.Once
}

func (l *changingLister) ListAll(ctx context.Context) ([]modules.Descriptor, error) {
	l.once.Do(func() { _ = notify.PublishModules(ctx, l.Lister, l.hub) })
	return l.Lister.ListAll(ctx)
}

func TestWebsocketSeesChangeDuringConnect(t *testing.T) {
	env := newTestEnv(t)
	lister := &changingLister{Lister: env.registry, hub: env.hub}
	srv := New(config.Config{HistoryLimit: 10}, env.dispatcher, env.store, lister, env.hub, nil, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var msg protocol.ModulesUpdated
		require.NoError(t, conn.ReadJSON(&msg), "message %d", i)
		assert.Equal(t, protocol.TypeModulesUpdated, msg.Type)
		assert.Len(t, msg.Modules, 2)
	}
}

func TestWSListenerDisconnectsOnBacklog(t *testing.T) {
	disconnects := 0
	l := newWSListener(1, func() { disconnects++ })

	require.NoError(t, l.Send([]byte("a")))
	require.ErrorIs(t, l.Send([]byte("b")), errListenerBacklog)
	require.ErrorIs(t, l.Send([]byte("c")), errListenerBacklog)
	assert.Equal(t, 1, disconnects)

	close(l.done)
	require.ErrorIs(t, l.Send([]byte("d")), errListenerClosed)
}

func TestWebsocketRejectsCrossOrigin(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
