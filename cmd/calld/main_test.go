package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	scripts := filepath.Join(dir, "scripts")
	require.NoError(t, os.MkdirAll(scripts, 0o755))
	src := "function \"walk\" {\n  params = [name]\n  result = { name = name, steps = 3 }\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "cat.hcl"), []byte(src), 0o600))

	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("MODULES_DIR", scripts)
	t.Setenv("DB_PATH", filepath.Join(dir, "calls.db"))
	t.Setenv("STORE_BACKENDS", "sqlite")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	cfgFile = ""
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCallCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "call", `cat.walk("tomy")`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":{"name":"tomy","steps":3}}`, out)

	out, err = run(t, "call", "db.count()")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":1}`, out)

	out, err = run(t, "call", "ghost.run()")
	assert.ErrorIs(t, err, errCallFailed)
	assert.JSONEq(t, `{"error":"module ghost not found"}`, out)
}

func TestModulesCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "modules")
	require.NoError(t, err)
	assert.Contains(t, out, "cat")
	assert.Contains(t, out, "walk")
	assert.Contains(t, out, "getRecent")
}

func TestInitDBCommand(t *testing.T) {
	dir := setupEnv(t)
	dbPath := filepath.Join(dir, "fresh", "calls.db")
	t.Setenv("DB_PATH", dbPath)

	out, err := run(t, "initdb")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "created table calls"))
	_, err = os.Stat(dbPath)
	require.NoError(t, err)

	out, err = run(t, "initdb")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}
