package config_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula/config"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 25, cfg.Pagination.DefaultLimit)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
}

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(`
statement_timeout: 10s
slow_query: 250ms
remote:
  timeout: 2s
  max_rows: 500
  cache_ttl: 1m
pagination:
  max_limit: 200
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.StatementTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowQuery)
	assert.Equal(t, config.Remote{Timeout: 2 * time.Second, MaxRows: 500, CacheTTL: time.Minute}, cfg.Remote)
	assert.Equal(t, 25, cfg.Pagination.DefaultLimit)
	assert.Equal(t, 200, cfg.Pagination.MaxLimit)
	assert.Equal(t, config.DefaultFormulaCacheSize, cfg.Formula.CacheSize)
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		"unknown: 1",
		"statement_timeout: soon",
		"remote:\n  max_rows: -1",
		"pagination:\n  default_limit: 50\n  max_limit: 10",
		"log:\n  level: loud",
		"log:\n  format: xml",
	} {
		_, err := config.Parse([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestParseTOML(t *testing.T) {
	cfg, err := config.ParseTOML([]byte(`
statement_timeout = "15s"

[remote]
timeout = "1s"

[pagination]
default_limit = 10
`))
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.StatementTimeout)
	assert.Equal(t, time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 10, cfg.Pagination.DefaultLimit)

	_, err = config.ParseTOML([]byte(`nope = 1`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tabula.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema: meta/schema.yaml\n"), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "meta", "schema.yaml"), cfg.Schema)

	tomlPath := filepath.Join(dir, "tabula.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`schema = "/abs/schema.yaml"`), 0o600))
	cfg, err = config.Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "/abs/schema.yaml", cfg.Schema)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := config.Log{Level: "warn", Format: "json"}.Logger(&buf)
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"k":"v"`)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- config.WatchDebounced(ctx, 10*time.Millisecond, func(p string) { changed <- p }, path)
	}()
	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("b"), 0o600))

	select {
	case p := <-changed:
		want, err := filepath.Abs(path)
		require.NoError(t, err)
		assert.Equal(t, want, p)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
