// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	apexlog "github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/staranto/assetcache/internal/cachestore"
)

func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	assets := map[string]string{
		"/index.html":       "<html></html>",
		"/sonic3air_web.js": "console.log('air')",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// run builds a fresh app for args and returns what it wrote.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	args = append([]string{"assetcache"}, args...)
	app, err := InitApp(context.Background(), args)
	require.NoError(t, err)

	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err = app.Run(context.Background(), args)
	return out.String(), err
}

func isolateConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assetcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ASSETCACHE_CFG", path)
}

func TestInstallThenLs(t *testing.T) {
	isolateConfig(t, "ls:\n  output: json\n")
	origin := newOrigin(t)
	db := filepath.Join(t.TempDir(), "cache.db")

	out, err := run(t, "install",
		"--origin", origin.URL,
		"--store", "sqlite",
		"--store-path", db,
		"--cache", "test-v1",
		"--manifest", "index.html",
		"--manifest", "/sonic3air_web.js",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "test-v1: 2 assets cached")

	// Output format comes from the config file.
	out, err = run(t, "ls", "--store", "sqlite", "--store-path", db)
	require.NoError(t, err)
	var buckets []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &buckets))
	require.Len(t, buckets, 1)
	assert.Equal(t, "test-v1", buckets[0]["name"])
	assert.EqualValues(t, 2, buckets[0]["entries"])

	out, err = run(t, "ls", "--store", "sqlite", "--store-path", db,
		"--cache", "test-v1", "--filter", "url@.js")
	require.NoError(t, err)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, origin.URL+"/sonic3air_web.js", entries[0]["url"])
	assert.EqualValues(t, 200, entries[0]["status"])
}

func TestInstallFailure(t *testing.T) {
	isolateConfig(t, "")
	origin := newOrigin(t)
	dir := t.TempDir()

	_, err := run(t, "install",
		"--origin", origin.URL,
		"--store", "disk",
		"--store-dir", dir,
		"--cache", "broken",
		"--manifest", "index.html",
		"--manifest", "missing.png",
	)
	require.Error(t, err)
	assert.ErrorContains(t, err, "install of broken failed")

	// Nothing was committed.
	out, err := run(t, "ls", "--store", "disk", "--store-dir", dir, "--cache", "broken", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestLsUnknownCache(t *testing.T) {
	isolateConfig(t, "")
	_, err := run(t, "ls", "--store", "disk", "--store-dir", t.TempDir(), "--cache", "nope")
	assert.ErrorContains(t, err, "cache nope not found")
}

func TestLogLevelFlag(t *testing.T) {
	isolateConfig(t, "")
	t.Setenv("ASSETCACHE_LOG", "")
	logger := apexlog.Log.(*apexlog.Logger)
	prev := logger.Level
	t.Cleanup(func() { apexlog.SetLevel(prev) })
	apexlog.SetLevel(apexlog.InfoLevel)

	dir := t.TempDir()
	_, err := run(t, "ls", "--log-level", "debug", "--store", "disk", "--store-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, apexlog.DebugLevel, logger.Level)

	_, err = run(t, "ls", "--log-level", "loud", "--store", "disk", "--store-dir", dir)
	assert.Error(t, err)
}

func TestCompletion(t *testing.T) {
	isolateConfig(t, "")

	out, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "complete -F _assetcache assetcache")

	out, err = run(t, "completion", "zsh")
	require.NoError(t, err)
	assert.Contains(t, out, "#compdef assetcache")

	t.Setenv("SHELL", "/bin/fish")
	_, err = run(t, "completion")
	assert.Error(t, err)
}

func TestEntryRows(t *testing.T) {
	stored := time.Date(2021, 4, 4, 12, 0, 0, 0, time.UTC)
	entries := []*cachestore.Entry{{
		Key:      "GET https://x/index.html",
		Method:   "GET",
		URL:      "https://x/index.html",
		Status:   200,
		Header:   http.Header{"Content-Type": {"text/html"}},
		Body:     make([]byte, 2048),
		Checksum: "abc",
		StoredAt: stored,
	}}

	rows := entryRows(entries, stored.Add(2*time.Hour))
	require.Len(t, rows, 1)
	assert.Equal(t, "https://x/index.html", rows[0]["url"])
	assert.Equal(t, 2048, rows[0]["bytes"])
	assert.Equal(t, "2.0 kB", rows[0]["size"])
	assert.Equal(t, "2021-04-04T12:00:00Z", rows[0]["stored_at"])
	assert.Equal(t, "2 hours ago", rows[0]["stored"])
}

func TestSettingsDefaults(t *testing.T) {
	isolateConfig(t, "")
	t.Setenv("ASSETCACHE_CACHE_DIR", t.TempDir())

	app, err := InitApp(context.Background(), []string{"assetcache", "install"})
	require.NoError(t, err)

	cmd := app.Command("install")
	require.NotNil(t, cmd)
	// Parse defaults without running the action.
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		s := SettingsFromCmd(c)
		assert.Equal(t, "sonic3air-v20210404", s.CacheName)
		assert.Equal(t, "disk", s.StoreKind)
		assert.Equal(t, "assetcache", s.S3Prefix)
		assert.NotEmpty(t, s.Manifest)
		return nil
	}
	require.NoError(t, app.Run(context.Background(), []string{"assetcache", "install"}))
}
