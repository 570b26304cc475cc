// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/assetcache/internal/cachestore"
	"github.com/staranto/assetcache/internal/cachestore/diskstore"
	"github.com/staranto/assetcache/internal/cachestore/memstore"
)

const origin = "https://games.example.com/air/"

// countingFetcher serves "body of <url>" for every URL not listed in fail,
// and counts calls.
type countingFetcher struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string]int
	total int
}

func newCountingFetcher(fail ...string) *countingFetcher {
	f := &countingFetcher{fail: map[string]bool{}, calls: map[string]int{}}
	for _, u := range fail {
		f.fail[origin+u] = true
	}
	return f
}

func (f *countingFetcher) Fetch(_ context.Context, req *cachestore.Request) (*cachestore.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.URL]++
	f.total++
	if f.fail[req.URL] {
		return nil, errors.New("connection refused")
	}
	return cachestore.NewResponse(http.StatusOK, http.Header{"Content-Type": {"text/plain"}},
		io.NopCloser(strings.NewReader("body of "+req.URL))), nil
}

func (f *countingFetcher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

type fixture struct {
	worker  *Worker
	storage *cachestore.Storage
	network *countingFetcher
}

func newFixture(t *testing.T, manifest []string, fail ...string) *fixture {
	t.Helper()
	scope, err := cachestore.NewScope(origin)
	require.NoError(t, err)
	cfg, err := NewConfig(DefaultCacheName, manifest)
	require.NoError(t, err)

	network := newCountingFetcher(fail...)
	storage := cachestore.New(memstore.New(), network, cachestore.WithScope(scope))
	return &fixture{
		worker:  New(cfg, storage, network),
		storage: storage,
		network: network,
	}
}

func (fx *fixture) install(t *testing.T) error {
	t.Helper()
	ev := NewInstallEvent(context.Background())
	fx.worker.HandleInstall(ev)
	return ev.Wait()
}

func (fx *fixture) fetch(t *testing.T, method, url string) (*cachestore.Response, error) {
	t.Helper()
	ev := NewFetchEvent(context.Background(), cachestore.NewRequest(method, url))
	fx.worker.HandleFetch(ev)
	require.True(t, ev.Responded())
	return ev.Result()
}

func (fx *fixture) keys(t *testing.T) []string {
	t.Helper()
	b, err := fx.storage.OpenBucket(context.Background(), DefaultCacheName)
	require.NoError(t, err)
	keys, err := b.Keys(context.Background())
	require.NoError(t, err)
	return keys
}

func readBody(t *testing.T, resp *cachestore.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestInstallPopulation(t *testing.T) {
	fx := newFixture(t, DefaultManifest)
	require.NoError(t, fx.install(t))

	keys := fx.keys(t)
	assert.Len(t, keys, len(DefaultManifest))
	for _, u := range DefaultManifest {
		assert.Contains(t, keys, "GET "+origin+u)
	}
	assert.Equal(t, len(DefaultManifest), fx.network.Total())
}

func TestInstallFailurePropagation(t *testing.T) {
	tests := []struct {
		name string
		fail []string
	}{
		{name: "one asset", fail: []string{"sonic3air_web.wasm"}},
		{name: "first asset", fail: []string{"index.html"}},
		{name: "several assets", fail: []string{"favicon.ico", "icon.png", "manifest.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, DefaultManifest, tt.fail...)
			err := fx.install(t)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInstallPopulation)
			assert.Empty(t, fx.keys(t))
		})
	}
}

func TestCacheHitShortCircuitsNetwork(t *testing.T) {
	fx := newFixture(t, []string{"index.html"})
	require.NoError(t, fx.install(t))
	before := fx.network.Total()

	resp, err := fx.fetch(t, http.MethodGet, origin+"index.html")
	require.NoError(t, err)
	assert.Equal(t, "body of "+origin+"index.html", readBody(t, resp))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, before, fx.network.Total())
}

func TestCacheMissPopulates(t *testing.T) {
	fx := newFixture(t, []string{"index.html"})
	require.NoError(t, fx.install(t))
	url := origin + "data/level1.bin"

	resp, err := fx.fetch(t, http.MethodGet, url)
	require.NoError(t, err)
	assert.Equal(t, "body of "+url, readBody(t, resp))
	assert.Equal(t, 1, fx.network.calls[url])

	b, err := fx.storage.OpenBucket(context.Background(), DefaultCacheName)
	require.NoError(t, err)
	cached, err := b.Match(context.Background(), cachestore.NewRequest(http.MethodGet, url))
	require.NoError(t, err)
	assert.Equal(t, "body of "+url, readBody(t, cached))

	// Idempotent re-fetch.
	resp, err = fx.fetch(t, http.MethodGet, url)
	require.NoError(t, err)
	assert.Equal(t, "body of "+url, readBody(t, resp))
	assert.Equal(t, 1, fx.network.calls[url])
}

func TestMonotonicGrowth(t *testing.T) {
	manifest := []string{"index.html", "sonic3air_web.js", "sonic3air_web.wasm"}
	fx := newFixture(t, manifest)
	require.NoError(t, fx.install(t))

	const k = 4
	for i := range k {
		url := fmt.Sprintf("%sdata/chunk%d.bin", origin, i)
		_, err := fx.fetch(t, http.MethodGet, url)
		require.NoError(t, err)
		// Repeats and manifest hits add nothing.
		_, err = fx.fetch(t, http.MethodGet, url)
		require.NoError(t, err)
		_, err = fx.fetch(t, http.MethodGet, origin+"index.html")
		require.NoError(t, err)
	}

	assert.Len(t, fx.keys(t), len(manifest)+k)
}

func TestFetchMissNetworkFailure(t *testing.T) {
	fx := newFixture(t, nil, "offline.png")

	_, err := fx.fetch(t, http.MethodGet, origin+"offline.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchMissNetwork)
	assert.Empty(t, fx.keys(t))
}

func TestFetchNotCacheableStillResponds(t *testing.T) {
	fx := newFixture(t, nil)

	resp, err := fx.fetch(t, http.MethodPost, origin+"api/score")
	require.NoError(t, err)
	assert.Equal(t, "body of "+origin+"api/score", readBody(t, resp))
	assert.Empty(t, fx.keys(t))
}

func TestFetchCorruptEntryRefetches(t *testing.T) {
	ctx := context.Background()
	scope, err := cachestore.NewScope(origin)
	require.NoError(t, err)
	cfg, err := NewConfig(DefaultCacheName, []string{"index.html"})
	require.NoError(t, err)
	disk, err := diskstore.New(t.TempDir())
	require.NoError(t, err)

	network := newCountingFetcher()
	storage := cachestore.New(disk, network, cachestore.WithScope(scope))
	fx := &fixture{worker: New(cfg, storage, network), storage: storage, network: network}
	require.NoError(t, fx.install(t))

	// Damage the stored body while leaving its checksum alone.
	url := origin + "index.html"
	p, ok, err := disk.EntryPath(DefaultCacheName, "GET "+url)
	require.NoError(t, err)
	require.True(t, ok)
	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	var e cachestore.Entry
	require.NoError(t, json.Unmarshal(raw, &e))
	e.Body = []byte("tampered")
	raw, err = cachestore.EncodeEntry(&e)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, raw, 0o600))

	resp, err := fx.fetch(t, http.MethodGet, url)
	require.NoError(t, err)
	assert.Equal(t, "body of "+url, readBody(t, resp))
	assert.Equal(t, 2, network.calls[url])

	// The refetch replaced the damaged entry.
	resp, err = fx.fetch(t, http.MethodGet, url)
	require.NoError(t, err)
	assert.Equal(t, "body of "+url, readBody(t, resp))
	assert.Equal(t, 2, network.calls[url])

	_, err = disk.Get(ctx, DefaultCacheName, "GET "+url)
	assert.NoError(t, err)
}

// drainedFetcher hands back responses whose body was already read.
type drainedFetcher struct{}

func (drainedFetcher) Fetch(context.Context, *cachestore.Request) (*cachestore.Response, error) {
	resp := cachestore.NewResponse(http.StatusOK, nil, io.NopCloser(strings.NewReader("abc")))
	_, _ = resp.Body.Read(make([]byte, 1))
	return resp, nil
}

// brokenBody fails mid-read, as a dropped connection does.
type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
func (brokenBody) Close() error             { return nil }

type brokenBodyFetcher struct{}

func (brokenBodyFetcher) Fetch(context.Context, *cachestore.Request) (*cachestore.Response, error) {
	return cachestore.NewResponse(http.StatusOK, nil, brokenBody{}), nil
}

func TestFetchCloneFailure(t *testing.T) {
	tests := []struct {
		name        string
		network     cachestore.Fetcher
		wantErr     error
		wantNetwork bool
	}{
		{name: "body already used", network: drainedFetcher{}, wantErr: cachestore.ErrBodyUsed},
		{name: "body read fails", network: brokenBodyFetcher{}, wantErr: io.ErrUnexpectedEOF, wantNetwork: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfig(DefaultCacheName, nil)
			require.NoError(t, err)
			storage := cachestore.New(memstore.New(), tt.network)
			fx := &fixture{worker: New(cfg, storage, tt.network), storage: storage}

			_, err = fx.fetch(t, http.MethodGet, origin+"sonic3air_web.data")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantNetwork, errors.Is(err, ErrFetchMissNetwork))
			assert.Empty(t, fx.keys(t))
		})
	}
}

func TestFetchEvent(t *testing.T) {
	ev := NewFetchEvent(context.Background(), cachestore.NewRequest("", origin))
	_, err := ev.Result()
	assert.ErrorIs(t, err, ErrNotHandled)

	require.NoError(t, ev.RespondWith(func(context.Context) (*cachestore.Response, error) {
		return cachestore.NewResponse(http.StatusNoContent, nil, nil), nil
	}))
	assert.ErrorIs(t, ev.RespondWith(func(context.Context) (*cachestore.Response, error) {
		return nil, errors.New("second")
	}), ErrAlreadyResponded)

	resp, err := ev.Result()
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
}

func TestInstallEvent(t *testing.T) {
	ev := NewInstallEvent(context.Background())
	assert.NoError(t, ev.Wait())

	boom := errors.New("boom")
	ev = NewInstallEvent(context.Background())
	ev.WaitUntil(func(context.Context) error { return nil })
	ev.WaitUntil(func(context.Context) error { return boom })
	assert.ErrorIs(t, ev.Wait(), boom)
}

func TestConfig(t *testing.T) {
	_, err := NewConfig(" ", nil)
	assert.Error(t, err)
	_, err = NewConfig("v1", []string{"a", " "})
	assert.Error(t, err)

	src := []string{" index.html "}
	cfg, err := NewConfig("v1", src)
	require.NoError(t, err)
	src[0] = "changed"
	m := cfg.Manifest()
	assert.Equal(t, []string{"index.html"}, m)
	m[0] = "changed"
	assert.Equal(t, []string{"index.html"}, cfg.Manifest())

	def := DefaultConfig()
	assert.Equal(t, "sonic3air-v20210404", def.CacheName())
	assert.Equal(t, DefaultManifest, def.Manifest())
}
