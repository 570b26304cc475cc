// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package backendtest holds the behaviour every cachestore.Backend must show.
// Backend packages run it from their own tests.
package backendtest

import (
	"context"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/assetcache/internal/cachestore"
)

// NewEntry builds a checksummed entry for url with body.
func NewEntry(url, body string) *cachestore.Entry {
	req := cachestore.NewRequest(http.MethodGet, url)
	return &cachestore.Entry{
		Key:      req.Key(),
		Method:   req.Method,
		URL:      req.URL,
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": {"text/plain"}},
		Body:     []byte(body),
		Checksum: cachestore.Checksum([]byte(body)),
		StoredAt: time.Date(2021, 4, 4, 0, 0, 0, 0, time.UTC),
	}
}

// Exercise runs the shared backend checks against b, which must be empty.
func Exercise(t *testing.T, b cachestore.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		names, err := b.Buckets(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)

		_, err = b.Get(ctx, "sonic3air-v20210404", "GET https://x/index.html")
		assert.ErrorIs(t, err, cachestore.ErrNotFound)

		entries, err := b.Entries(ctx, "sonic3air-v20210404")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("create is idempotent", func(t *testing.T) {
		require.NoError(t, b.CreateBucket(ctx, "sonic3air-v20210404"))
		require.NoError(t, b.CreateBucket(ctx, "sonic3air-v20210404"))
		require.NoError(t, b.CreateBucket(ctx, "sonic3air-v20220101"))

		names, err := b.Buckets(ctx)
		require.NoError(t, err)
		sort.Strings(names)
		assert.Equal(t, []string{"sonic3air-v20210404", "sonic3air-v20220101"}, names)

		entries, err := b.Entries(ctx, "sonic3air-v20210404")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("put and get", func(t *testing.T) {
		a := NewEntry("https://x/index.html", "<html>")
		js := NewEntry("https://x/sonic3air_web.js", "js")
		empty := NewEntry("https://x/empty", "")
		require.NoError(t, b.Put(ctx, "sonic3air-v20210404", a, js, empty))

		got, err := b.Get(ctx, "sonic3air-v20210404", a.Key)
		require.NoError(t, err)
		assert.Equal(t, a.Key, got.Key)
		assert.Equal(t, a.URL, got.URL)
		assert.Equal(t, http.StatusOK, got.Status)
		assert.Equal(t, "<html>", string(got.Body))
		assert.Equal(t, "text/plain", got.Header.Get("Content-Type"))
		assert.True(t, a.StoredAt.Equal(got.StoredAt))
		require.NoError(t, got.Verify())

		got, err = b.Get(ctx, "sonic3air-v20210404", empty.Key)
		require.NoError(t, err)
		assert.Empty(t, got.Body)

		// Buckets are separate.
		_, err = b.Get(ctx, "sonic3air-v20220101", a.Key)
		assert.ErrorIs(t, err, cachestore.ErrNotFound)

		entries, err := b.Entries(ctx, "sonic3air-v20210404")
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})

	t.Run("put overwrites", func(t *testing.T) {
		v2 := NewEntry("https://x/index.html", "<html v2>")
		require.NoError(t, b.Put(ctx, "sonic3air-v20210404", v2))

		got, err := b.Get(ctx, "sonic3air-v20210404", v2.Key)
		require.NoError(t, err)
		assert.Equal(t, "<html v2>", string(got.Body))

		entries, err := b.Entries(ctx, "sonic3air-v20210404")
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})

	t.Run("returned entries are copies", func(t *testing.T) {
		key := cachestore.NewRequest(http.MethodGet, "https://x/sonic3air_web.js").Key()
		got, err := b.Get(ctx, "sonic3air-v20210404", key)
		require.NoError(t, err)
		got.Body[0] = 'X'

		again, err := b.Get(ctx, "sonic3air-v20210404", key)
		require.NoError(t, err)
		assert.Equal(t, "js", string(again.Body))
	})
}
