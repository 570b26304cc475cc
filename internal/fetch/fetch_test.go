// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/assetcache/internal/cachestore"
)

func TestFetch(t *testing.T) {
	var gotUA, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA, gotMethod = r.UserAgent(), r.Method
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/wasm")
		_, _ = io.WriteString(w, "\x00asm")
	}))
	defer srv.Close()

	tests := []struct {
		name       string
		opts       []Option
		method     string
		path       string
		wantStatus int
		wantBody   string
		wantUA     string
	}{
		{
			name:       "ok",
			method:     "GET",
			path:       "/sonic3air_web.wasm",
			wantStatus: http.StatusOK,
			wantBody:   "\x00asm",
			wantUA:     "assetcache/dev",
		},
		{
			name:       "not found is not an error",
			method:     "GET",
			path:       "/missing",
			wantStatus: http.StatusNotFound,
			wantUA:     "assetcache/dev",
		},
		{
			name:       "custom client and agent",
			opts:       []Option{WithClient(srv.Client()), WithUserAgent("air/1.0")},
			method:     "POST",
			path:       "/score",
			wantStatus: http.StatusOK,
			wantBody:   "\x00asm",
			wantUA:     "air/1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := New(tt.opts...).Fetch(context.Background(), cachestore.NewRequest(tt.method, srv.URL+tt.path))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantUA, gotUA)
			assert.Equal(t, tt.method, gotMethod)
			assert.False(t, resp.BodyUsed())
			if tt.wantBody != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, tt.wantBody, string(body))
				assert.Equal(t, "application/wasm", resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New().Fetch(context.Background(), cachestore.NewRequest("GET", url))
	assert.ErrorContains(t, err, "failed to execute request")

	_, err = New().Fetch(context.Background(), cachestore.NewRequest("GET", "://bad"))
	assert.ErrorContains(t, err, "failed to create request")
}

func TestFetchForwardsRequest(t *testing.T) {
	var got *http.Request
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		method   string
		header   http.Header
		body     string
		wantUA   string
		wantBody string
	}{
		{
			name:     "post with cookie",
			method:   "POST",
			header:   http.Header{"Cookie": {"session=abc"}, "Content-Type": {"application/json"}},
			body:     `{"score":42}`,
			wantUA:   "assetcache/dev",
			wantBody: `{"score":42}`,
		},
		{
			name:   "range and client agent",
			method: "GET",
			header: http.Header{
				"Range":      {"bytes=0-9"},
				"User-Agent": {"Mozilla/5.0"},
				"Connection": {"keep-alive, X-Private"},
			},
			wantUA: "Mozilla/5.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cachestore.NewRequest(tt.method, srv.URL+"/sonic3air_web.data")
			req.Header = tt.header
			req.Body = []byte(tt.body)

			resp, err := New().Fetch(context.Background(), req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusPartialContent, resp.Status)
			assert.Equal(t, tt.method, got.Method)
			assert.Equal(t, tt.wantUA, got.UserAgent())
			assert.Equal(t, tt.wantBody, gotBody)
			for k := range tt.header {
				if k == "User-Agent" || k == "Connection" {
					continue
				}
				assert.Equal(t, tt.header.Get(k), got.Header.Get(k), k)
			}
			assert.NotContains(t, got.Header.Get("Connection"), "X-Private")
		})
	}
}
