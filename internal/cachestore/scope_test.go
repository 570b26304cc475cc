// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package cachestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScope(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{name: "adds trailing slash", base: "https://games.example.com/air", want: "https://games.example.com/air/"},
		{name: "drops query", base: "https://games.example.com/?v=1", want: "https://games.example.com/"},
		{name: "host only", base: "http://localhost:8080", want: "http://localhost:8080/"},
		{name: "relative rejected", base: "/air/", wantErr: true},
		{name: "ftp rejected", base: "ftp://games.example.com/", wantErr: true},
		{name: "missing host", base: "https:///air", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScope(tt.base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Base())
		})
	}
}

func TestScopeResolve(t *testing.T) {
	s, err := NewScope("https://games.example.com/air/")
	require.NoError(t, err)

	tests := []struct {
		ref  string
		want string
	}{
		{ref: "index.html", want: "https://games.example.com/air/index.html"},
		{ref: "/index.html", want: "https://games.example.com/air/index.html"},
		{ref: "data/music.bin?v=2", want: "https://games.example.com/air/data/music.bin?v=2"},
		{ref: "index.html#top", want: "https://games.example.com/air/index.html"},
		{ref: "//evil.example.com/x.js", want: "https://games.example.com/air/evil.example.com/x.js"},
		{ref: "https://cdn.example.com/x.js", want: "https://cdn.example.com/x.js"},
		{ref: "", want: "https://games.example.com/air/"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := s.Resolve(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	var zero Scope
	got, err := zero.Resolve("https://x/a#frag")
	require.NoError(t, err)
	assert.Equal(t, "https://x/a", got)
	assert.Equal(t, "", zero.Base())
}
