// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"errors"
	"strings"
)

// DefaultCacheName is the bucket used by the web build.
const DefaultCacheName = "sonic3air-v20210404"

// DefaultManifest lists the assets the web build needs to start offline.
var DefaultManifest = []string{
	"index.html",
	"sonic3air_web.html",
	"sonic3air_web.js",
	"sonic3air_web.wasm",
	"sonic3air_web.data",
	"manifest.json",
	"favicon.ico",
	"icon.png",
}

// Config is the immutable cache name and asset manifest a Worker runs with.
type Config struct {
	cacheName string
	manifest  []string
}

// NewConfig validates and copies its arguments.
func NewConfig(cacheName string, manifest []string) (Config, error) {
	cacheName = strings.TrimSpace(cacheName)
	if cacheName == "" {
		return Config{}, errors.New("cache name is required")
	}
	m := make([]string, 0, len(manifest))
	for _, u := range manifest {
		if u = strings.TrimSpace(u); u == "" {
			return Config{}, errors.New("manifest entries must not be empty")
		}
		m = append(m, u)
	}
	return Config{cacheName: cacheName, manifest: m}, nil
}

// DefaultConfig returns the web build's cache name and manifest.
func DefaultConfig() Config {
	c, _ := NewConfig(DefaultCacheName, DefaultManifest)
	return c
}

// CacheName returns the bucket name.
func (c Config) CacheName() string {
	return c.cacheName
}

// Manifest returns a copy of the asset list.
func (c Config) Manifest() []string {
	return append([]string(nil), c.manifest...)
}
