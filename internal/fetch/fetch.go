// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package fetch performs the outbound network requests for the worker and for
// cache population.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/apex/log"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/staranto/assetcache/internal/cachestore"
	"github.com/staranto/assetcache/internal/version"
)

// HTTP is a cachestore.Fetcher over an http.Client. It does not retry.
type HTTP struct {
	client    *http.Client
	userAgent string
}

// Option customizes an HTTP fetcher.
type Option func(*HTTP)

// WithClient replaces the default pooled client.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) { h.client = c }
}

// WithUserAgent sets the User-Agent header sent when the request carries
// none of its own.
func WithUserAgent(ua string) Option {
	return func(h *HTTP) { h.userAgent = ua }
}

// hopHeaders apply to a single connection and are not forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// New returns an HTTP fetcher using a cleanhttp pooled client.
func New(opts ...Option) *HTTP {
	h := &HTTP{
		client:    cleanhttp.DefaultPooledClient(),
		userAgent: "assetcache/" + version.Version,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch issues req with its header and body. Any HTTP status is a
// successful fetch; only transport failures are errors. The caller owns the
// returned body.
func (h *HTTP) Fetch(ctx context.Context, req *cachestore.Request) (*cachestore.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range req.Header {
		hreq.Header[k] = append([]string(nil), vs...)
	}
	for _, k := range hopHeaders {
		hreq.Header.Del(k)
	}
	// Left to the transport so bodies arrive decoded and cache as such.
	hreq.Header.Del("Accept-Encoding")
	if hreq.Header.Get("User-Agent") == "" && h.userAgent != "" {
		hreq.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	log.Debugf("fetched %s %s: %d", req.Method, req.URL, resp.StatusCode)

	return cachestore.NewResponse(resp.StatusCode, resp.Header.Clone(), resp.Body), nil
}
