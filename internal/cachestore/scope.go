// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"fmt"
	"net/url"
	"strings"
)

// Scope resolves relative asset references against the origin the worker
// controls. Manifest entries and intercepted request paths both go through
// Resolve so that they meet under the same key.
type Scope struct {
	base *url.URL
}

// NewScope parses base, which must be an absolute http(s) URL. A trailing
// slash is added to the path so that relative references land beneath it.
func NewScope(base string) (Scope, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return Scope{}, fmt.Errorf("invalid scope %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Scope{}, fmt.Errorf("invalid scope %q: scheme must be http or https", base)
	}
	if u.Host == "" {
		return Scope{}, fmt.Errorf("invalid scope %q: missing host", base)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return Scope{base: u}, nil
}

// Resolve returns ref as an absolute URL. Leading slashes are dropped first, so
// "/index.html" and "index.html" resolve to the same place beneath the base.
// Fragments never take part in identity.
func (s Scope) Resolve(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ref, err)
	}
	if s.base == nil || r.IsAbs() {
		r.Fragment = ""
		return r.String(), nil
	}

	// A network-path reference ("//host/x") stays inside the scope.
	if r.Host != "" {
		r.Path = r.Host + r.Path
		r.Host = ""
		r.User = nil
	}
	r.Path = strings.TrimLeft(r.Path, "/")
	r.RawPath = ""
	u := s.base.ResolveReference(r)
	u.Fragment = ""
	return u.String(), nil
}

// Base returns the scope URL, or "" for the zero Scope.
func (s Scope) Base() string {
	if s.base == nil {
		return ""
	}
	return s.base.String()
}
