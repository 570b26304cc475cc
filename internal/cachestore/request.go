// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"net/http"
	"strings"
)

// Request describes an outgoing request. Only the method and URL take part in
// its identity; Header and Body are forwarded to the network.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Body is held in memory so the request can be sent more than once, as
	// happens when a worker declines a request and the host fetches it.
	Body []byte
}

// NewRequest returns a Request for method and url. An empty method means GET.
func NewRequest(method, url string) *Request {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	return &Request{Method: method, URL: url, Header: http.Header{}}
}

// Key is the identity under which the request is stored.
func (r *Request) Key() string {
	return r.Method + " " + r.URL
}

func (r *Request) String() string {
	return r.Key()
}
