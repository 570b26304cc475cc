// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// Response is a status, header set and single-read body. Use Clone before
// handing the same response to two consumers.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// NewResponse wraps body so that its consumption can be detected.
func NewResponse(status int, header http.Header, body io.ReadCloser) *Response {
	if header == nil {
		header = http.Header{}
	}
	if body == nil {
		body = io.NopCloser(bytes.NewReader(nil))
	}
	return &Response{
		Status: status,
		Header: header,
		Body:   &trackedBody{rc: body},
	}
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// BodyUsed reports whether any of the body has been read.
func (r *Response) BodyUsed() bool {
	tb, ok := r.Body.(*trackedBody)
	return ok && tb.used.Load()
}

// Clone returns an independently readable copy of r. The body of r is drained
// into memory and replaced, so both r and the clone can be read to the end.
// Cloning a response whose body was already read fails with ErrBodyUsed.
func (r *Response) Clone() (*Response, error) {
	if r.BodyUsed() {
		return nil, ErrBodyUsed
	}

	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	r.Body = &trackedBody{rc: io.NopCloser(bytes.NewReader(data))}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   &trackedBody{rc: io.NopCloser(bytes.NewReader(data))},
	}, nil
}

type trackedBody struct {
	rc   io.ReadCloser
	used atomic.Bool
}

func (b *trackedBody) Read(p []byte) (int, error) {
	b.used.Store(true)
	return b.rc.Read(p)
}

func (b *trackedBody) Close() error {
	return b.rc.Close()
}
