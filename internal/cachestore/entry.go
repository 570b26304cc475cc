// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is the persisted form of a cached response.
type Entry struct {
	// Key is the request identity, see Request.Key.
	Key    string      `json:"key"`
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body"`
	// Checksum is the hex xxhash64 of Body.
	Checksum string    `json:"checksum"`
	StoredAt time.Time `json:"stored_at"`
}

// NewEntry drains resp and returns the entry to store for req. The response
// body is closed.
func NewEntry(req *Request, resp *Response) (*Entry, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Entry{
		Key:      req.Key(),
		Method:   req.Method,
		URL:      req.URL,
		Status:   resp.Status,
		Header:   resp.Header.Clone(),
		Body:     data,
		Checksum: Checksum(data),
		StoredAt: time.Now().UTC(),
	}, nil
}

// Response builds a fresh, unread Response from the entry.
func (e *Entry) Response() *Response {
	return NewResponse(e.Status, e.Header.Clone(), io.NopCloser(bytes.NewReader(e.Body)))
}

// Size is the body length in bytes.
func (e *Entry) Size() int {
	return len(e.Body)
}

// Verify checks the body against the stored checksum.
func (e *Entry) Verify() error {
	if e.Checksum != Checksum(e.Body) {
		return fmt.Errorf("%w: %s", ErrCorrupt, e.Key)
	}
	return nil
}

// Checksum returns the hex xxhash64 of data.
func Checksum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// EncodeEntry serializes e for backends that store opaque blobs.
func EncodeEntry(e *Entry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return b, nil
}

// DecodeEntry is the inverse of EncodeEntry. The checksum is verified.
func DecodeEntry(b []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if err := e.Verify(); err != nil {
		return nil, err
	}
	return &e, nil
}

// EncodeKey hashes k with MD5 and returns the hex string. Backends use it to
// turn request identities into file and object names.
func EncodeKey(k string) string {
	h := md5.New()
	_, _ = h.Write([]byte(k))
	return hex.EncodeToString(h.Sum(nil))
}
