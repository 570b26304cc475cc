// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned by Match and Backend.Get on a miss.
	ErrNotFound = errors.New("cache entry not found")
	// ErrBodyUsed is returned when cloning or storing a response whose body was
	// already read.
	ErrBodyUsed = errors.New("response body already used")
	// ErrNotCacheable is returned by Put for requests or responses the cache
	// refuses to hold.
	ErrNotCacheable = errors.New("not cacheable")
	// ErrBadStatus is returned by AddAll when an asset answers with a non-2xx
	// status.
	ErrBadStatus = errors.New("bad response status")
	// ErrDuplicateRequest is returned by AddAll when two urls resolve to the
	// same request.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrCorrupt is returned when a stored body does not match its checksum.
	ErrCorrupt = errors.New("cache entry corrupt")
)

// Fetcher performs network requests.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Backend persists entries grouped into named buckets. Implementations must
// make each entry write atomic, and a Put with several entries that fails must
// leave none of its new keys behind.
type Backend interface {
	// CreateBucket makes sure bucket exists. It is a no-op if it does.
	CreateBucket(ctx context.Context, bucket string) error
	// Buckets lists bucket names.
	Buckets(ctx context.Context) ([]string, error)
	// Get returns ErrNotFound if the key is absent.
	Get(ctx context.Context, bucket, key string) (*Entry, error)
	// Put stores entries, overwriting existing keys.
	Put(ctx context.Context, bucket string, entries ...*Entry) error
	// Entries lists every entry in bucket.
	Entries(ctx context.Context, bucket string) ([]*Entry, error)
}

// Cache is one named bucket.
type Cache interface {
	AddAll(ctx context.Context, urls []string) error
	Match(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request, resp *Response) error
}

// CacheStorage opens named buckets.
type CacheStorage interface {
	Open(ctx context.Context, name string) (Cache, error)
}

// Storage is the CacheStorage implementation backed by a Backend.
type Storage struct {
	backend Backend
	fetcher Fetcher
	scope   Scope
}

// Option customizes a Storage.
type Option func(*Storage)

// WithScope resolves relative request URLs against scope.
func WithScope(scope Scope) Option {
	return func(s *Storage) { s.scope = scope }
}

// New returns a Storage. fetcher is used by AddAll to retrieve assets.
func New(backend Backend, fetcher Fetcher, opts ...Option) *Storage {
	s := &Storage{backend: backend, fetcher: fetcher}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the bucket called name, creating it if absent.
func (s *Storage) Open(ctx context.Context, name string) (Cache, error) {
	b, err := s.OpenBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// OpenBucket is Open returning the concrete type.
func (s *Storage) OpenBucket(ctx context.Context, name string) (*Bucket, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("cache name is required")
	}
	if err := s.backend.CreateBucket(ctx, name); err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", name, err)
	}
	return &Bucket{name: name, storage: s}, nil
}

// Names lists the buckets held by the backend, sorted.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	names, err := s.backend.Buckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Scope returns the scope requests are resolved against.
func (s *Storage) Scope() Scope {
	return s.scope
}

func (s *Storage) normalize(req *Request) (*Request, error) {
	u, err := s.scope.Resolve(req.URL)
	if err != nil {
		return nil, err
	}
	out := NewRequest(req.Method, u)
	out.Header, out.Body = req.Header, req.Body
	return out, nil
}

// Bucket is a named cache.
type Bucket struct {
	name    string
	storage *Storage
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// AddAll fetches every url and stores the results as one unit. If any fetch
// fails or answers with a non-2xx status nothing is stored. A failed write
// leaves no new key behind; on the s3 backend a key it overwrote is removed
// instead of restored.
func (b *Bucket) AddAll(ctx context.Context, urls []string) error {
	reqs := make([]*Request, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		req, err := b.storage.normalize(NewRequest(http.MethodGet, u))
		if err != nil {
			return err
		}
		if _, dup := seen[req.Key()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRequest, req.URL)
		}
		seen[req.Key()] = struct{}{}
		reqs = append(reqs, req)
	}

	entries := make([]*Entry, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := b.storage.fetcher.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", req.URL, err)
			}
			if !resp.OK() {
				_ = resp.Body.Close()
				return fmt.Errorf("failed to fetch %s: %w: %d", req.URL, ErrBadStatus, resp.Status)
			}
			entry, err := NewEntry(req, resp)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", req.URL, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}
	if err := b.storage.backend.Put(ctx, b.name, entries...); err != nil {
		return fmt.Errorf("failed to store assets in cache %s: %w", b.name, err)
	}
	log.Debugf("added %d assets to cache %s", len(entries), b.name)
	return nil
}

// Match returns a fresh copy of the stored response for req, or ErrNotFound.
func (b *Bucket) Match(ctx context.Context, req *Request) (*Response, error) {
	nreq, err := b.storage.normalize(req)
	if err != nil {
		return nil, err
	}
	entry, err := b.storage.backend.Get(ctx, b.name, nreq.Key())
	if err != nil {
		return nil, err
	}
	return entry.Response(), nil
}

// Put stores resp under req, replacing any existing entry. resp is consumed.
// Only GET requests are cached. Partial (206) and not-modified (304)
// responses are refused since neither carries the full asset.
func (b *Bucket) Put(ctx context.Context, req *Request, resp *Response) error {
	if req.Method != http.MethodGet {
		_ = resp.Body.Close()
		return fmt.Errorf("%w: method %s", ErrNotCacheable, req.Method)
	}
	switch resp.Status {
	case http.StatusPartialContent:
		_ = resp.Body.Close()
		return fmt.Errorf("%w: partial response", ErrNotCacheable)
	case http.StatusNotModified:
		_ = resp.Body.Close()
		return fmt.Errorf("%w: not modified", ErrNotCacheable)
	}
	if resp.BodyUsed() {
		return ErrBodyUsed
	}

	nreq, err := b.storage.normalize(req)
	if err != nil {
		return err
	}
	entry, err := NewEntry(nreq, resp)
	if err != nil {
		return err
	}
	if err := b.storage.backend.Put(ctx, b.name, entry); err != nil {
		return fmt.Errorf("failed to write %s to cache %s: %w", nreq.URL, b.name, err)
	}
	return nil
}

// Keys lists the request identities in the bucket, sorted.
func (b *Bucket) Keys(ctx context.Context) ([]string, error) {
	entries, err := b.Entries(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Entries lists the stored entries.
func (b *Bucket) Entries(ctx context.Context) ([]*Entry, error) {
	entries, err := b.storage.backend.Entries(ctx, b.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache %s: %w", b.name, err)
	}
	return entries, nil
}
