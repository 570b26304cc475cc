// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package memstore keeps cache buckets in process memory.
package memstore

import (
	"context"
	"sync"

	"github.com/staranto/assetcache/internal/cachestore"
)

// Store is a cachestore.Backend held in a map. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*cachestore.Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{buckets: map[string]map[string]*cachestore.Entry{}}
}

func (s *Store) CreateBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = map[string]*cachestore.Entry{}
	}
	return nil
}

func (s *Store) Buckets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) (*cachestore.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.buckets[bucket][key]
	if !ok {
		return nil, cachestore.ErrNotFound
	}
	return copyEntry(e), nil
}

// Put stores all entries under a single lock, so a batch is atomic.
func (s *Store) Put(ctx context.Context, bucket string, entries ...*cachestore.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = map[string]*cachestore.Entry{}
		s.buckets[bucket] = b
	}
	for _, e := range entries {
		b[e.Key] = copyEntry(e)
	}
	return nil
}

func (s *Store) Entries(ctx context.Context, bucket string) ([]*cachestore.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*cachestore.Entry, 0, len(s.buckets[bucket]))
	for _, e := range s.buckets[bucket] {
		entries = append(entries, copyEntry(e))
	}
	return entries, nil
}

func copyEntry(e *cachestore.Entry) *cachestore.Entry {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}
