// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"

	"github.com/staranto/assetcache/internal/cachestore"
)

var (
	// ErrInstallPopulation wraps any failure to fill the cache during install.
	ErrInstallPopulation = errors.New("install population failed")
	// ErrFetchMissNetwork wraps a network failure after a cache miss.
	ErrFetchMissNetwork = errors.New("network fetch failed on cache miss")
)

// Worker is the cache-first asset worker. It handles the install and fetch
// events dispatched by a host.
type Worker struct {
	cfg     Config
	caches  cachestore.CacheStorage
	network cachestore.Fetcher
}

// New returns a Worker over caches, using network on cache misses.
func New(cfg Config, caches cachestore.CacheStorage, network cachestore.Fetcher) *Worker {
	return &Worker{cfg: cfg, caches: caches, network: network}
}

// Config returns the worker configuration.
func (w *Worker) Config() Config {
	return w.cfg
}

// HandleInstall fills the cache with every manifest asset. The install stays
// pending until the bulk add settles, and fails if any asset fails.
func (w *Worker) HandleInstall(ev *InstallEvent) {
	logger := log.WithField("cache", w.cfg.CacheName())
	logger.Infof("install: caching %d assets", len(w.cfg.manifest))

	ev.WaitUntil(func(ctx context.Context) error {
		cache, err := w.caches.Open(ctx, w.cfg.CacheName())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInstallPopulation, err)
		}
		if err := cache.AddAll(ctx, w.cfg.Manifest()); err != nil {
			return fmt.Errorf("%w: %w", ErrInstallPopulation, err)
		}
		return nil
	})
}

// HandleFetch answers from the cache when it can, otherwise from the network,
// storing a clone of the network response for next time.
func (w *Worker) HandleFetch(ev *FetchEvent) {
	req := ev.Request
	logger := log.WithField("cache", w.cfg.CacheName()).WithField("url", req.URL)

	_ = ev.RespondWith(func(ctx context.Context) (*cachestore.Response, error) {
		cache, err := w.caches.Open(ctx, w.cfg.CacheName())
		if err != nil {
			return nil, err
		}

		resp, err := cache.Match(ctx, req)
		if err == nil {
			logger.Info("fetch: cache hit")
			return resp, nil
		}
		switch {
		case errors.Is(err, cachestore.ErrCorrupt):
			// Refetched below; the Put replaces the damaged entry.
			logger.WithError(err).Warn("fetch: cache entry corrupt")
		case !errors.Is(err, cachestore.ErrNotFound):
			return nil, err
		}
		logger.Info("fetch: cache miss")

		resp, err = w.network.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFetchMissNetwork, req.URL, err)
		}

		dup, err := resp.Clone()
		if errors.Is(err, cachestore.ErrBodyUsed) {
			return nil, err
		}
		if err != nil {
			// The body is read off the wire here.
			return nil, fmt.Errorf("%w: %s: %w", ErrFetchMissNetwork, req.URL, err)
		}

		cache, err = w.caches.Open(ctx, w.cfg.CacheName())
		if err != nil {
			logger.WithError(err).Warn("fetch: unable to open cache for write")
			return resp, nil
		}
		if err := cache.Put(ctx, req, dup); err != nil {
			logger.WithError(err).Warn("fetch: not cached")
			return resp, nil
		}
		logger.Info("fetch: caching new resource")

		return resp, nil
	})
}
