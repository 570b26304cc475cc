// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/assetcache/internal/aws"
	"github.com/staranto/assetcache/internal/cachestore"
	"github.com/staranto/assetcache/internal/cachestore/diskstore"
	"github.com/staranto/assetcache/internal/cachestore/memstore"
	"github.com/staranto/assetcache/internal/cachestore/s3store"
	"github.com/staranto/assetcache/internal/cachestore/sqlitestore"
	"github.com/staranto/assetcache/internal/config"
	"github.com/staranto/assetcache/internal/fetch"
	"github.com/staranto/assetcache/internal/host"
	"github.com/staranto/assetcache/internal/meta"
	"github.com/staranto/assetcache/internal/worker"
)

// GetMeta returns the meta.Meta stored in the command's Metadata. If missing
// or of an unexpected type, it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	if cmd == nil || cmd.Metadata == nil {
		return meta.Meta{}
	}
	if m, ok := cmd.Metadata["meta"].(meta.Meta); ok {
		return m
	}
	return meta.Meta{}
}

// SettingsFromCmd merges the resolved flag values into a config.Settings.
// Flags a command does not define resolve to their zero value.
func SettingsFromCmd(cmd *cli.Command) config.Settings {
	s := config.Settings{
		Origin:      cmd.String("origin"),
		Listen:      cmd.String("listen"),
		CacheName:   cmd.String("cache"),
		Manifest:    cmd.StringSlice("manifest"),
		StoreKind:   cmd.String("store"),
		StoreDir:    cmd.String("store-dir"),
		StorePath:   cmd.String("store-path"),
		S3Bucket:    cmd.String("s3-bucket"),
		S3Prefix:    cmd.String("s3-prefix"),
		S3Region:    cmd.String("s3-region"),
		S3Profile:   cmd.String("s3-profile"),
		S3Endpoint:  cmd.String("s3-endpoint"),
		S3PathStyle: cmd.Bool("s3-path-style"),
	}

	// A list does not fit a flag value source, so the manifest comes from the
	// config file directly when not given on the command line.
	if len(s.Manifest) == 0 {
		s.Manifest, _ = config.GetStringSlice("cache.manifest", worker.DefaultManifest)
	}

	if s.StoreKind == config.StoreSQLite && s.StorePath == "" {
		if dir, ok := diskstore.Dir(); ok {
			s.StorePath = filepath.Join(dir, "assetcache.db")
		}
	}

	return s
}

// OpenBackend builds the cache backend s selects. The returned func releases
// it and is never nil.
func OpenBackend(ctx context.Context, s config.Settings) (cachestore.Backend, func() error, error) {
	noop := func() error { return nil }

	log.WithField("store", s.StoreKind).Debug("opening cache backend")

	switch s.StoreKind {
	case config.StoreMemory:
		return memstore.New(), noop, nil
	case config.StoreDisk:
		st, err := diskstore.New(s.StoreDir)
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	case config.StoreSQLite:
		st, err := sqlitestore.Open(ctx, s.StorePath)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case config.StoreS3:
		opts := []aws.Option{aws.WithProfile(s.S3Profile), aws.WithRegion(s.S3Region)}
		if s.S3Endpoint != "" {
			opts = append(opts, aws.WithEndpoint(s.S3Endpoint, s.S3PathStyle))
		}
		client, err := aws.NewS3(ctx, opts...)
		if err != nil {
			return nil, noop, err
		}
		st, err := s3store.New(client, s.S3Bucket, s.S3Prefix)
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store kind %q", s.StoreKind)
	}
}

// Runtime is the assembled worker and the pieces around it.
type Runtime struct {
	Settings config.Settings
	Storage  *cachestore.Storage
	Worker   *worker.Worker
	Host     *host.Host
	Close    func() error
}

// NewRuntime validates s and wires backend, storage, worker and host. A nil
// network uses fetch.New().
func NewRuntime(ctx context.Context, s config.Settings, network cachestore.Fetcher) (*Runtime, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	scope, err := cachestore.NewScope(s.Origin)
	if err != nil {
		return nil, err
	}

	wcfg, err := worker.NewConfig(s.CacheName, s.Manifest)
	if err != nil {
		return nil, err
	}

	if network == nil {
		network = fetch.New()
	}

	backend, closer, err := OpenBackend(ctx, s)
	if err != nil {
		return nil, err
	}

	storage := cachestore.New(backend, network, cachestore.WithScope(scope))
	w := worker.New(wcfg, storage, network)

	return &Runtime{
		Settings: s,
		Storage:  storage,
		Worker:   w,
		Host:     host.New(w, network, scope),
		Close:    closer,
	}, nil
}

// Start installs and activates the worker and logs the outcome.
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.Host.Start(ctx); err != nil {
		return fmt.Errorf("install of %s failed: %w", rt.Settings.CacheName, err)
	}
	log.WithField("cache", rt.Settings.CacheName).Infof("worker %s", rt.Host.State())
	return nil
}

