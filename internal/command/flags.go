// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"strings"

	apexlog "github.com/apex/log"
	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/staranto/assetcache/internal/config"
	"github.com/staranto/assetcache/internal/log"
	"github.com/staranto/assetcache/internal/worker"
)

// configSources returns the namespaced and global config file sources for
// key. With no config file there is nothing to chain.
func configSources(ns, key, path string) []cli.ValueSource {
	if path == "" {
		return nil
	}
	var srcs []cli.ValueSource
	if ns != "" {
		srcs = append(srcs, yaml.YAML(ns+"."+key, altsrc.StringSourcer(path)))
	}
	return append(srcs, yaml.YAML(key, altsrc.StringSourcer(path)))
}

// chain builds a source chain of env vars followed by the config file keys.
func chain(ns, key, path string, envs ...string) cli.ValueSourceChain {
	var srcs []cli.ValueSource
	for _, e := range envs {
		srcs = append(srcs, cli.EnvVar(e))
	}
	srcs = append(srcs, configSources(ns, key, path)...)
	return cli.NewValueSourceChain(srcs...)
}

// NewLogLevelFlag sets the log level for the run. ASSETCACHE_LOG, when set,
// still wins.
func NewLogLevelFlag(ns, path string) cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "log level (debug, info, warn, error, fatal)",
		Sources: chain(ns, "log.level", path),
		Validator: func(value string) error {
			_, err := apexlog.ParseLevel(strings.ToLower(value))
			return err
		},
		Action: func(_ context.Context, _ *cli.Command, value string) error {
			log.SetLevel(value)
			return nil
		},
	}
}

// NewOutputFlags are the flags shared by commands that print tables.
func NewOutputFlags(ns, path string) []cli.Flag {
	return []cli.Flag{
		&cli.BoolWithInverseFlag{
			Name:    "color",
			Aliases: []string{"c"},
			Usage:   "enable colored text output",
			Sources: chain(ns, "color", path),
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Usage:   "comma-separated list of filters to apply to results",
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator)
			},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format",
			Sources: chain(ns, "output", path),
			Value:   "text",
			Validator: func(value string) error {
				return FlagValidators(value, OutputValidator)
			},
		},
		&cli.StringFlag{
			Name:    "sort",
			Aliases: []string{"s"},
			Usage:   "comma-separated list of attributes to sort the results by",
			Sources: chain(ns, "sort", path),
		},
		&cli.BoolWithInverseFlag{
			Name:    "titles",
			Aliases: []string{"t"},
			Usage:   "show titles with text output",
			Sources: chain(ns, "titles", path),
			Value:   false,
		},
	}
}

// NewStoreFlags select and configure the cache backend.
func NewStoreFlags(ns, path string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "store",
			Usage:   "cache backend: memory, disk, sqlite or s3",
			Sources: chain(ns, "store.kind", path, "ASSETCACHE_STORE"),
			Value:   config.StoreDisk,
			Validator: func(value string) error {
				return FlagValidators(value, StoreKindValidator)
			},
		},
		&cli.StringFlag{
			Name:    "store-dir",
			Usage:   "directory for the disk store",
			Sources: chain(ns, "store.dir", path, "ASSETCACHE_CACHE_DIR"),
		},
		&cli.StringFlag{
			Name:    "store-path",
			Usage:   "database file for the sqlite store",
			Sources: chain(ns, "store.path", path, "ASSETCACHE_STORE_PATH"),
		},
		&cli.StringFlag{
			Name:    "s3-bucket",
			Usage:   "S3 bucket for the s3 store",
			Sources: chain(ns, "store.bucket", path, "ASSETCACHE_S3_BUCKET"),
		},
		&cli.StringFlag{
			Name:    "s3-prefix",
			Usage:   "key prefix within the S3 bucket",
			Sources: chain(ns, "store.prefix", path, "ASSETCACHE_S3_PREFIX"),
			Value:   "assetcache",
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Usage:   "AWS region of the S3 bucket",
			Sources: chain(ns, "store.region", path, "AWS_REGION"),
		},
		&cli.StringFlag{
			Name:    "s3-profile",
			Usage:   "AWS shared config profile",
			Sources: chain(ns, "store.profile", path, "AWS_PROFILE"),
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "endpoint of an S3 compatible service",
			Sources: chain(ns, "store.endpoint", path, "ASSETCACHE_S3_ENDPOINT"),
			Validator: func(value string) error {
				return FlagValidators(value, URLValidator)
			},
		},
		&cli.BoolFlag{
			Name:    "s3-path-style",
			Usage:   "use path-style S3 addressing",
			Sources: chain(ns, "store.path_style", path),
		},
	}
}

// NewWorkerFlags configure the origin and the cache the worker fills.
func NewWorkerFlags(ns, path string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "origin",
			Usage:   "base URL the assets are fetched from",
			Sources: chain(ns, "origin", path, "ASSETCACHE_ORIGIN"),
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator, URLValidator)
			},
		},
		&cli.StringFlag{
			Name:    "cache",
			Usage:   "cache name",
			Sources: chain(ns, "cache.name", path, "ASSETCACHE_CACHE"),
			Value:   worker.DefaultCacheName,
		},
		&cli.StringSliceFlag{
			Name:    "manifest",
			Aliases: []string{"m"},
			Usage:   "assets to pre-fetch on install, relative to the origin",
			Sources: cli.EnvVars("ASSETCACHE_MANIFEST"),
		},
	}
}
