// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/staranto/assetcache/internal/cachestore"
	"github.com/staranto/assetcache/internal/filters"
	"github.com/staranto/assetcache/internal/meta"
	"github.com/staranto/assetcache/internal/output"
)

var (
	bucketColumns = []string{"name", "entries", "size"}
	entryColumns  = []string{"url", "status", "size", "checksum", "stored"}
)

// LsCommandAction lists the caches in the store or, with --cache, the entries
// of one cache.
func LsCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	s := SettingsFromCmd(cmd)
	if err := s.ValidateStore(); err != nil {
		return err
	}

	backend, closer, err := OpenBackend(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer(); err != nil {
			log.WithError(err).Warn("failed to close cache backend")
		}
	}()

	// No fetcher: ls never adds to a cache.
	storage := cachestore.New(backend, nil)
	names, err := storage.Names(ctx)
	if err != nil {
		return err
	}

	var rows []map[string]interface{}
	columns := bucketColumns
	if s.CacheName == "" {
		rows, err = bucketRows(ctx, backend, names)
	} else {
		if !slices.Contains(names, s.CacheName) {
			return fmt.Errorf("cache %s not found", s.CacheName)
		}
		columns = entryColumns
		var entries []*cachestore.Entry
		if entries, err = backend.Entries(ctx, s.CacheName); err == nil {
			rows = entryRows(entries, time.Now())
		}
	}
	if err != nil {
		return err
	}

	rows = filters.FilterRows(rows, cmd.String("filter"))

	return output.Spit(rows, columns, output.Options{
		Format: cmd.String("output"),
		Titles: cmd.Bool("titles"),
		Color:  cmd.Bool("color"),
		Sort:   cmd.String("sort"),
	}, cmd.Root().Writer)
}

func bucketRows(ctx context.Context, backend cachestore.Backend, names []string) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		entries, err := backend.Entries(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to list cache %s: %w", name, err)
		}
		var total int64
		for _, e := range entries {
			total += int64(e.Size())
		}
		rows = append(rows, map[string]interface{}{
			"name":    name,
			"entries": len(entries),
			"bytes":   total,
			"size":    humanize.Bytes(uint64(total)), //nolint:gosec
		})
	}
	return rows, nil
}

// entryRows flattens entries for output. "bytes" and "stored_at" keep the raw
// values for filtering and sorting; "size" and "stored" are for people.
func entryRows(entries []*cachestore.Entry, now time.Time) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		size := e.Size()
		rows = append(rows, map[string]interface{}{
			"key":       e.Key,
			"method":    e.Method,
			"url":       e.URL,
			"status":    e.Status,
			"header":    e.Header,
			"bytes":     size,
			"size":      humanize.Bytes(uint64(size)), //nolint:gosec
			"checksum":  e.Checksum,
			"stored_at": e.StoredAt.UTC().Format(time.RFC3339),
			"stored":    humanize.RelTime(e.StoredAt, now, "ago", "from now"),
		})
	}
	return rows
}

// LsCommandBuilder constructs the cli.Command for "ls".
func LsCommandBuilder(meta meta.Meta) *cli.Command {
	ns, path := "ls", meta.Config.Source
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "cache",
			Usage:   "list the entries of this cache instead of the caches",
			Sources: cli.EnvVars("ASSETCACHE_LS_CACHE"),
		},
	}
	flags = append(flags, NewOutputFlags(ns, path)...)
	flags = append(flags, NewStoreFlags(ns, path)...)

	return &cli.Command{
		Name:      "ls",
		Usage:     "list caches and cached entries",
		UsageText: `assetcache ls [--cache NAME] [options]`,
		Metadata: map[string]any{
			"meta": meta,
		},
		Flags:  flags,
		Action: LsCommandAction,
	}
}
