// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/assetcache/internal/meta"
)

// InstallCommandAction runs only the install phase, which pre-warms a
// persistent store, and reports how many entries the cache holds.
func InstallCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	rt, err := NewRuntime(ctx, SettingsFromCmd(cmd), nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.WithError(err).Warn("failed to close cache backend")
		}
	}()

	if err := rt.Start(ctx); err != nil {
		return err
	}

	bucket, err := rt.Storage.OpenBucket(ctx, rt.Settings.CacheName)
	if err != nil {
		return err
	}
	keys, err := bucket.Keys(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "%s: %d assets cached\n", bucket.Name(), len(keys))
	return nil
}

// InstallCommandBuilder constructs the cli.Command for "install".
func InstallCommandBuilder(meta meta.Meta) *cli.Command {
	ns, path := "install", meta.Config.Source
	return &cli.Command{
		Name:      "install",
		Usage:     "pre-fetch the manifest into the cache and exit",
		UsageText: `assetcache install --origin URL [options]`,
		Metadata: map[string]any{
			"meta": meta,
		},
		Flags:  append(NewWorkerFlags(ns, path), NewStoreFlags(ns, path)...),
		Action: InstallCommandAction,
	}
}
