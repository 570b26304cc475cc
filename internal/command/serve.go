// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/assetcache/internal/meta"
)

const shutdownGrace = 5 * time.Second

// ServeCommandAction installs the worker and then serves the origin through
// it until interrupted.
func ServeCommandAction(ctx context.Context, cmd *cli.Command) error {
	m := GetMeta(cmd)
	log.Debugf("Executing action for %v", m.Args[1:])

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	srv := &http.Server{
		Addr:              rt.Settings.Listen,
		Handler:           rt.Host,
		ReadHeaderTimeout: 10 * time.Second, //nolint:mnd
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("scope", rt.Storage.Scope().Base()).Infof("serving on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ServeCommandBuilder constructs the cli.Command for "serve".
func ServeCommandBuilder(meta meta.Meta) *cli.Command {
	ns, path := "serve", meta.Config.Source
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "listen",
			Aliases: []string{"l"},
			Usage:   "address to serve on",
			Sources: chain(ns, "listen", path, "ASSETCACHE_LISTEN"),
			Value:   ":8080",
		},
	}
	flags = append(flags, NewWorkerFlags(ns, path)...)
	flags = append(flags, NewStoreFlags(ns, path)...)

	return &cli.Command{
		Name:      "serve",
		Usage:     "install the asset cache and serve the origin through it",
		UsageText: `assetcache serve --origin URL [options]`,
		Metadata: map[string]any{
			"meta": meta,
		},
		Flags:  flags,
		Action: ServeCommandAction,
	}
}
