// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package host drives a worker through its lifecycle and routes HTTP
// requests to it as fetch events.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/apex/log"

	"github.com/staranto/assetcache/internal/cachestore"
	"github.com/staranto/assetcache/internal/worker"
)

// State is a worker lifecycle state.
type State int

const (
	Registered State = iota
	Installing
	Installed
	Activating
	Active
	Redundant
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	case Activating:
		return "activating"
	case Active:
		return "active"
	case Redundant:
		return "redundant"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Handler is what a host dispatches events to.
type Handler interface {
	HandleInstall(ev *worker.InstallEvent)
	HandleFetch(ev *worker.FetchEvent)
}

// Resolver turns an incoming request URI into the absolute URL used as the
// request identity.
type Resolver interface {
	Resolve(ref string) (string, error)
}

// Host owns one worker registration.
type Host struct {
	handler  Handler
	network  cachestore.Fetcher
	resolver Resolver

	mu    sync.RWMutex
	state State
}

// New registers handler. Requests are resolved with resolver, and network
// serves whatever the worker does not.
func New(handler Handler, network cachestore.Fetcher, resolver Resolver) *Host {
	return &Host{
		handler:  handler,
		network:  network,
		resolver: resolver,
		state:    Registered,
	}
}

// State returns the current lifecycle state.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Host) transition(from, to State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != from {
		return fmt.Errorf("cannot move worker to %s from %s", to, h.state)
	}
	log.Debugf("worker %s -> %s", h.state, to)
	h.state = to
	return nil
}

// Start installs and then activates the worker. If install fails the worker
// becomes Redundant and the install error is returned.
func (h *Host) Start(ctx context.Context) error {
	if err := h.transition(Registered, Installing); err != nil {
		return err
	}

	ev := worker.NewInstallEvent(ctx)
	h.handler.HandleInstall(ev)
	if err := ev.Wait(); err != nil {
		_ = h.transition(Installing, Redundant)
		return err
	}

	if err := h.transition(Installing, Installed); err != nil {
		return err
	}
	if err := h.transition(Installed, Activating); err != nil {
		return err
	}
	return h.transition(Activating, Active)
}

// Dispatch answers req. While the worker is Active the request goes to it as a
// fetch event; otherwise, or when the worker does not respond, it goes to the
// network directly.
func (h *Host) Dispatch(ctx context.Context, req *cachestore.Request) (*cachestore.Response, error) {
	if h.State() != Active {
		return h.network.Fetch(ctx, req)
	}

	ev := worker.NewFetchEvent(ctx, req)
	h.handler.HandleFetch(ev)
	resp, err := ev.Result()
	if errors.Is(err, worker.ErrNotHandled) {
		return h.network.Fetch(ctx, req)
	}
	return resp, err
}

// MaxRequestBody caps the request body ServeHTTP buffers for forwarding.
const MaxRequestBody = 32 << 20

// ServeHTTP turns r into a fetch event carrying its header and body, and
// writes the outcome. A request that cannot be resolved is answered with 400
// Bad Request; a failed dispatch with 502 Bad Gateway.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u, err := h.resolver.Resolve(strings.TrimPrefix(r.URL.RequestURI(), "/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := cachestore.NewRequest(r.Method, u)
	req.Header = r.Header.Clone()
	if r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBody))
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			http.Error(w, err.Error(), status)
			return
		}
		req.Body = body
	}

	resp, err := h.Dispatch(r.Context(), req)
	if err != nil {
		log.WithError(err).Errorf("%s %s", r.Method, u)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.WithError(err).Warnf("failed to write response for %s", u)
	}
}
