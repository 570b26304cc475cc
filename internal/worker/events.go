// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/staranto/assetcache/internal/cachestore"
)

var (
	// ErrAlreadyResponded is returned by a second RespondWith on one event.
	ErrAlreadyResponded = errors.New("fetch event already responded to")
	// ErrNotHandled is reported by Result when no handler called RespondWith.
	ErrNotHandled = errors.New("fetch event not handled")
)

// InstallEvent is dispatched once while the worker is Installing. Handlers
// extend it with WaitUntil; the host calls Wait to learn the outcome.
type InstallEvent struct {
	ctx context.Context
	wg  sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewInstallEvent returns an event whose work runs under ctx.
func NewInstallEvent(ctx context.Context) *InstallEvent {
	return &InstallEvent{ctx: ctx}
}

// Context returns the event context.
func (e *InstallEvent) Context() context.Context {
	return e.ctx
}

// WaitUntil runs fn in the background and keeps the install pending until it
// returns. Must be called before Wait.
func (e *InstallEvent) WaitUntil(fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := fn(e.ctx); err != nil {
			e.mu.Lock()
			if e.err == nil {
				e.err = err
			}
			e.mu.Unlock()
		}
	}()
}

// Wait blocks until every WaitUntil function has returned and reports the
// first failure.
func (e *InstallEvent) Wait() error {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// FetchEvent is dispatched for each intercepted request. A handler resolves
// it at most once with RespondWith.
type FetchEvent struct {
	Request *cachestore.Request

	ctx       context.Context
	responded atomic.Bool
	done      chan struct{}
	resp      *cachestore.Response
	err       error
}

// NewFetchEvent returns an event for req whose work runs under ctx.
func NewFetchEvent(ctx context.Context, req *cachestore.Request) *FetchEvent {
	return &FetchEvent{
		Request: req,
		ctx:     ctx,
		done:    make(chan struct{}),
	}
}

// Context returns the event context.
func (e *FetchEvent) Context() context.Context {
	return e.ctx
}

// RespondWith resolves the event with the outcome of fn, which runs in the
// background. Only the first call takes effect.
func (e *FetchEvent) RespondWith(fn func(ctx context.Context) (*cachestore.Response, error)) error {
	if !e.responded.CompareAndSwap(false, true) {
		return ErrAlreadyResponded
	}
	go func() {
		defer close(e.done)
		e.resp, e.err = fn(e.ctx)
	}()
	return nil
}

// Responded reports whether RespondWith was called.
func (e *FetchEvent) Responded() bool {
	return e.responded.Load()
}

// Result blocks until the response settles. If RespondWith was never called
// it returns ErrNotHandled immediately.
func (e *FetchEvent) Result() (*cachestore.Response, error) {
	if !e.responded.Load() {
		return nil, ErrNotHandled
	}
	<-e.done
	return e.resp, e.err
}
