// Copyright 2026 The Promkit Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package exposer serves the contents of one or more promkit registries to
// pull-based collectors over HTTP.
//
// An Exposer binds its listening socket at construction time, so an
// unavailable endpoint surfaces immediately as an error wrapping ErrBind
// rather than later during the first scrape. Registries are attached with
// RegisterCollectable and are queried on every scrape. Stop drains in-flight
// scrape requests before closing the socket.
package exposer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	dto "github.com/prometheus/client_model/go"

	"github.com/promkit/promkit"
)

// Errors returned by this package. Use errors.Is to test for them, as they are
// usually wrapped with context.
var (
	// ErrConfig marks an invalid configuration (malformed listen address,
	// bad telemetry path, negative timeout).
	ErrConfig = errors.New("invalid exposer configuration")
	// ErrBind marks a failure to bind the listening socket, e.g. because
	// the address is already in use. Binding is not retried; callers
	// wanting retry-with-backoff must implement it themselves.
	ErrBind = errors.New("cannot bind exposer listener")
	// ErrStopped is returned when an operation is attempted on an Exposer
	// that has already been stopped.
	ErrStopped = errors.New("exposer already stopped")
)

// Exposer owns an HTTP listener serving the exposition of all attached
// Gatherers. It is created in the listening state by New and transitions to
// stopped exactly once via Stop. A stopped Exposer cannot be restarted.
type Exposer struct {
	cfg Config

	mtx       sync.Mutex
	gatherers promkit.Gatherers
	server    *http.Server
	listener  net.Listener
	stopped   bool

	// serveErr receives the terminal error of the serve loop.
	serveErr chan error

	logger *slog.Logger
}

// Option configures an Exposer beyond its Config.
type Option func(*Exposer)

// WithLogger sets the logger used for scrape-time errors. By default errors
// are not logged.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exposer) {
		e.logger = l
	}
}

// New constructs an Exposer and binds its listening socket. It returns an
// error wrapping ErrConfig if the configuration is invalid and an error
// wrapping ErrBind if the listen address is already in use or cannot be
// resolved. On success, the Exposer is serving scrapes before New returns.
func New(cfg Config, opts ...Option) (*Exposer, error) {
	def := DefaultConfig()
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = def.ListenAddress
	}
	if cfg.TelemetryPath == "" {
		cfg.TelemetryPath = def.TelemetryPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Exposer{
		cfg:      cfg,
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(e)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBind, cfg.ListenAddress, err)
	}
	e.listener = ln

	mux := http.NewServeMux()
	mux.Handle(cfg.TelemetryPath, HandlerFor(gathererFunc(e.gather), HandlerOpts{
		ErrorLog: e.logger,
	}))
	if cfg.TelemetryPath != "/" {
		mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set(contentTypeHeader, "text/html")
			fmt.Fprintf(w, `<html>
<head><title>Metrics Exposer</title></head>
<body>
<h1>Metrics Exposer</h1>
<p><a href=%q>Metrics</a></p>
</body>
</html>`, cfg.TelemetryPath)
		})
	}
	e.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		err := e.server.Serve(ln)
		if !errors.Is(err, http.ErrServerClosed) && e.logger != nil {
			e.logger.Error("exposer serve loop ended", "err", err)
		}
		e.serveErr <- err
	}()

	return e, nil
}

// RegisterCollectable attaches a Gatherer (typically a *promkit.Registry) to
// the set queried on every scrape. Multiple Gatherers may be attached; their
// families are concatenated in attachment order. It returns an error wrapping
// ErrStopped if the Exposer has been stopped.
func (e *Exposer) RegisterCollectable(g promkit.Gatherer) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.stopped {
		return fmt.Errorf("%w: cannot attach registry", ErrStopped)
	}
	e.gatherers = append(e.gatherers, g)
	return nil
}

// Address returns the address the listener is bound to. This is useful when
// the configured port was 0.
func (e *Exposer) Address() string {
	return e.listener.Addr().String()
}

// URL returns the full scrape URL of this Exposer.
func (e *Exposer) URL() string {
	return "http://" + e.Address() + e.cfg.TelemetryPath
}

// Stop closes the listening socket after draining in-flight scrape requests.
// The provided context bounds the drain; when it expires, remaining
// connections are closed forcefully. Stop returns an error wrapping
// ErrStopped when called more than once.
func (e *Exposer) Stop(ctx context.Context) error {
	e.mtx.Lock()
	if e.stopped {
		e.mtx.Unlock()
		return ErrStopped
	}
	e.stopped = true
	e.mtx.Unlock()

	err := e.server.Shutdown(ctx)
	<-e.serveErr
	if err != nil {
		return fmt.Errorf("stopping exposer: %w", err)
	}
	return nil
}

// gather snapshots the attached gatherer set and delegates to it. Holding the
// lock only for the snapshot keeps scrapes from blocking RegisterCollectable.
func (e *Exposer) gather() ([]*dto.MetricFamily, error) {
	e.mtx.Lock()
	gs := make(promkit.Gatherers, len(e.gatherers))
	copy(gs, e.gatherers)
	e.mtx.Unlock()
	return gs.Gather()
}

// gathererFunc turns a function into a promkit.Gatherer.
type gathererFunc func() ([]*dto.MetricFamily, error)

func (f gathererFunc) Gather() ([]*dto.MetricFamily, error) {
	return f()
}
