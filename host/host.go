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

// Package host provides a narrow, handle-based facade over a registry and its
// exposer for embedding callers that cannot hold on to Go values directly,
// such as foreign runtimes or plugin layers. All state is scoped to a Binding
// created by Open; there are no package-level globals. Metrics are addressed
// by opaque Handles that are validated on every use, so a caller holding a
// stale handle after Close gets ErrInvalidHandle instead of undefined
// behavior.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/promkit/promkit"
	"github.com/promkit/promkit/exposer"
)

// Errors reported by Binding operations.
var (
	// ErrInvalidHandle is returned when a Handle does not refer to a live
	// metric, either because it was never issued by this Binding or because
	// the Binding has been closed since.
	ErrInvalidHandle = errors.New("invalid metric handle")
	// ErrKindConflict is returned when a metric name is re-registered with a
	// different kind, different label names, or different histogram
	// boundaries.
	ErrKindConflict = errors.New("metric registered with conflicting definition")
	// ErrInvalidArgument is returned for argument misuse on the mutation
	// paths, such as a negative counter increment.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidBoundaries is returned when histogram boundaries are empty or
	// not strictly ascending.
	ErrInvalidBoundaries = errors.New("histogram boundaries must be non-empty and strictly ascending")
	// ErrClosed is returned when an operation other than a mutation is
	// attempted on a closed Binding.
	ErrClosed = errors.New("binding is closed")
)

// Kind enumerates the metric kinds a Binding can register. The set is closed,
// a name keeps the kind of its first registration for the lifetime of the
// Binding.
type Kind int

const (
	KindCounter Kind = iota + 1
	KindGauge
	KindHistogram
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Handle identifies a registered metric within one Binding. The zero Handle
// is never valid. Handles embed a generation stamp so that handles issued
// before Close are rejected afterwards.
type Handle struct {
	index uint32
	gen   uint32
}

type series struct {
	name       string
	kind       Kind
	labelNames []string
	boundaries []float64

	counters   *promkit.CounterVec
	gauges     *promkit.GaugeVec
	histograms *promkit.HistogramVec
}

// Binding ties together one Registry and one Exposer and hands out checked
// handles for the metrics registered through it. All methods are safe for
// concurrent use.
type Binding struct {
	mtx      sync.RWMutex
	registry *promkit.Registry
	exposer  *exposer.Exposer
	series   []*series
	byName   map[string]Handle
	gen      uint32
	closed   bool
}

// Open creates a Registry, binds an Exposer to the configured endpoint, and
// attaches the Registry to it. It fails if the endpoint cannot be bound, see
// exposer.New for the error contract.
func Open(cfg exposer.Config, opts ...exposer.Option) (*Binding, error) {
	e, err := exposer.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	reg := promkit.NewRegistry()
	if err := e.RegisterCollectable(reg); err != nil {
		return nil, err
	}
	return &Binding{
		registry: reg,
		exposer:  e,
		byName:   make(map[string]Handle),
		gen:      1,
	}, nil
}

// Registry returns the Binding's registry, for attaching additional
// collectors such as the ones in package collectors.
func (b *Binding) Registry() *promkit.Registry {
	return b.registry
}

// URL returns the scrape URL served by the Binding's exposer.
func (b *Binding) URL() string {
	return b.exposer.URL()
}

// RegisterMetric registers name with the given kind and label names, and
// returns a Handle addressing it. Empty label names are dropped. Registering
// an already-registered name returns the existing Handle if kind, label
// names, and boundaries match exactly, and ErrKindConflict otherwise.
//
// boundaries is required for KindHistogram and must be strictly ascending; it
// must be nil for the other kinds.
func (b *Binding) RegisterMetric(name, help string, kind Kind, labelNames []string, boundaries []float64) (Handle, error) {
	labelNames = pruneEmpty(labelNames)

	switch kind {
	case KindCounter, KindGauge:
		if len(boundaries) > 0 {
			return Handle{}, fmt.Errorf("%w: boundaries given for %s %q", ErrInvalidArgument, kind, name)
		}
	case KindHistogram:
		if err := validateBoundaries(boundaries); err != nil {
			return Handle{}, err
		}
	default:
		return Handle{}, fmt.Errorf("%w: unknown metric kind %d", ErrInvalidArgument, int(kind))
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.closed {
		return Handle{}, ErrClosed
	}

	if h, ok := b.byName[name]; ok {
		s := b.series[h.index]
		if s.kind != kind || !stringsEqual(s.labelNames, labelNames) || !floatsEqual(s.boundaries, boundaries) {
			return Handle{}, fmt.Errorf("%w: %q is a %s", ErrKindConflict, name, s.kind)
		}
		return h, nil
	}

	s := &series{
		name:       name,
		kind:       kind,
		labelNames: labelNames,
		boundaries: boundaries,
	}
	var coll promkit.Collector
	switch kind {
	case KindCounter:
		s.counters = promkit.NewCounterVec(promkit.CounterOpts{Name: name, Help: help}, labelNames)
		coll = s.counters
	case KindGauge:
		s.gauges = promkit.NewGaugeVec(promkit.GaugeOpts{Name: name, Help: help}, labelNames)
		coll = s.gauges
	case KindHistogram:
		s.histograms = promkit.NewHistogramVec(promkit.HistogramOpts{Name: name, Help: help, Buckets: boundaries}, labelNames)
		coll = s.histograms
	}
	if err := b.registry.Register(coll); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrKindConflict, err)
	}

	h := Handle{index: uint32(len(b.series)), gen: b.gen}
	b.series = append(b.series, s)
	b.byName[name] = h
	return h, nil
}

// Increment adds delta to the counter series identified by h and labels,
// creating the labeled point on first use. It returns ErrInvalidArgument if
// delta is negative or h refers to a non-counter metric.
func (b *Binding) Increment(h Handle, labels promkit.Labels, delta float64) error {
	if delta < 0 {
		return fmt.Errorf("%w: negative counter increment %v", ErrInvalidArgument, delta)
	}
	s, err := b.lookup(h)
	if err != nil {
		return err
	}
	if s.counters == nil {
		return fmt.Errorf("%w: %q is a %s, not a counter", ErrInvalidArgument, s.name, s.kind)
	}
	c, err := s.counters.GetMetricWith(labels)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	c.Add(delta)
	return nil
}

// Set stores value in the gauge series identified by h and labels.
func (b *Binding) Set(h Handle, labels promkit.Labels, value float64) error {
	s, err := b.lookup(h)
	if err != nil {
		return err
	}
	if s.gauges == nil {
		return fmt.Errorf("%w: %q is a %s, not a gauge", ErrInvalidArgument, s.name, s.kind)
	}
	g, err := s.gauges.GetMetricWith(labels)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	g.Set(value)
	return nil
}

// Observe records value in the histogram series identified by h and labels.
func (b *Binding) Observe(h Handle, labels promkit.Labels, value float64) error {
	s, err := b.lookup(h)
	if err != nil {
		return err
	}
	if s.histograms == nil {
		return fmt.Errorf("%w: %q is a %s, not a histogram", ErrInvalidArgument, s.name, s.kind)
	}
	o, err := s.histograms.GetMetricWith(labels)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	o.Observe(value)
	return nil
}

// Close stops the exposer, letting in-flight scrapes drain, and invalidates
// all handles issued by this Binding. Close is idempotent.
func (b *Binding) Close(ctx context.Context) error {
	b.mtx.Lock()
	if b.closed {
		b.mtx.Unlock()
		return nil
	}
	b.closed = true
	b.gen++
	b.series = nil
	b.byName = nil
	b.mtx.Unlock()

	return b.exposer.Stop(ctx)
}

func (b *Binding) lookup(h Handle) (*series, error) {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	if b.closed || h.gen != b.gen || int(h.index) >= len(b.series) {
		return nil, ErrInvalidHandle
	}
	return b.series[h.index], nil
}

func validateBoundaries(boundaries []float64) error {
	if len(boundaries) == 0 {
		return ErrInvalidBoundaries
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i-1] >= boundaries[i] {
			return fmt.Errorf("%w: %v >= %v", ErrInvalidBoundaries, boundaries[i-1], boundaries[i])
		}
	}
	return nil
}

func pruneEmpty(names []string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
