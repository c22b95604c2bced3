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

package exposer

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"

	"github.com/promkit/promkit"
)

func newTestExposer(t *testing.T) *Exposer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Stop(ctx)
	})
	return e
}

func scrape(t *testing.T, url string) (int, string, string) {
	t.Helper()
	rsp, err := http.Get(url)
	require.NoError(t, err)
	defer rsp.Body.Close()
	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	return rsp.StatusCode, rsp.Header.Get("Content-Type"), string(body)
}

func TestExposerServesExposition(t *testing.T) {
	e := newTestExposer(t)

	reg := promkit.NewRegistry()
	requests := promkit.NewCounterVec(promkit.CounterOpts{
		Name: "requests_total",
		Help: "Total requests.",
	}, []string{"method"})
	reg.MustRegister(requests)
	require.NoError(t, e.RegisterCollectable(reg))

	for i := 0; i < 3; i++ {
		requests.WithLabelValues("GET").Inc()
	}

	status, contentType, body := scrape(t, e.URL())
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "text/plain; version=0.0.4; charset=utf-8", contentType)
	assert.Contains(t, body, `requests_total{method="GET"} 3`)
	assert.Contains(t, body, "# TYPE requests_total counter")
}

func TestExposerMergesMultipleRegistries(t *testing.T) {
	e := newTestExposer(t)

	for _, name := range []string{"first_total", "second_total"} {
		reg := promkit.NewRegistry()
		c := promkit.NewCounter(promkit.CounterOpts{Name: name, Help: "test help"})
		c.Inc()
		reg.MustRegister(c)
		require.NoError(t, e.RegisterCollectable(reg))
	}

	_, _, body := scrape(t, e.URL())
	assert.Contains(t, body, "first_total 1")
	assert.Contains(t, body, "second_total 1")
}

func TestExposerRootPageLinksToMetrics(t *testing.T) {
	e := newTestExposer(t)

	status, contentType, body := scrape(t, "http://"+e.Address()+"/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "text/html", contentType)
	assert.Contains(t, body, `href="/metrics"`)
}

func TestExposerBindErrorOnUsedAddress(t *testing.T) {
	e := newTestExposer(t)

	cfg := DefaultConfig()
	cfg.ListenAddress = e.Address()
	_, err := New(cfg)
	require.ErrorIs(t, err, ErrBind)
}

func TestExposerConfigError(t *testing.T) {
	_, err := New(Config{ListenAddress: "not-an-address", TelemetryPath: "/metrics"})
	require.ErrorIs(t, err, ErrConfig)
}

func TestExposerStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	e, err := New(cfg)
	require.NoError(t, err)
	addr := e.Address()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))

	// The socket is released and operations on the stopped exposer fail.
	_, err = http.Get("http://" + addr + "/metrics")
	assert.Error(t, err)
	assert.ErrorIs(t, e.Stop(ctx), ErrStopped)
	assert.ErrorIs(t, e.RegisterCollectable(promkit.NewRegistry()), ErrStopped)

	cfg.ListenAddress = addr
	e2, err := New(cfg)
	require.NoError(t, err)
	defer e2.Stop(context.Background())
}

func TestExposerGracefulDrain(t *testing.T) {
	e := newTestExposer(t)

	slow := slowGatherer{release: make(chan struct{}), started: make(chan struct{})}
	require.NoError(t, e.RegisterCollectable(slow))

	done := make(chan string, 1)
	go func() {
		_, _, body := scrape(t, e.URL())
		done <- body
	}()
	<-slow.gathering()

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- e.Stop(ctx)
	}()

	// Stop must wait for the in-flight scrape to complete.
	select {
	case <-stopped:
		t.Fatal("Stop returned while a scrape was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(slow.release)
	body := <-done
	assert.Contains(t, body, "slow_total")
	require.NoError(t, <-stopped)
}

type slowGatherer struct {
	release chan struct{}
	started chan struct{}
}

func (g slowGatherer) gathering() <-chan struct{} { return g.started }

func (g slowGatherer) Gather() ([]*dto.MetricFamily, error) {
	if g.started != nil {
		close(g.started)
	}
	<-g.release
	reg := promkit.NewRegistry()
	c := promkit.NewCounter(promkit.CounterOpts{Name: "slow_total", Help: "test help"})
	c.Inc()
	reg.MustRegister(c)
	return reg.Gather()
}
