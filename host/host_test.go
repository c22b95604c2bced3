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

package host

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promkit/promkit"
	"github.com/promkit/promkit/exposer"
)

func openTestBinding(t *testing.T) *Binding {
	t.Helper()
	cfg := exposer.DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	b, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Close(ctx)
	})
	return b
}

func scrapeBinding(t *testing.T, b *Binding) string {
	t.Helper()
	rsp, err := http.Get(b.URL())
	require.NoError(t, err)
	defer rsp.Body.Close()
	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRegisterMetricReturnsSameHandle(t *testing.T) {
	b := openTestBinding(t)

	h1, err := b.RegisterMetric("requests_total", "Total requests.", KindCounter, []string{"method"}, nil)
	require.NoError(t, err)
	h2, err := b.RegisterMetric("requests_total", "Total requests.", KindCounter, []string{"method"}, nil)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestRegisterMetricKindConflict(t *testing.T) {
	b := openTestBinding(t)

	_, err := b.RegisterMetric("test", "help", KindCounter, []string{"method"}, nil)
	require.NoError(t, err)

	_, err = b.RegisterMetric("test", "help", KindGauge, []string{"method"}, nil)
	assert.ErrorIs(t, err, ErrKindConflict)
	_, err = b.RegisterMetric("test", "help", KindCounter, []string{"shard"}, nil)
	assert.ErrorIs(t, err, ErrKindConflict)

	// The failed registrations left the original definition intact.
	h, err := b.RegisterMetric("test", "help", KindCounter, []string{"method"}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Increment(h, promkit.Labels{"method": "GET"}, 1))
}

func TestRegisterMetricBoundaryValidation(t *testing.T) {
	b := openTestBinding(t)

	_, err := b.RegisterMetric("latency", "help", KindHistogram, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidBoundaries)
	_, err = b.RegisterMetric("latency", "help", KindHistogram, nil, []float64{1, 0.5})
	assert.ErrorIs(t, err, ErrInvalidBoundaries)
	_, err = b.RegisterMetric("latency", "help", KindHistogram, nil, []float64{1, 1})
	assert.ErrorIs(t, err, ErrInvalidBoundaries)

	h, err := b.RegisterMetric("latency", "help", KindHistogram, nil, []float64{0.1, 0.5, 1})
	require.NoError(t, err)

	// Same name with different boundaries is a conflict.
	_, err = b.RegisterMetric("latency", "help", KindHistogram, nil, []float64{0.1, 0.5, 2})
	assert.ErrorIs(t, err, ErrKindConflict)

	_, err = b.RegisterMetric("counted", "help", KindCounter, nil, []float64{1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	require.NoError(t, b.Observe(h, nil, 0.3))
}

func TestIncrementRejectsNegativeDelta(t *testing.T) {
	b := openTestBinding(t)

	h, err := b.RegisterMetric("test", "help", KindCounter, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Increment(h, nil, -1), ErrInvalidArgument)

	// The failed call did not change the counter.
	require.NoError(t, b.Increment(h, nil, 2))
	assert.Contains(t, scrapeBinding(t, b), "test 2")
}

func TestMutateWrongKind(t *testing.T) {
	b := openTestBinding(t)

	h, err := b.RegisterMetric("test", "help", KindGauge, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Increment(h, nil, 1), ErrInvalidArgument)
	assert.ErrorIs(t, b.Observe(h, nil, 1), ErrInvalidArgument)
	require.NoError(t, b.Set(h, nil, 4))
}

func TestEmptyLabelNamesAreOmitted(t *testing.T) {
	b := openTestBinding(t)

	h, err := b.RegisterMetric("test", "help", KindCounter, []string{"", "method", ""}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Increment(h, promkit.Labels{"method": "GET"}, 1))
	assert.Contains(t, scrapeBinding(t, b), `test{method="GET"} 1`)
}

func TestScrapeScenario(t *testing.T) {
	b := openTestBinding(t)

	requests, err := b.RegisterMetric("requests_total", "Total requests.", KindCounter, []string{"method"}, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Increment(requests, promkit.Labels{"method": "GET"}, 1))
	}

	latency, err := b.RegisterMetric("latency", "Request latency.", KindHistogram, nil, []float64{0.1, 0.5, 1.0})
	require.NoError(t, err)
	for _, v := range []float64{0.05, 0.3, 2.0} {
		require.NoError(t, b.Observe(latency, nil, v))
	}

	temperature, err := b.RegisterMetric("temperature", "Current temperature.", KindGauge, nil, nil)
	require.NoError(t, err)
	require.NoError(t, b.Set(temperature, nil, 21.5))

	body := scrapeBinding(t, b)
	for _, want := range []string{
		`requests_total{method="GET"} 3`,
		`latency_bucket{le="0.1"} 1`,
		`latency_bucket{le="0.5"} 2`,
		`latency_bucket{le="1"} 2`,
		`latency_bucket{le="+Inf"} 3`,
		"latency_sum 2.35",
		"latency_count 3",
		"temperature 21.5",
	} {
		assert.Contains(t, body, want)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	b := openTestBinding(t)

	h, err := b.RegisterMetric("test", "help", KindCounter, []string{"shard"}, nil)
	require.NoError(t, err)

	const (
		goroutines = 8
		perG       = 500
	)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				if err := b.Increment(h, promkit.Labels{"shard": "a"}, 1); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Contains(t, scrapeBinding(t, b), `test{shard="a"} 4000`)
}

func TestCloseInvalidatesHandles(t *testing.T) {
	cfg := exposer.DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	b, err := Open(cfg)
	require.NoError(t, err)

	h, err := b.RegisterMetric("test", "help", KindCounter, nil, nil)
	require.NoError(t, err)
	require.NoError(t, b.Increment(h, nil, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Close(ctx))

	assert.ErrorIs(t, b.Increment(h, nil, 1), ErrInvalidHandle)
	assert.ErrorIs(t, b.Set(h, nil, 1), ErrInvalidHandle)
	assert.ErrorIs(t, b.Observe(h, nil, 1), ErrInvalidHandle)
	_, err = b.RegisterMetric("other", "help", KindCounter, nil, nil)
	assert.ErrorIs(t, err, ErrClosed)

	// Close is idempotent.
	require.NoError(t, b.Close(ctx))
}

func TestZeroHandleIsInvalid(t *testing.T) {
	b := openTestBinding(t)
	assert.ErrorIs(t, b.Increment(Handle{}, nil, 1), ErrInvalidHandle)
}
