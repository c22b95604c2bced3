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

package promkit

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"

	dto "github.com/prometheus/client_model/go"
)

func TestRegisterSameCollectorTwice(t *testing.T) {
	reg := NewRegistry()
	counter := NewCounter(CounterOpts{Name: "test", Help: "test help"})

	if err := reg.Register(counter); err != nil {
		t.Fatal(err)
	}
	err := reg.Register(counter)
	var are AlreadyRegisteredError
	if !errors.As(err, &are) {
		t.Fatalf("Expected AlreadyRegisteredError, got %v.", err)
	}
	if are.ExistingCollector != counter {
		t.Error("Expected the existing collector in the error.")
	}
}

// A name keeps the kind and label dimensions of its first registration.
// Re-registering it differently fails and leaves prior state untouched.
func TestRegisterConflictingDefinition(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewCounter(CounterOpts{Name: "test", Help: "test help"}))

	if err := reg.Register(NewGauge(GaugeOpts{Name: "test", Help: "other help"})); err == nil {
		t.Error("Expected an error when re-registering a name with another help string, got none.")
	}
	if err := reg.Register(NewCounterVec(
		CounterOpts{Name: "test", Help: "test help"},
		[]string{"method"},
	)); err == nil {
		t.Error("Expected an error when re-registering a name with other dimensions, got none.")
	}

	// The original registration still gathers.
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 1 || families[0].GetName() != "test" {
		t.Fatalf("Expected exactly the original family, got %v.", families)
	}
}

func TestRegisterKindConflictAtGatherTime(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewCounter(CounterOpts{
		Name:        "test",
		Help:        "test help",
		ConstLabels: Labels{"instance": "a"},
	}))
	reg.MustRegister(NewGauge(GaugeOpts{
		Name:        "test",
		Help:        "test help",
		ConstLabels: Labels{"instance": "b"},
	}))

	if _, err := reg.Gather(); err == nil {
		t.Error("Expected a gathering error for mixed kinds under one name, got none.")
	}
}

func TestUnregister(t *testing.T) {
	reg := NewRegistry()
	counter := NewCounter(CounterOpts{Name: "test", Help: "test help"})
	reg.MustRegister(counter)

	if !reg.Unregister(counter) {
		t.Error("Expected Unregister to report success.")
	}
	if reg.Unregister(counter) {
		t.Error("Expected second Unregister to report failure.")
	}
	if err := reg.Register(counter); err != nil {
		t.Errorf("Expected re-registration after Unregister to succeed, got %v.", err)
	}
}

func TestGatherScrapeScenario(t *testing.T) {
	reg := NewRegistry()
	requests := NewCounterVec(
		CounterOpts{Name: "requests_total", Help: "Total requests."},
		[]string{"method"},
	)
	reg.MustRegister(requests)
	for i := 0; i < 3; i++ {
		requests.WithLabelValues("GET").Inc()
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			t.Fatal(err)
		}
	}
	out := buf.String()
	for _, want := range []string{
		"# HELP requests_total Total requests.",
		"# TYPE requests_total counter",
		`requests_total{method="GET"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Exposition missing %q:\n%s", want, out)
		}
	}
}

func TestGatherHistogramExposition(t *testing.T) {
	reg := NewRegistry()
	latency := NewHistogram(HistogramOpts{
		Name:    "latency",
		Help:    "test help",
		Buckets: []float64{0.1, 0.5, 1.0},
	})
	reg.MustRegister(latency)
	for _, v := range []float64{0.05, 0.3, 2.0} {
		latency.Observe(v)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			t.Fatal(err)
		}
	}
	out := buf.String()
	for _, want := range []string{
		"# TYPE latency histogram",
		`latency_bucket{le="0.1"} 1`,
		`latency_bucket{le="0.5"} 2`,
		`latency_bucket{le="1"} 2`,
		`latency_bucket{le="+Inf"} 3`,
		"latency_sum 2.35",
		"latency_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Exposition missing %q:\n%s", want, out)
		}
	}
}

func TestGatherSortsFamiliesAndMetrics(t *testing.T) {
	reg := NewRegistry()
	vec := NewGaugeVec(GaugeOpts{Name: "zz_test", Help: "test help"}, []string{"l"})
	vec.WithLabelValues("b").Set(2)
	vec.WithLabelValues("a").Set(1)
	reg.MustRegister(vec)
	reg.MustRegister(NewCounter(CounterOpts{Name: "aa_test", Help: "test help"}))

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 2 || families[0].GetName() != "aa_test" || families[1].GetName() != "zz_test" {
		t.Fatalf("Expected families sorted by name, got %v.", families)
	}
	metrics := families[1].GetMetric()
	if len(metrics) != 2 || metrics[0].GetLabel()[0].GetValue() != "a" {
		t.Fatalf("Expected metrics sorted by label value, got %v.", metrics)
	}
}

// Duplicate names across gatherers are concatenated, deduplication is the
// caller's responsibility.
func TestGatherersConcatenate(t *testing.T) {
	reg1 := NewRegistry()
	c1 := NewCounter(CounterOpts{Name: "test", Help: "test help", ConstLabels: Labels{"reg": "1"}})
	c1.Add(1)
	reg1.MustRegister(c1)

	reg2 := NewRegistry()
	c2 := NewCounter(CounterOpts{Name: "test", Help: "test help", ConstLabels: Labels{"reg": "2"}})
	c2.Add(2)
	reg2.MustRegister(c2)

	families, err := Gatherers{reg1, reg2}.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var total int
	for _, mf := range families {
		if mf.GetName() != "test" {
			t.Errorf("Unexpected family %q.", mf.GetName())
		}
		total += len(mf.GetMetric())
	}
	if total != 2 {
		t.Errorf("Expected 2 concatenated metrics, got %d.", total)
	}
}

func TestGatherersErrorAnnotation(t *testing.T) {
	failing := gathererFunc(func() ([]*dto.MetricFamily, error) {
		return nil, errors.New("boom")
	})
	ok := NewRegistry()

	_, err := Gatherers{ok, failing}.Gather()
	if err == nil {
		t.Fatal("Expected an error from the failing gatherer, got none.")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected the underlying error in %q.", err)
	}
}

type gathererFunc func() ([]*dto.MetricFamily, error)

func (f gathererFunc) Gather() ([]*dto.MetricFamily, error) { return f() }
