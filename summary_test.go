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
	"math"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestSummaryObserve(t *testing.T) {
	sum := NewSummary(SummaryOpts{Name: "test", Help: "test help"})

	total := 0.0
	for i := 1; i <= 100; i++ {
		sum.Observe(float64(i))
		total += float64(i)
	}

	m := &dto.Metric{}
	if err := sum.Write(m); err != nil {
		t.Fatal(err)
	}
	s := m.GetSummary()
	if expected, got := uint64(100), s.GetSampleCount(); expected != got {
		t.Errorf("Expected sample count %d, got %d.", expected, got)
	}
	if expected, got := total, s.GetSampleSum(); math.Abs(expected-got) > 1e-9 {
		t.Errorf("Expected sample sum %f, got %f.", expected, got)
	}
	if expected, got := len(DefObjectives), len(s.GetQuantile()); expected != got {
		t.Fatalf("Expected %d quantiles, got %d.", expected, got)
	}
	// Quantiles are sorted by rank and rank estimation stays within the
	// configured absolute error.
	prevRank := -1.0
	for _, q := range s.GetQuantile() {
		rank := q.GetQuantile()
		if rank <= prevRank {
			t.Errorf("Quantile ranks not sorted: %f after %f.", rank, prevRank)
		}
		prevRank = rank
		want := rank * 100
		tolerance := DefObjectives[rank] * 100
		if got := q.GetValue(); math.Abs(got-want) > tolerance+1 {
			t.Errorf("Quantile %f: expected about %f, got %f.", rank, want, got)
		}
	}
}

func TestSummaryQuantileLabelNotAllowed(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("Expected a panic for a quantile label, got none.")
		}
	}()
	NewSummaryVec(SummaryOpts{Name: "test", Help: "test help"}, []string{"quantile"})
}

func TestSummaryVec(t *testing.T) {
	vec := NewSummaryVec(
		SummaryOpts{Name: "test", Help: "test help"},
		[]string{"handler"},
	)
	vec.WithLabelValues("a").Observe(1)
	vec.WithLabelValues("a").Observe(3)
	vec.With(Labels{"handler": "b"}).Observe(5)

	metric, err := vec.MetricVec.GetMetricWithLabelValues("a")
	if err != nil {
		t.Fatal(err)
	}
	m := &dto.Metric{}
	if err := metric.Write(m); err != nil {
		t.Fatal(err)
	}
	if expected, got := uint64(2), m.GetSummary().GetSampleCount(); expected != got {
		t.Errorf("Expected sample count %d, got %d.", expected, got)
	}
	if expected, got := 4.0, m.GetSummary().GetSampleSum(); expected != got {
		t.Errorf("Expected sample sum %f, got %f.", expected, got)
	}
}
