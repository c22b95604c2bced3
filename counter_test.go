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
	"errors"
	"math"
	"sync"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestCounterAdd(t *testing.T) {
	counter := NewCounter(CounterOpts{
		Name:        "test",
		Help:        "test help",
		ConstLabels: Labels{"a": "1", "b": "2"},
	}).(*counter)
	counter.Inc()
	if expected, got := 0.0, math.Float64frombits(counter.valBits); expected != got {
		t.Errorf("Expected %f, got %f.", expected, got)
	}
	if expected, got := uint64(1), counter.valInt; expected != got {
		t.Errorf("Expected %d, got %d.", expected, got)
	}
	counter.Add(42)
	if expected, got := 0.0, math.Float64frombits(counter.valBits); expected != got {
		t.Errorf("Expected %f, got %f.", expected, got)
	}
	if expected, got := uint64(43), counter.valInt; expected != got {
		t.Errorf("Expected %d, got %d.", expected, got)
	}

	counter.Add(24.42)
	if expected, got := 24.42, math.Float64frombits(counter.valBits); expected != got {
		t.Errorf("Expected %f, got %f.", expected, got)
	}
	if expected, got := uint64(43), counter.valInt; expected != got {
		t.Errorf("Expected %d, got %d.", expected, got)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatal(err)
	}
	if expected, got := 67.42, m.GetCounter().GetValue(); expected != got {
		t.Errorf("Expected %f, got %f.", expected, got)
	}
}

func TestCounterAddPanicOnNegative(t *testing.T) {
	counter := NewCounter(CounterOpts{Name: "test", Help: "test help"})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Expected a panic on negative Add, got none.")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrCounterDecrease) {
			t.Fatalf("Expected panic with ErrCounterDecrease, got %v.", r)
		}
	}()
	counter.Add(-1)
}

// The final counter value must equal the sum of all applied deltas regardless
// of how concurrent increments interleave.
func TestCounterConcurrentAdd(t *testing.T) {
	counter := NewCounter(CounterOpts{Name: "test", Help: "test help"})

	const (
		goroutines = 10
		perG       = 1000
	)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perG; j++ {
				counter.Inc()
				counter.Add(0.5)
			}
		}()
	}
	close(start)
	wg.Wait()

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatal(err)
	}
	if expected, got := float64(goroutines*perG)*1.5, m.GetCounter().GetValue(); expected != got {
		t.Errorf("Expected %f, got %f.", expected, got)
	}
}

func TestCounterVecGetMetricWithLabelValues(t *testing.T) {
	vec := NewCounterVec(
		CounterOpts{
			Name: "test",
			Help: "test help",
		},
		[]string{"l1", "l2"},
	)
	vec.WithLabelValues("1", "2").Inc()

	if same := vec.WithLabelValues("1", "2"); same != vec.WithLabelValues("1", "2") {
		t.Error("Expected the same Counter for equal label values.")
	}
	if _, err := vec.GetMetricWithLabelValues("1"); err == nil {
		t.Error("Expected cardinality error for missing label value, got none.")
	}

	m := &dto.Metric{}
	if err := vec.WithLabelValues("1", "2").Write(m); err != nil {
		t.Fatal(err)
	}
	if expected, got := 1.0, m.GetCounter().GetValue(); expected != got {
		t.Errorf("Expected %f, got %f.", expected, got)
	}
}

func TestCounterVecWithIsOrderIndependent(t *testing.T) {
	vec := NewCounterVec(
		CounterOpts{Name: "test", Help: "test help"},
		[]string{"l1", "l2"},
	)
	vec.With(Labels{"l1": "a", "l2": "b"}).Add(2)
	vec.With(Labels{"l2": "b", "l1": "a"}).Inc()

	m := &dto.Metric{}
	if err := vec.With(Labels{"l1": "a", "l2": "b"}).Write(m); err != nil {
		t.Fatal(err)
	}
	if expected, got := 3.0, m.GetCounter().GetValue(); expected != got {
		t.Errorf("Expected %f, got %f.", expected, got)
	}
}

func TestCounterFunc(t *testing.T) {
	cf := NewCounterFunc(
		CounterOpts{Name: "test", Help: "test help"},
		func() float64 { return 3.1415 },
	)
	m := &dto.Metric{}
	if err := cf.Write(m); err != nil {
		t.Fatal(err)
	}
	if expected, got := 3.1415, m.GetCounter().GetValue(); expected != got {
		t.Errorf("Expected %f, got %f.", expected, got)
	}
}
