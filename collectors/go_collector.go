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

// Package collectors provides ready-to-use collectors for common process and
// runtime telemetry. They are registered with a promkit.Registry like any
// user-defined collector.
package collectors

import (
	"runtime"
	"runtime/debug"
	"time"

	"github.com/promkit/promkit"
)

type goCollector struct {
	goroutinesDesc *promkit.Desc
	threadsDesc    *promkit.Desc
	gcDesc         *promkit.Desc
	goInfoDesc     *promkit.Desc
	memStats       []memStatDesc
}

type memStatDesc struct {
	desc    *promkit.Desc
	eval    func(*runtime.MemStats) float64
	valType promkit.ValueType
}

// NewGoCollector returns a collector that exports metrics about the current Go
// process, including goroutine and OS thread counts, GC pause statistics, and
// a selection of runtime.MemStats figures.
//
// Collecting runtime.MemStats may induce a stop-the-world pause, so the
// collector should be scraped at a moderate interval.
func NewGoCollector() promkit.Collector {
	msDesc := func(name, help string) *promkit.Desc {
		return promkit.NewDesc("go_memstats_"+name, help, nil, nil)
	}
	return &goCollector{
		goroutinesDesc: promkit.NewDesc(
			"go_goroutines",
			"Number of goroutines that currently exist.",
			nil, nil,
		),
		threadsDesc: promkit.NewDesc(
			"go_threads",
			"Number of OS threads created.",
			nil, nil,
		),
		gcDesc: promkit.NewDesc(
			"go_gc_duration_seconds",
			"A summary of the pause duration of garbage collection cycles.",
			nil, nil,
		),
		goInfoDesc: promkit.NewDesc(
			"go_info",
			"Information about the Go environment.",
			nil, promkit.Labels{"version": runtime.Version()},
		),
		memStats: []memStatDesc{
			{
				desc: msDesc("alloc_bytes", "Number of bytes allocated and still in use."),
				eval: func(ms *runtime.MemStats) float64 { return float64(ms.Alloc) },
				valType: promkit.GaugeValue,
			},
			{
				desc: msDesc("alloc_bytes_total", "Total number of bytes allocated, even if freed."),
				eval: func(ms *runtime.MemStats) float64 { return float64(ms.TotalAlloc) },
				valType: promkit.CounterValue,
			},
			{
				desc: msDesc("sys_bytes", "Number of bytes obtained from system."),
				eval: func(ms *runtime.MemStats) float64 { return float64(ms.Sys) },
				valType: promkit.GaugeValue,
			},
			{
				desc: msDesc("heap_alloc_bytes", "Number of heap bytes allocated and still in use."),
				eval: func(ms *runtime.MemStats) float64 { return float64(ms.HeapAlloc) },
				valType: promkit.GaugeValue,
			},
			{
				desc: msDesc("heap_objects", "Number of allocated objects."),
				eval: func(ms *runtime.MemStats) float64 { return float64(ms.HeapObjects) },
				valType: promkit.GaugeValue,
			},
			{
				desc: msDesc("next_gc_bytes", "Number of heap bytes when next garbage collection will take place."),
				eval: func(ms *runtime.MemStats) float64 { return float64(ms.NextGC) },
				valType: promkit.GaugeValue,
			},
			{
				desc: msDesc("last_gc_time_seconds", "Number of seconds since 1970 of last garbage collection."),
				eval: func(ms *runtime.MemStats) float64 { return float64(ms.LastGC) / 1e9 },
				valType: promkit.GaugeValue,
			},
		},
	}
}

// Describe implements promkit.Collector.
func (c *goCollector) Describe(ch chan<- *promkit.Desc) {
	ch <- c.goroutinesDesc
	ch <- c.threadsDesc
	ch <- c.gcDesc
	ch <- c.goInfoDesc
	for _, ms := range c.memStats {
		ch <- ms.desc
	}
}

// Collect implements promkit.Collector.
func (c *goCollector) Collect(ch chan<- promkit.Metric) {
	ch <- promkit.MustNewConstMetric(c.goroutinesDesc, promkit.GaugeValue, float64(runtime.NumGoroutine()))
	n, _ := runtime.ThreadCreateProfile(nil)
	ch <- promkit.MustNewConstMetric(c.threadsDesc, promkit.GaugeValue, float64(n))

	var stats debug.GCStats
	stats.PauseQuantiles = make([]time.Duration, 5)
	debug.ReadGCStats(&stats)

	quantiles := make(map[float64]float64)
	for idx, pq := range stats.PauseQuantiles[1:] {
		quantiles[float64(idx+1)/float64(len(stats.PauseQuantiles)-1)] = pq.Seconds()
	}
	quantiles[0.0] = stats.PauseQuantiles[0].Seconds()
	ch <- promkit.MustNewConstSummary(c.gcDesc, uint64(stats.NumGC), stats.PauseTotal.Seconds(), quantiles)

	ch <- promkit.MustNewConstMetric(c.goInfoDesc, promkit.GaugeValue, 1)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	for _, m := range c.memStats {
		ch <- promkit.MustNewConstMetric(m.desc, m.valType, m.eval(&ms))
	}
}
