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

package collectors

import (
	"os"

	"github.com/prometheus/procfs"

	"github.com/promkit/promkit"
)

// ProcessCollectorOpts defines the behavior of a process metrics collector
// created with NewProcessCollector.
type ProcessCollectorOpts struct {
	// PidFn returns the PID of the process the collector collects metrics
	// for. It is called upon each collection. By default, the PID of the
	// current process is used, as determined on construction time by
	// calling os.Getpid().
	PidFn func() (int, error)
	// If non-empty, each of the collected metrics is prefixed by the
	// provided string and an underscore ("_").
	Namespace string
	// If true, any error encountered during collection is reported as an
	// invalid metric (see promkit.NewInvalidMetric). Otherwise, errors are
	// ignored and the collected metrics will be incomplete. Possibly, no
	// metrics will be collected at all.
	ReportErrors bool
}

type processCollector struct {
	collectFn    func(chan<- promkit.Metric)
	pidFn        func() (int, error)
	reportErrors bool
	cpuTotal     *promkit.Desc
	openFDs      *promkit.Desc
	maxFDs       *promkit.Desc
	vsize        *promkit.Desc
	rss          *promkit.Desc
	startTime    *promkit.Desc
}

// NewProcessCollector returns a collector which exports the current state of
// process metrics including CPU, memory and file descriptor usage as well as
// the process start time for the given process id under the given namespace.
//
// The collector only works on operating systems with a procfs mount point. On
// other systems it collects nothing.
func NewProcessCollector(opts ProcessCollectorOpts) promkit.Collector {
	ns := ""
	if len(opts.Namespace) > 0 {
		ns = opts.Namespace + "_"
	}

	c := &processCollector{
		reportErrors: opts.ReportErrors,
		cpuTotal: promkit.NewDesc(
			ns+"process_cpu_seconds_total",
			"Total user and system CPU time spent in seconds.",
			nil, nil,
		),
		openFDs: promkit.NewDesc(
			ns+"process_open_fds",
			"Number of open file descriptors.",
			nil, nil,
		),
		maxFDs: promkit.NewDesc(
			ns+"process_max_fds",
			"Maximum number of open file descriptors.",
			nil, nil,
		),
		vsize: promkit.NewDesc(
			ns+"process_virtual_memory_bytes",
			"Virtual memory size in bytes.",
			nil, nil,
		),
		rss: promkit.NewDesc(
			ns+"process_resident_memory_bytes",
			"Resident memory size in bytes.",
			nil, nil,
		),
		startTime: promkit.NewDesc(
			ns+"process_start_time_seconds",
			"Start time of the process since unix epoch in seconds.",
			nil, nil,
		),
	}

	if opts.PidFn == nil {
		pid := os.Getpid()
		c.pidFn = func() (int, error) { return pid, nil }
	} else {
		c.pidFn = opts.PidFn
	}

	// Collect metrics only if a procfs mount point is available.
	if _, err := procfs.NewDefaultFS(); err == nil {
		c.collectFn = c.processCollect
	} else {
		c.collectFn = func(ch chan<- promkit.Metric) {
			c.reportError(ch, nil, err)
		}
	}

	return c
}

// Describe implements promkit.Collector.
func (c *processCollector) Describe(ch chan<- *promkit.Desc) {
	ch <- c.cpuTotal
	ch <- c.openFDs
	ch <- c.maxFDs
	ch <- c.vsize
	ch <- c.rss
	ch <- c.startTime
}

// Collect implements promkit.Collector.
func (c *processCollector) Collect(ch chan<- promkit.Metric) {
	c.collectFn(ch)
}

func (c *processCollector) processCollect(ch chan<- promkit.Metric) {
	pid, err := c.pidFn()
	if err != nil {
		c.reportError(ch, nil, err)
		return
	}

	p, err := procfs.NewProc(pid)
	if err != nil {
		c.reportError(ch, nil, err)
		return
	}

	if stat, err := p.Stat(); err == nil {
		ch <- promkit.MustNewConstMetric(c.cpuTotal, promkit.CounterValue, stat.CPUTime())
		ch <- promkit.MustNewConstMetric(c.vsize, promkit.GaugeValue, float64(stat.VirtualMemory()))
		ch <- promkit.MustNewConstMetric(c.rss, promkit.GaugeValue, float64(stat.ResidentMemory()))
		if startTime, err := stat.StartTime(); err == nil {
			ch <- promkit.MustNewConstMetric(c.startTime, promkit.GaugeValue, startTime)
		} else {
			c.reportError(ch, c.startTime, err)
		}
	} else {
		c.reportError(ch, nil, err)
	}

	if fds, err := p.FileDescriptorsLen(); err == nil {
		ch <- promkit.MustNewConstMetric(c.openFDs, promkit.GaugeValue, float64(fds))
	} else {
		c.reportError(ch, c.openFDs, err)
	}

	if limits, err := p.Limits(); err == nil {
		ch <- promkit.MustNewConstMetric(c.maxFDs, promkit.GaugeValue, float64(limits.OpenFiles))
	} else {
		c.reportError(ch, c.maxFDs, err)
	}
}

func (c *processCollector) reportError(ch chan<- promkit.Metric, desc *promkit.Desc, err error) {
	if !c.reportErrors {
		return
	}
	if desc == nil {
		desc = promkit.NewInvalidDesc(err)
	}
	ch <- promkit.NewInvalidMetric(desc, err)
}
