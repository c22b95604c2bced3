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

// Package promkit implements a concurrent, label-keyed metrics registry with
// pull-based HTTP exposition in the classic text format.
//
// The four basic metric types are Counter, Gauge, Histogram, and Summary.
// Each of them exists as a plain single-sample metric and as a Vec variant
// (CounterVec, GaugeVec, HistogramVec, SummaryVec) that bundles samples of the
// same name partitioned by label values. Metrics are registered with a
// Registry, which gathers their current state on demand. The companion
// exposer package serves the gathered state over HTTP.
//
// A minimal example:
//
//	reg := promkit.NewRegistry()
//	requests := promkit.NewCounterVec(promkit.CounterOpts{
//		Name: "http_requests_total",
//		Help: "Total number of HTTP requests by method.",
//	}, []string{"method"})
//	reg.MustRegister(requests)
//
//	requests.WithLabelValues("GET").Inc()
//
// All mutation methods on metrics are safe for concurrent use and do not
// block each other; the registry's Gather method may run concurrently with
// mutation and observes each sample's value atomically.
package promkit
