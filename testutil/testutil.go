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

// Package testutil provides helpers to test code that uses promkit metrics.
//
// The most common use is comparing the state of a collector or registry
// against expected exposition text:
//
//	expected := `
//		# HELP requests_total Total requests.
//		# TYPE requests_total counter
//		requests_total{method="GET"} 3
//	`
//	if err := testutil.CollectAndCompare(counterVec, strings.NewReader(expected)); err != nil {
//		t.Error(err)
//	}
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/expfmt"

	dto "github.com/prometheus/client_model/go"

	"github.com/promkit/promkit"
)

// CollectAndCount registers c with a newly created pedantic registry, gathers,
// and returns the number of exported samples, filtered to metricNames if any
// are given. It panics on registration or gathering errors, it is meant for
// use inside tests only.
func CollectAndCount(c promkit.Collector, metricNames ...string) int {
	reg := promkit.NewRegistry()
	reg.MustRegister(c)
	result, err := GatherAndCount(reg, metricNames...)
	if err != nil {
		panic(err)
	}
	return result
}

// GatherAndCount gathers all metrics from the provided Gatherer and counts the
// exported samples, filtered to metricNames if any are given.
func GatherAndCount(g promkit.Gatherer, metricNames ...string) (int, error) {
	got, err := g.Gather()
	if err != nil {
		return 0, fmt.Errorf("gathering metrics failed: %w", err)
	}
	if metricNames != nil {
		got = filterMetrics(got, metricNames)
	}

	result := 0
	for _, mf := range got {
		result += len(mf.GetMetric())
	}
	return result, nil
}

// CollectAndCompare registers c with a newly created registry, gathers, and
// compares the result with the expected exposition text read from expected.
func CollectAndCompare(c promkit.Collector, expected io.Reader, metricNames ...string) error {
	reg := promkit.NewRegistry()
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("registering collector failed: %w", err)
	}
	return GatherAndCompare(reg, expected, metricNames...)
}

// GatherAndCompare gathers all metrics from the provided Gatherer and compares
// them against the expected exposition text read from expected. If any
// metricNames are provided, only metrics with those names are compared.
func GatherAndCompare(g promkit.Gatherer, expected io.Reader, metricNames ...string) error {
	got, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics failed: %w", err)
	}

	wanted, err := parseExpected(expected)
	if err != nil {
		return err
	}

	if metricNames != nil {
		got = filterMetrics(got, metricNames)
		wanted = filterMetrics(wanted, metricNames)
	}

	return compareMetricFamilies(got, wanted)
}

// ScrapeAndCompare fetches exposition text from the given URL via fetch and
// compares it against expected. It is a convenience for end-to-end exposer
// tests, the caller supplies the HTTP access so that this package does not
// depend on a client configuration.
func ScrapeAndCompare(body io.Reader, expected io.Reader, metricNames ...string) error {
	got, err := parseExpected(body)
	if err != nil {
		return fmt.Errorf("parsing scraped metrics failed: %w", err)
	}
	wanted, err := parseExpected(expected)
	if err != nil {
		return err
	}
	if metricNames != nil {
		got = filterMetrics(got, metricNames)
		wanted = filterMetrics(wanted, metricNames)
	}
	return compareMetricFamilies(got, wanted)
}

func parseExpected(r io.Reader) ([]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("parsing expected metrics failed: %w", err)
	}

	result := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		result = append(result, mf)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].GetName() < result[j].GetName()
	})
	return result, nil
}

// compareMetricFamilies encodes both sides back into exposition text and
// diffs the strings. Comparing text rather than the protobuf snapshots keeps
// encoder normalizations, like the implicit +Inf bucket, from showing up as
// spurious differences.
func compareMetricFamilies(got, expected []*dto.MetricFamily) error {
	gotText := formatFamilies(got)
	expectedText := formatFamilies(expected)
	if diff := cmp.Diff(expectedText, gotText); diff != "" {
		return fmt.Errorf("metric output does not match expectation (-want +got):\n%s", diff)
	}
	return nil
}

func formatFamilies(families []*dto.MetricFamily) string {
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Sprintf("encoding gathered metrics failed: %s", err)
		}
	}
	return buf.String()
}

func filterMetrics(metrics []*dto.MetricFamily, names []string) []*dto.MetricFamily {
	var filtered []*dto.MetricFamily
	for _, m := range metrics {
		for _, name := range names {
			if m.GetName() == name {
				filtered = append(filtered, m)
				break
			}
		}
	}
	return filtered
}
