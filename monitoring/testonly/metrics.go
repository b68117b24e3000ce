// Copyright 2017 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testonly holds checks that any MetricFactory implementation
// should pass, and helpers for tests that look at metric values.
package testonly

import (
	"testing"

	"github.com/google/tilelog/monitoring"
)

// labelCases are the label sets every metric kind is checked with.
var labelCases = []struct {
	suffix     string
	labelNames []string
	labelVals  []string
}{
	{suffix: "0"},
	{suffix: "1", labelNames: []string{"key1"}, labelVals: []string{"val1"}},
	{suffix: "2", labelNames: []string{"key1", "key2"}, labelVals: []string{"val1", "val2"}},
}

// bogus returns vals with an extra label value.
func bogus(vals []string) []string {
	return append(append([]string(nil), vals...), "bogus")
}

// TestCounter runs a test on a Counter produced from the provided MetricFactory.
func TestCounter(t *testing.T, factory monitoring.MetricFactory) {
	for _, lc := range labelCases {
		name := "test_counter" + lc.suffix
		counter := factory.NewCounter(name, "Test only", lc.labelNames...)
		check := func(want float64, vals []string) {
			t.Helper()
			if got := counter.Value(vals...); got != want {
				t.Errorf("Counter(%s)[%v].Value()=%v; want %v", name, vals, got, want)
			}
		}
		check(0, lc.labelVals)
		counter.Inc(lc.labelVals...)
		check(1, lc.labelVals)
		counter.Add(2.5, lc.labelVals...)
		check(3.5, lc.labelVals)

		// Uses with the wrong number of labels are dropped.
		counter.Add(10.0, bogus(lc.labelVals)...)
		counter.Inc(bogus(lc.labelVals)...)
		check(0, bogus(lc.labelVals))
		check(3.5, lc.labelVals)
	}
}

// TestGauge runs a test on a Gauge produced from the provided MetricFactory.
func TestGauge(t *testing.T, factory monitoring.MetricFactory) {
	for _, lc := range labelCases {
		name := "test_gauge" + lc.suffix
		gauge := factory.NewGauge(name, "Test only", lc.labelNames...)
		check := func(want float64, vals []string) {
			t.Helper()
			if got := gauge.Value(vals...); got != want {
				t.Errorf("Gauge(%s)[%v].Value()=%v; want %v", name, vals, got, want)
			}
		}
		check(0, lc.labelVals)
		gauge.Inc(lc.labelVals...)
		check(1, lc.labelVals)
		gauge.Dec(lc.labelVals...)
		check(0, lc.labelVals)
		gauge.Add(2.5, lc.labelVals...)
		check(2.5, lc.labelVals)
		gauge.Set(42.0, lc.labelVals...)
		check(42, lc.labelVals)

		gauge.Add(10.0, bogus(lc.labelVals)...)
		gauge.Inc(bogus(lc.labelVals)...)
		gauge.Dec(bogus(lc.labelVals)...)
		gauge.Set(120.0, bogus(lc.labelVals)...)
		check(0, bogus(lc.labelVals))
		check(42, lc.labelVals)
	}
}

// TestHistogram runs a test on a Histogram produced from the provided MetricFactory.
func TestHistogram(t *testing.T, factory monitoring.MetricFactory) {
	for _, lc := range labelCases {
		name := "test_histogram" + lc.suffix
		histogram := factory.NewHistogram(name, "Test only", lc.labelNames...)
		check := func(wantCount uint64, wantSum float64, vals []string) {
			t.Helper()
			if gotCount, gotSum := histogram.Info(vals...); gotCount != wantCount || gotSum != wantSum {
				t.Errorf("Histogram(%s)[%v].Info()=%v,%v; want %v,%v", name, vals, gotCount, gotSum, wantCount, wantSum)
			}
		}
		check(0, 0, lc.labelVals)
		histogram.Observe(1.0, lc.labelVals...)
		histogram.Observe(2.0, lc.labelVals...)
		histogram.Observe(3.0, lc.labelVals...)
		check(3, 6, lc.labelVals)

		histogram.Observe(100.0, bogus(lc.labelVals)...)
		histogram.Observe(200.0, bogus(lc.labelVals)...)
		check(0, 0, bogus(lc.labelVals))
		check(3, 6, lc.labelVals)
	}
}
