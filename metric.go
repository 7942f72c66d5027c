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

package meilipipeline

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	flushDuration  metric.Float64Histogram
	docsAdded      metric.Int64Counter
	docsFlushed    metric.Int64Counter
	batches        metric.Int64Counter
	tasksSucceeded metric.Int64Counter
	tasksFailed    metric.Int64Counter
}

type histogramMetric struct {
	name        string
	description string
	unit        string
	p           *metric.Float64Histogram
}

type counterMetric struct {
	name        string
	description string
	unit        string
	p           *metric.Int64Counter
}

func newMetrics(cfg Config) (metrics, error) {
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	meter := cfg.MeterProvider.Meter("github.com/marcocot/go-meili-pipeline")
	ms := metrics{}
	histograms := []histogramMetric{
		{
			name:        "meilisearch.flushed.latency",
			description: "The amount of time one flush-and-reconcile cycle took, in seconds.",
			unit:        "s",
			p:           &ms.flushDuration,
		},
	}
	for _, m := range histograms {
		if err := newFloat64Histogram(meter, m); err != nil {
			return ms, err
		}
	}

	counters := []counterMetric{
		{
			name:        "meilisearch.documents.count",
			description: "Number of documents received for indexing.",
			p:           &ms.docsAdded,
		},
		{
			name:        "meilisearch.documents.flushed",
			description: "Number of documents submitted to Meilisearch.",
			p:           &ms.docsFlushed,
		},
		{
			name:        "meilisearch.batches.count",
			description: "The number of add-documents batches submitted.",
			p:           &ms.batches,
		},
		{
			name:        "meilisearch.tasks.succeeded",
			description: "The number of tasks that reached the succeeded status.",
			p:           &ms.tasksSucceeded,
		},
		{
			name:        "meilisearch.tasks.failed",
			description: "The number of tasks recorded as failed, including wait failures.",
			p:           &ms.tasksFailed,
		},
	}
	for _, m := range counters {
		if err := newInt64Counter(meter, m); err != nil {
			return ms, err
		}
	}
	return ms, nil
}

func newInt64Counter(meter metric.Meter, c counterMetric) error {
	unit := c.unit
	if unit == "" {
		unit = "1"
	}
	m, err := meter.Int64Counter(
		c.name,
		metric.WithUnit(unit),
		metric.WithDescription(c.description),
	)
	if err != nil {
		return fmt.Errorf(
			"failed creating %s metric: %w", c.name, err,
		)
	}
	*c.p = m
	return nil
}

func newFloat64Histogram(meter metric.Meter, h histogramMetric) error {
	m, err := meter.Float64Histogram(
		h.name,
		metric.WithUnit(h.unit),
		metric.WithDescription(h.description),
	)
	if err != nil {
		return fmt.Errorf(
			"failed creating %s metric: %w", h.name, err,
		)
	}
	*h.p = m
	return nil
}
