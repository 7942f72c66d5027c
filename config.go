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
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds configuration for Pipeline. It is fixed once the pipeline is
// constructed.
type Config struct {
	// Logger holds an optional Logger to use for logging flushes and the
	// end-of-run failure report.
	//
	// If Logger is nil, logging will be disabled.
	Logger *zap.Logger

	// Index holds the name of the target index. It is required.
	Index string

	// PrimaryKey optionally holds the primary key field to set when the
	// index has to be created.
	//
	// If PrimaryKey is empty, Meilisearch infers one.
	PrimaryKey string

	// Settings optionally holds an index settings document, applied once
	// when the pipeline opens. The resulting task is reconciled together
	// with the first batch flush, or at close if no documents ever arrive.
	Settings json.RawMessage

	// BatchSize holds the number of buffered documents that triggers a
	// flush.
	//
	// If BatchSize is less than or equal to zero, the default of 1000
	// will be used.
	BatchSize int

	// TaskTimeout holds how long to wait for one task to reach a terminal
	// status before giving up on it. Giving up records a failure, never a
	// silent drop.
	//
	// If TaskTimeout is zero, the default of 2 minutes will be used.
	TaskTimeout time.Duration

	// TaskPollInterval holds the interval between task status checks.
	//
	// If TaskPollInterval is zero, the default of 1 second will be used.
	TaskPollInterval time.Duration

	// FailOnTaskFailure makes Close return an error when any task failed
	// during the run, after the failures have been reported. By default a
	// run with failed tasks completes without error; callers inspect
	// Failed instead.
	FailOnTaskFailure bool

	// MeterProvider holds the OTel MeterProvider to be used to create and
	// record pipeline metrics.
	//
	// If unset, the global OTel MeterProvider will be used, if that is
	// unset, no metrics will be recorded.
	MeterProvider metric.MeterProvider

	// MetricAttributes holds any extra attributes to set in the recorded
	// metrics.
	MetricAttributes attribute.Set

	// TracerProvider holds an optional OTel TracerProvider. Each flush is
	// traced as a span.
	//
	// If TracerProvider is nil, flushes will not be traced.
	TracerProvider trace.TracerProvider
}

func defaultConfig(cfg Config) Config {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 2 * time.Minute
	}
	if cfg.TaskPollInterval <= 0 {
		cfg.TaskPollInterval = time.Second
	}
	return cfg
}
