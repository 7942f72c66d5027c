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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned from methods of closed Pipelines.
	ErrClosed = errors.New("pipeline closed")

	// ErrNotOpen is returned when documents are processed before Open.
	ErrNotOpen = errors.New("pipeline not open")

	errMissingIndex = errors.New("missing index name")
)

type state int8

const (
	stateUninitialized state = iota
	stateReady
	stateClosing
	stateClosed
)

// Pipeline buffers documents and indexes them into Meilisearch in batches.
//
// Documents are buffered until Config.BatchSize is reached, then submitted
// as one add-documents call. After each submission the pipeline reconciles
// every pending task: it blocks on each task with a timeout and records the
// ones that failed, without interrupting ingestion. Close flushes whatever
// remains, reconciles the rest, and reports the accumulated failures.
//
// The pipeline is synchronous: the caller of Process is blocked for the
// duration of a flush-and-reconcile cycle when the batch threshold is
// crossed, so the producer cannot get arbitrarily far ahead of the indexing
// service. A single mutex makes it safe for use from multiple goroutines,
// but flushes never overlap.
type Pipeline struct {
	config     Config
	client     Client
	index      Index
	reconciler *TaskReconciler
	metrics    metrics
	tracer     trace.Tracer

	mu     sync.Mutex
	state  state
	buffer []Record
	stats  Stats
}

// Stats holds per-run pipeline counters.
type Stats struct {
	// Added is the number of documents accepted by Process.
	Added int64
	// Flushed is the number of documents submitted to Meilisearch.
	Flushed int64
	// Batches is the number of add-documents calls made.
	Batches int64
	// TasksSucceeded is the number of reconciled tasks that succeeded.
	TasksSucceeded int64
	// TasksFailed is the number of reconciled tasks recorded as failed,
	// including synthesized wait failures.
	TasksFailed int64
}

// New returns a new Pipeline that indexes documents into Meilisearch
// through client. The returned pipeline must be opened before use.
func New(client Client, cfg Config) (*Pipeline, error) {
	if client == nil {
		return nil, errors.New("client is nil")
	}
	if cfg.Index == "" {
		return nil, errMissingIndex
	}
	cfg = defaultConfig(cfg)

	ms, err := newMetrics(cfg)
	if err != nil {
		return nil, err
	}
	reconciler, err := NewTaskReconciler(TaskReconcilerConfig{
		Client:   client,
		Logger:   cfg.Logger,
		Timeout:  cfg.TaskTimeout,
		Interval: cfg.TaskPollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating task reconciler: %w", err)
	}
	p := &Pipeline{
		config:     cfg,
		client:     client,
		reconciler: reconciler,
		metrics:    ms,
	}
	if cfg.TracerProvider != nil {
		p.tracer = cfg.TracerProvider.Tracer("github.com/marcocot/go-meili-pipeline")
	}
	return p, nil
}

// Open prepares the pipeline for indexing: it ensures the target index
// exists, creating it and waiting for the creation if needed, and issues the
// configured settings update. The settings task is not awaited here; it is
// reconciled together with the first flush, or at close if no documents
// ever arrive.
//
// Open must be called exactly once, before Process.
func (p *Pipeline) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateUninitialized:
	case stateReady:
		return errors.New("pipeline already open")
	default:
		return ErrClosed
	}

	p.config.Logger.Info("opening pipeline", zap.String("index", p.config.Index))
	index, err := EnsureIndex(ctx, p.client, p.reconciler, p.config.Index, p.config.PrimaryKey)
	if err != nil {
		return err
	}
	p.index = index

	if len(p.config.Settings) > 0 {
		p.config.Logger.Info("applying index settings", zap.String("index", p.config.Index))
		handle, err := p.index.UpdateSettings(ctx, p.config.Settings)
		if err != nil {
			return fmt.Errorf("failed to update settings of index %q: %w", p.config.Index, err)
		}
		p.reconciler.Track(handle)
	}

	p.state = stateReady
	return nil
}

// Process buffers doc for indexing and returns it unchanged, so downstream
// consumers in a processing pipeline still observe it. Reaching the
// configured batch size triggers an immediate flush-and-reconcile cycle,
// blocking the caller until it completes.
//
// The returned error is nil unless the flush itself could not submit the
// batch; task-level failures are deferred to the close report.
func (p *Pipeline) Process(ctx context.Context, doc Record) (Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateReady:
	case stateUninitialized:
		return doc, ErrNotOpen
	default:
		return doc, ErrClosed
	}

	p.buffer = append(p.buffer, doc)
	p.stats.Added++
	attrs := metric.WithAttributeSet(p.config.MetricAttributes)
	p.metrics.docsAdded.Add(context.Background(), 1, attrs)

	if len(p.buffer) >= p.config.BatchSize {
		if err := p.flush(ctx); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

// Close flushes any remaining documents, reconciles all pending tasks, and
// logs one report line per failed task. A run with accumulated failures
// completes without error unless Config.FailOnTaskFailure is set; callers
// needing hard-fail behavior otherwise inspect Failed after Close.
//
// Close must be called exactly once. The failed outcomes remain readable
// through Failed afterwards.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateUninitialized:
		return ErrNotOpen
	case stateClosing, stateClosed:
		return ErrClosed
	}
	p.state = stateClosing

	err := p.drain(ctx)

	failed := p.reconciler.Failed()
	for _, outcome := range failed {
		fields := []zap.Field{
			zap.Int64("task", outcome.UID),
			zap.String("status", string(outcome.Status)),
		}
		if outcome.Error != nil {
			fields = append(fields,
				zap.String("code", outcome.Error.Code),
				zap.String("message", outcome.Error.Message),
			)
			if outcome.Error.Link != "" {
				fields = append(fields, zap.String("link", outcome.Error.Link))
			}
		}
		p.config.Logger.Error("indexing task failed", fields...)
	}

	p.buffer = nil
	p.index = nil
	p.state = stateClosed
	if err != nil {
		return err
	}
	if p.config.FailOnTaskFailure && len(failed) > 0 {
		return fmt.Errorf("%d indexing tasks failed", len(failed))
	}
	return nil
}

// Failed returns the failed task outcomes accumulated so far, in submission
// order. It may be called after Close.
func (p *Pipeline) Failed() []TaskOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reconciler.Failed()
}

// Stats returns the current pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// drain flushes the remaining buffer. With an empty buffer it still
// reconciles any pending tasks, so a settings task issued at open is checked
// even when no documents ever flowed.
func (p *Pipeline) drain(ctx context.Context) error {
	if len(p.buffer) > 0 {
		return p.flush(ctx)
	}
	if p.reconciler.Pending() > 0 {
		p.recordReconciled(p.reconciler.ReconcileAll(ctx))
	}
	return nil
}

func (p *Pipeline) flush(ctx context.Context) error {
	batch := p.buffer
	p.buffer = nil

	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, "meilipipeline.flush", trace.WithAttributes(
			attribute.Int("documents", len(batch)),
		))
		defer span.End()
	}

	p.config.Logger.Info("sending batch",
		zap.Int("documents", len(batch)), zap.String("index", p.config.Index),
	)
	start := time.Now()
	if _, err := p.reconciler.Submit(ctx, p.index, batch); err != nil {
		p.config.Logger.Error("batch submission failed", zap.Error(err))
		if span != nil && span.IsRecording() {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch submission failed")
		}
		return err
	}
	attrs := metric.WithAttributeSet(p.config.MetricAttributes)
	p.metrics.batches.Add(context.Background(), 1, attrs)
	p.metrics.docsFlushed.Add(context.Background(), int64(len(batch)), attrs)
	p.stats.Batches++
	p.stats.Flushed += int64(len(batch))

	p.recordReconciled(p.reconciler.ReconcileAll(ctx))
	p.metrics.flushDuration.Record(context.Background(), time.Since(start).Seconds(), attrs)
	return nil
}

func (p *Pipeline) recordReconciled(succeeded, failed int) {
	attrs := metric.WithAttributeSet(p.config.MetricAttributes)
	if succeeded > 0 {
		p.metrics.tasksSucceeded.Add(context.Background(), int64(succeeded), attrs)
	}
	if failed > 0 {
		p.metrics.tasksFailed.Add(context.Background(), int64(failed), attrs)
	}
	p.stats.TasksSucceeded += int64(succeeded)
	p.stats.TasksFailed += int64(failed)
}
