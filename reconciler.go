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
	"time"

	"go.uber.org/zap"
)

// TaskReconcilerConfig holds configuration for TaskReconciler.
type TaskReconcilerConfig struct {
	// Client holds the indexing service client used to wait on tasks.
	Client Client

	// Logger holds an optional logger for wait failures.
	//
	// If Logger is nil, logging will be disabled.
	Logger *zap.Logger

	// Timeout holds how long one task may take to reach a terminal status.
	Timeout time.Duration

	// Interval holds the poll interval between status checks.
	Interval time.Duration
}

// TaskReconciler tracks the tasks submitted to the indexing service and
// resolves them to terminal outcomes.
//
// Handles are tracked in submission order in a pending set. A reconciliation
// pass drains the whole pending set and waits on each handle in order:
// succeeded tasks are discarded, failed tasks are appended to a failed set
// that only grows for the lifetime of the reconciler and is read for the
// end-of-run report.
type TaskReconciler struct {
	config  TaskReconcilerConfig
	pending []TaskHandle
	failed  []TaskOutcome
}

// NewTaskReconciler returns a reconciler that waits on tasks with the
// configured timeout and poll interval.
func NewTaskReconciler(cfg TaskReconcilerConfig) (*TaskReconciler, error) {
	if cfg.Client == nil {
		return nil, errors.New("client is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 || cfg.Interval <= 0 {
		return nil, fmt.Errorf(
			"expected positive timeout and interval, got %s and %s",
			cfg.Timeout, cfg.Interval,
		)
	}
	return &TaskReconciler{config: cfg}, nil
}

// Track appends an externally submitted handle to the pending set, to be
// resolved by the next reconciliation pass.
func (r *TaskReconciler) Track(handle TaskHandle) {
	r.pending = append(r.pending, handle)
}

// Pending returns the number of tracked handles not yet reconciled.
func (r *TaskReconciler) Pending() int {
	return len(r.pending)
}

// Submit sends one non-empty batch of documents to index and tracks the
// returned handle. An error from the call itself is returned as-is: no task
// was created, so nothing is tracked or recorded.
func (r *TaskReconciler) Submit(ctx context.Context, index Index, batch []Record) (TaskHandle, error) {
	handle, err := index.AddDocuments(ctx, batch)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("failed to submit batch: %w", err)
	}
	r.pending = append(r.pending, handle)
	return handle, nil
}

// Await blocks until handle reaches a terminal status or the configured
// timeout elapses, and classifies the result. A failed task, or a wait that
// errored before producing a status, is appended to the failed set; only a
// succeeded task returns true.
func (r *TaskReconciler) Await(ctx context.Context, handle TaskHandle) bool {
	outcome, err := r.config.Client.WaitForTask(ctx, handle.UID, r.config.Timeout, r.config.Interval)
	if err != nil {
		r.config.Logger.Warn("waiting for task failed",
			zap.Int64("task", handle.UID), zap.Error(err),
		)
		r.failed = append(r.failed, WaitFailure(handle.UID, err))
		return false
	}
	if outcome.Status != TaskSucceeded {
		r.failed = append(r.failed, outcome)
		return false
	}
	return true
}

// ReconcileAll drains the pending set and awaits each handle in submission
// order, returning how many tasks succeeded and failed. Entries appended to
// the failed set keep submission order. Reconciling an empty pending set is
// a no-op.
func (r *TaskReconciler) ReconcileAll(ctx context.Context) (succeeded, failed int) {
	pending := r.pending
	r.pending = nil
	for _, handle := range pending {
		if r.Await(ctx, handle) {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Failed returns a copy of the accumulated failed outcomes, in the order
// their tasks were submitted.
func (r *TaskReconciler) Failed() []TaskOutcome {
	out := make([]TaskOutcome, len(r.failed))
	copy(out, r.failed)
	return out
}
