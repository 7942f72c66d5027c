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
	"encoding/json"
	"errors"
	"time"
)

// ErrMalformedTask is returned when the indexing service responds to a
// submission with a task that carries no usable identifier. There is nothing
// to poll for such a task, so it indicates a protocol or client version
// mismatch and is never recorded-and-continued.
var ErrMalformedTask = errors.New("task has no identifier")

// Record is one document to index: an opaque mapping of field name to value.
// The pipeline does not enforce any schema.
type Record map[string]any

// TaskHandle identifies one asynchronous operation accepted by the indexing
// service. Client implementations must adapt their native response type to
// this shape, mapping conversion failure to ErrMalformedTask.
type TaskHandle struct {
	UID int64
}

// TaskStatus is the status reported for a task by the indexing service.
type TaskStatus string

const (
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// TaskError describes why a task failed.
type TaskError struct {
	Code    string
	Message string
	Link    string
}

// TaskOutcome is the terminal result of waiting on a task.
type TaskOutcome struct {
	UID    int64
	Status TaskStatus
	Error  *TaskError
}

// WaitErrorCode marks outcomes synthesized when waiting on a task itself
// failed (timeout, transport error), as opposed to the task reaching a
// terminal failed status.
const WaitErrorCode = "wait_error"

// WaitFailure returns a failed outcome for a task whose terminal status
// could not be determined. The original error text becomes the failure
// message.
func WaitFailure(uid int64, err error) TaskOutcome {
	return TaskOutcome{
		UID:    uid,
		Status: TaskFailed,
		Error: &TaskError{
			Code:    WaitErrorCode,
			Message: err.Error(),
		},
	}
}

// Client is the narrow surface of the indexing service used by the pipeline.
//
// WaitForTask blocks until the task reaches a terminal status or timeout
// elapses, rechecking every interval. It returns an error when the status
// could not be determined at all; a task that terminated with a failed
// status is reported through the outcome, not the error.
type Client interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name, primaryKey string) (TaskHandle, error)
	Index(name string) Index
	WaitForTask(ctx context.Context, uid int64, timeout, interval time.Duration) (TaskOutcome, error)
}

// Index is a reference to one index of the service.
type Index interface {
	AddDocuments(ctx context.Context, docs []Record) (TaskHandle, error)
	UpdateSettings(ctx context.Context, settings json.RawMessage) (TaskHandle, error)
}
