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

// Package pipelinetest provides an in-memory, scriptable implementation of
// the meilipipeline client surface for testing pipelines without a
// Meilisearch server.
package pipelinetest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	meilipipeline "github.com/marcocot/go-meili-pipeline"
)

// Client is a fake indexing service. Tasks get sequential uids starting at
// zero; every task succeeds unless scripted otherwise with FailTask or
// FailWait. The zero value is not usable, construct with NewClient.
type Client struct {
	mu        sync.Mutex
	nextUID   int64
	indexes   map[string]string
	created   []string
	batches   [][]meilipipeline.Record
	settings  []json.RawMessage
	waitCalls []int64

	outcomes  map[int64]meilipipeline.TaskOutcome
	waitErrs  map[int64]error
	addErr    error
	createErr error
	existsErr error
	malformed bool
}

// NewClient returns a fake client with the given indexes already existing.
func NewClient(existing ...string) *Client {
	c := &Client{
		indexes:  make(map[string]string),
		outcomes: make(map[int64]meilipipeline.TaskOutcome),
		waitErrs: make(map[int64]error),
	}
	for _, name := range existing {
		c.indexes[name] = ""
	}
	return c
}

// SetNextUID sets the uid assigned to the next task-producing call.
func (c *Client) SetNextUID(uid int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextUID = uid
}

// FailTask scripts the task with the given uid to terminate with a failed
// status carrying the given error code and message.
func (c *Client) FailTask(uid int64, code, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[uid] = meilipipeline.TaskOutcome{
		UID:    uid,
		Status: meilipipeline.TaskFailed,
		Error:  &meilipipeline.TaskError{Code: code, Message: message},
	}
}

// FailWait scripts waiting on the task with the given uid to fail with err,
// as a timed-out or transport-broken status poll would.
func (c *Client) FailWait(uid int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitErrs[uid] = err
}

// FailAddDocuments makes every subsequent add-documents call return err.
func (c *Client) FailAddDocuments(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addErr = err
}

// ReturnMalformedTask makes every subsequent add-documents call behave like
// a submission whose response carried no task identifier.
func (c *Client) ReturnMalformedTask() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.malformed = true
}

// FailCreateIndex makes CreateIndex return err.
func (c *Client) FailCreateIndex(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createErr = err
}

// FailIndexExists makes IndexExists return err.
func (c *Client) FailIndexExists(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.existsErr = err
}

// CreatedIndexes returns the names passed to CreateIndex, in order.
func (c *Client) CreatedIndexes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.created...)
}

// PrimaryKey returns the primary key the named index was created with.
func (c *Client) PrimaryKey(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes[name]
}

// Batches returns every batch submitted through AddDocuments, in order.
func (c *Client) Batches() [][]meilipipeline.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]meilipipeline.Record(nil), c.batches...)
}

// SettingsUpdates returns every settings document submitted, in order.
func (c *Client) SettingsUpdates() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]json.RawMessage(nil), c.settings...)
}

// WaitCalls returns the task uids waited on, in order.
func (c *Client) WaitCalls() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.waitCalls...)
}

// IndexExists implements meilipipeline.Client.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.existsErr != nil {
		return false, c.existsErr
	}
	_, ok := c.indexes[name]
	return ok, nil
}

// CreateIndex implements meilipipeline.Client.
func (c *Client) CreateIndex(ctx context.Context, name, primaryKey string) (meilipipeline.TaskHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return meilipipeline.TaskHandle{}, c.createErr
	}
	c.indexes[name] = primaryKey
	c.created = append(c.created, name)
	return c.newHandle(), nil
}

// Index implements meilipipeline.Client.
func (c *Client) Index(name string) meilipipeline.Index {
	return &Index{client: c, name: name}
}

// WaitForTask implements meilipipeline.Client.
func (c *Client) WaitForTask(ctx context.Context, uid int64, timeout, interval time.Duration) (meilipipeline.TaskOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitCalls = append(c.waitCalls, uid)
	if err, ok := c.waitErrs[uid]; ok {
		return meilipipeline.TaskOutcome{}, err
	}
	if outcome, ok := c.outcomes[uid]; ok {
		return outcome, nil
	}
	return meilipipeline.TaskOutcome{UID: uid, Status: meilipipeline.TaskSucceeded}, nil
}

func (c *Client) newHandle() meilipipeline.TaskHandle {
	handle := meilipipeline.TaskHandle{UID: c.nextUID}
	c.nextUID++
	return handle
}

// Index is the fake's index reference.
type Index struct {
	client *Client
	name   string
}

// AddDocuments implements meilipipeline.Index.
func (i *Index) AddDocuments(ctx context.Context, docs []meilipipeline.Record) (meilipipeline.TaskHandle, error) {
	c := i.client
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.malformed {
		return meilipipeline.TaskHandle{}, meilipipeline.ErrMalformedTask
	}
	if c.addErr != nil {
		return meilipipeline.TaskHandle{}, c.addErr
	}
	c.batches = append(c.batches, append([]meilipipeline.Record(nil), docs...))
	return c.newHandle(), nil
}

// UpdateSettings implements meilipipeline.Index.
func (i *Index) UpdateSettings(ctx context.Context, settings json.RawMessage) (meilipipeline.TaskHandle, error) {
	c := i.client
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = append(c.settings, settings)
	return c.newHandle(), nil
}
