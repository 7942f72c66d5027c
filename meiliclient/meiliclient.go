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

// Package meiliclient adapts the official meilisearch-go client to the
// narrow client surface consumed by meilipipeline.
package meiliclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/meilisearch/meilisearch-go"

	meilipipeline "github.com/marcocot/go-meili-pipeline"
)

// Client implements meilipipeline.Client on top of meilisearch-go.
type Client struct {
	client *meilisearch.Client
}

// New returns a client connected to the Meilisearch instance at url.
// The API key may be empty for unprotected instances.
func New(url, apiKey string) (*Client, error) {
	if url == "" {
		return nil, errors.New("missing Meilisearch URL")
	}
	return &Client{
		client: meilisearch.NewClient(meilisearch.ClientConfig{
			Host:   url,
			APIKey: apiKey,
		}),
	}, nil
}

// IndexExists reports whether the named index exists. A not-found response
// is not an error, anything else is.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	if _, err := c.client.GetIndex(name); err != nil {
		var apiErr *meilisearch.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to get index %q: %w", name, err)
	}
	return true, nil
}

// CreateIndex enqueues creation of the named index and returns the handle
// of the creation task.
func (c *Client) CreateIndex(ctx context.Context, name, primaryKey string) (meilipipeline.TaskHandle, error) {
	info, err := c.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        name,
		PrimaryKey: primaryKey,
	})
	if err != nil {
		return meilipipeline.TaskHandle{}, fmt.Errorf("failed to create index %q: %w", name, err)
	}
	return taskHandle(info)
}

// Index returns a reference to the named index.
func (c *Client) Index(name string) meilipipeline.Index {
	return &Index{index: c.client.Index(name)}
}

// WaitForTask blocks until the task reaches a terminal status, rechecking
// every interval, or until timeout elapses. A timeout or transport failure
// is returned as an error; the task may still complete on the server.
func (c *Client) WaitForTask(ctx context.Context, uid int64, timeout, interval time.Duration) (meilipipeline.TaskOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	task, err := c.client.WaitForTask(uid, meilisearch.WaitParams{
		Context:  ctx,
		Interval: interval,
	})
	if err != nil {
		return meilipipeline.TaskOutcome{}, fmt.Errorf("failed waiting for task %d: %w", uid, err)
	}
	return taskOutcome(task), nil
}

// Index implements meilipipeline.Index for one Meilisearch index.
type Index struct {
	index *meilisearch.Index
}

// AddDocuments enqueues indexing of docs and returns the task handle.
func (i *Index) AddDocuments(ctx context.Context, docs []meilipipeline.Record) (meilipipeline.TaskHandle, error) {
	info, err := i.index.AddDocuments(docs)
	if err != nil {
		return meilipipeline.TaskHandle{}, fmt.Errorf("failed to add documents to index %q: %w", i.index.UID, err)
	}
	return taskHandle(info)
}

// UpdateSettings enqueues a settings update from a raw settings document.
func (i *Index) UpdateSettings(ctx context.Context, settings json.RawMessage) (meilipipeline.TaskHandle, error) {
	var native meilisearch.Settings
	if err := jsoniter.Unmarshal(settings, &native); err != nil {
		return meilipipeline.TaskHandle{}, fmt.Errorf("failed to decode index settings: %w", err)
	}
	info, err := i.index.UpdateSettings(&native)
	if err != nil {
		return meilipipeline.TaskHandle{}, fmt.Errorf("failed to update settings of index %q: %w", i.index.UID, err)
	}
	return taskHandle(info)
}

// taskHandle converts the native task payload to the pipeline handle shape.
// A payload without an identifier is unusable, there is nothing to poll, so
// the conversion maps it to ErrMalformedTask.
func taskHandle(info *meilisearch.TaskInfo) (meilipipeline.TaskHandle, error) {
	if info == nil {
		return meilipipeline.TaskHandle{}, meilipipeline.ErrMalformedTask
	}
	return meilipipeline.TaskHandle{UID: info.TaskUID}, nil
}

func taskOutcome(task *meilisearch.Task) meilipipeline.TaskOutcome {
	outcome := meilipipeline.TaskOutcome{
		UID:    task.UID,
		Status: meilipipeline.TaskStatus(task.Status),
	}
	if task.Error.Code != "" {
		outcome.Error = &meilipipeline.TaskError{
			Code:    task.Error.Code,
			Message: task.Error.Message,
			Link:    task.Error.Link,
		}
	}
	return outcome
}
