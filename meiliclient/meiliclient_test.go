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

package meiliclient_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	meilipipeline "github.com/marcocot/go-meili-pipeline"
	"github.com/marcocot/go-meili-pipeline/meiliclient"
)

// newTestClient starts an httptest server standing in for Meilisearch and
// returns a client connected to it.
func newTestClient(t *testing.T, mux *http.ServeMux) *meiliclient.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client, err := meiliclient.New(srv.URL, "masterKey")
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func taskInfoBody(uid int64) string {
	body, _ := json.Marshal(map[string]any{
		"taskUid":    uid,
		"indexUid":   "movies",
		"status":     "enqueued",
		"type":       "documentAdditionOrUpdate",
		"enqueuedAt": "2024-01-01T00:00:00Z",
	})
	return string(body)
}

func TestNewValidation(t *testing.T) {
	_, err := meiliclient.New("", "")
	require.EqualError(t, err, "missing Meilisearch URL")
}

func TestClientIndexExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/indexes/movies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"uid":"movies","primaryKey":"id"}`)
	})
	mux.HandleFunc("/indexes/missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{
			"message":"Index `+"`missing`"+` not found.",
			"code":"index_not_found",
			"type":"invalid_request",
			"link":"https://docs.meilisearch.com/errors#index_not_found"
		}`)
	})
	client := newTestClient(t, mux)

	exists, err := client.IndexExists(context.Background(), "movies")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.IndexExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClientCreateIndex(t *testing.T) {
	var body []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/indexes", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		body, _ = io.ReadAll(r.Body)
		writeJSON(w, http.StatusAccepted, taskInfoBody(11))
	})
	client := newTestClient(t, mux)

	handle, err := client.CreateIndex(context.Background(), "movies", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(11), handle.UID)
	assert.JSONEq(t, `{"uid":"movies","primaryKey":"id"}`, string(body))
}

func TestIndexAddDocuments(t *testing.T) {
	var body []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/indexes/movies/documents", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		body, _ = io.ReadAll(r.Body)
		writeJSON(w, http.StatusAccepted, taskInfoBody(42))
	})
	client := newTestClient(t, mux)

	handle, err := client.Index("movies").AddDocuments(context.Background(), []meilipipeline.Record{
		{"id": 1, "title": "A"},
		{"id": 2, "title": "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), handle.UID)

	var docs []meilipipeline.Record
	require.NoError(t, json.Unmarshal(body, &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "A", docs[0]["title"])
}

func TestIndexUpdateSettings(t *testing.T) {
	var body []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/indexes/movies/settings", func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		writeJSON(w, http.StatusAccepted, taskInfoBody(7))
	})
	client := newTestClient(t, mux)

	handle, err := client.Index("movies").UpdateSettings(
		context.Background(),
		json.RawMessage(`{"filterableAttributes":["category","rating"]}`),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(7), handle.UID)
	assert.Contains(t, string(body), `"filterableAttributes"`)
	assert.Contains(t, string(body), `"category"`)
}

func TestIndexUpdateSettingsInvalidDocument(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	_, err := client.Index("movies").UpdateSettings(
		context.Background(),
		json.RawMessage(`{"filterableAttributes":`),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode index settings")
}

func TestClientWaitForTask(t *testing.T) {
	var polls int
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/9", func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := "processing"
		if polls > 1 {
			status = "succeeded"
		}
		writeJSON(w, http.StatusOK, `{
			"uid":9,"indexUid":"movies","status":"`+status+`",
			"type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-01T00:00:00Z"
		}`)
	})
	client := newTestClient(t, mux)

	outcome, err := client.WaitForTask(context.Background(), 9, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(9), outcome.UID)
	assert.Equal(t, meilipipeline.TaskSucceeded, outcome.Status)
	assert.Nil(t, outcome.Error)
	assert.GreaterOrEqual(t, polls, 2)
}

func TestClientWaitForTaskFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/10", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{
			"uid":10,"indexUid":"movies","status":"failed",
			"type":"settingsUpdate","enqueuedAt":"2024-01-01T00:00:00Z",
			"error":{
				"message":"invalid ranking rule",
				"code":"invalid_settings_ranking_rules",
				"type":"invalid_request",
				"link":"https://docs.meilisearch.com/errors#invalid_settings_ranking_rules"
			}
		}`)
	})
	client := newTestClient(t, mux)

	outcome, err := client.WaitForTask(context.Background(), 10, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, meilipipeline.TaskFailed, outcome.Status)
	require.NotNil(t, outcome.Error)
	assert.Equal(t, "invalid_settings_ranking_rules", outcome.Error.Code)
	assert.Equal(t, "invalid ranking rule", outcome.Error.Message)
	assert.NotEmpty(t, outcome.Error.Link)
}

func TestClientWaitForTaskTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/77", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{
			"uid":77,"indexUid":"movies","status":"enqueued",
			"type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-01T00:00:00Z"
		}`)
	})
	client := newTestClient(t, mux)

	_, err := client.WaitForTask(context.Background(), 77, 50*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed waiting for task 77")
}
