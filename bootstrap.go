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
	"fmt"
)

// EnsureIndex makes sure the named index exists before any submission.
//
// If the index is missing it is created, with primaryKey when non-empty, and
// the creation task is awaited inline through the reconciler: every
// subsequent operation requires the index, so this one check is not
// deferred. A creation that fails or times out is recorded in the
// reconciler's failed set for the end-of-run report, and the index reference
// is returned regardless.
//
// Errors from the exists and create calls themselves are returned.
func EnsureIndex(ctx context.Context, client Client, reconciler *TaskReconciler, name, primaryKey string) (Index, error) {
	exists, err := client.IndexExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check index %q: %w", name, err)
	}
	if !exists {
		handle, err := client.CreateIndex(ctx, name, primaryKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create index %q: %w", name, err)
		}
		reconciler.Await(ctx, handle)
	}
	return client.Index(name), nil
}
