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

// Package meilipipeline provides a batching pipeline for indexing documents
// into Meilisearch.
//
// The pipeline buffers documents until a configured batch size is reached,
// submits each batch as one add-documents call, and reconciles the
// asynchronous tasks Meilisearch returns for it. Failed tasks are
// accumulated and reported at close rather than aborting the run, so a
// single failed indexing task never interrupts ingestion.
package meilipipeline
