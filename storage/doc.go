// Copyright 2025 Halcyonic Labs
//
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


// Package storage provides the storage abstraction layer for recallbox.
//
// This package defines repository interfaces that decouple storage
// implementation from retrieval and ranking logic, allowing different
// backends (BadgerDB, in-memory, etc.) to be used interchangeably.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - NoteRepository: full note lifecycle plus the three query-side roles
//   - VectorSearcher: tenant-scoped cosine-similarity retrieval
//   - LexicalSearcher: tenant-scoped keyword retrieval
//   - BackfillSource: discovery and persistence of missing embeddings
//
// The retrieval engine depends on the narrow role interfaces, never on the
// backend packages, so consumers can be tested against mock implementations.
//
// # Usage
//
// Create a repository instance:
//
//	repo, err := badger.NewNoteRepository(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// Use in tests with in-memory storage:
//
//	repo, backend, err := badger.NewMemoryRepository()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
