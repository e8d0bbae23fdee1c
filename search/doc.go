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


// Package search provides hybrid retrieval and ranking over notes.
//
// The Searcher fans out a query to two concurrent retrieval paths:
//   - Vector search using query embeddings and cosine similarity
//   - Lexical search using keyword and substring matching
//
// The two candidate sets are fused with adaptive per-candidate weighting
// and served through a bounded, expiring ResultCache. The Reranker refines
// a shortlist with exact-phrase, keyword-overlap, trigram, synonym, and
// recency signals, and assembles the grounding context for answer
// generation within a token budget.
//
// An unreachable embedding service degrades a query to lexical-only
// results; only both paths failing surfaces an error.
package search
