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


package search

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/halcyonic/recallbox/core"
)

const (
	// DefaultTopN is how many notes the re-ranker keeps from a shortlist.
	DefaultTopN = 5

	// DefaultTokenBudget bounds the assembled answer context.
	DefaultTokenBudget = 2000

	// minTruncationBudget is the smallest remaining budget worth filling
	// with a truncated note instead of stopping.
	minTruncationBudget = 50
)

// Reranker refines a candidate shortlist into the final top-N using lexical
// similarity features and recency decay, and assembles the grounding context
// for answer generation.
type Reranker struct {
	topN   int
	logger *slog.Logger
}

// RerankerOption configures a Reranker.
type RerankerOption func(*Reranker) error

// WithTopN sets how many notes Rerank returns.
func WithTopN(n int) RerankerOption {
	return func(r *Reranker) error {
		if n < 1 {
			return fmt.Errorf("topN must be at least 1, got %d", n)
		}
		r.topN = n
		return nil
	}
}

// WithRerankerLogger sets a custom logger.
// Default is slog.Default().
func WithRerankerLogger(logger *slog.Logger) RerankerOption {
	return func(r *Reranker) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewReranker creates a re-ranker with the default top-N.
func NewReranker(opts ...RerankerOption) (*Reranker, error) {
	r := &Reranker{
		topN:   DefaultTopN,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Rerank orders candidates by a weighted blend of vector similarity, text
// relevance against the query, and recency, returning the top-N notes.
// Scores are internal; callers get notes only.
func (r *Reranker) Rerank(candidates []core.Match, query string) []*core.Note {
	if len(candidates) == 0 {
		return nil
	}
	now := time.Now().UTC()

	type ranked struct {
		note  *core.Note
		score float64
	}
	scored := make([]ranked, 0, len(candidates))

	for _, cand := range candidates {
		vectorScore := cand.Score
		textScore := textRelevance(cand.Note.Content, query)
		recency := recencyBoost(cand.Note.CreatedAt, now)

		wv, wt, wr := rerankWeights(vectorScore, textScore)
		final := vectorScore*wv + textScore*wt + recency*wr

		r.logger.Debug("reranked candidate",
			"note", cand.Note.Id,
			"vector", vectorScore,
			"text", textScore,
			"recency", recency,
			"final", final)

		scored = append(scored, ranked{note: cand.Note, score: final})
	}

	slices.SortFunc(scored, func(a, b ranked) int {
		if a.score > b.score {
			return -1
		}
		if a.score < b.score {
			return 1
		}
		if a.note.Id < b.note.Id {
			return -1
		}
		if a.note.Id > b.note.Id {
			return 1
		}
		return 0
	})

	n := min(r.topN, len(scored))
	notes := make([]*core.Note, n)
	for i := 0; i < n; i++ {
		notes[i] = scored[i].note
	}
	return notes
}

// rerankWeights picks (vector, text, recency) weights per candidate.
// A dominant signal takes most of the weight; recency is always a minor term.
func rerankWeights(vectorScore, textScore float64) (wv, wt, wr float64) {
	switch {
	case vectorScore > 0.8:
		return 0.7, 0.2, 0.1
	case textScore > 0.8:
		return 0.3, 0.6, 0.1
	default:
		return 0.5, 0.35, 0.15
	}
}

// BuildContext assembles the grounding context for answer generation from
// ranked notes, greedily filling the token budget. Notes are re-sorted by
// text relevance against the question; when the next note would overflow a
// budget that still has room, it is truncated at a word boundary instead of
// dropped.
func (r *Reranker) BuildContext(notes []*core.Note, question string, tokenBudget int) string {
	if len(notes) == 0 {
		return ""
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}

	ordered := make([]*core.Note, len(notes))
	copy(ordered, notes)
	slices.SortStableFunc(ordered, func(a, b *core.Note) int {
		ra := textRelevance(a.Content, question)
		rb := textRelevance(b.Content, question)
		if ra > rb {
			return -1
		}
		if ra < rb {
			return 1
		}
		return 0
	})

	var sb strings.Builder
	used := 0
	for _, note := range ordered {
		line := "- " + note.Content + "\n"
		cost := estimateTokens(line)

		if used+cost <= tokenBudget {
			sb.WriteString(line)
			used += cost
			continue
		}

		remaining := tokenBudget - used
		if remaining >= minTruncationBudget {
			truncated := truncateToTokens(note.Content, remaining)
			sb.WriteString("- " + truncated + "\n")
		}
		break
	}
	return sb.String()
}
