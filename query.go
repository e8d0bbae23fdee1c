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


package recallbox

import (
	"context"
	"strings"
	"time"

	"github.com/halcyonic/recallbox/backfill"
	"github.com/halcyonic/recallbox/core"
	"github.com/halcyonic/recallbox/search"
	"github.com/halcyonic/recallbox/tags"
)

const (
	// answerCandidateLimit is how many vector matches feed the re-ranker.
	answerCandidateLimit = 50

	// answerSimilarityFloor is the threshold for the filtered first pass.
	answerSimilarityFloor = 0.2

	// expandedSimilarityFloor is the stricter threshold for the unfiltered
	// second pass, compensating for the wider candidate pool.
	expandedSimilarityFloor = 0.3

	// minFilteredMatches is the filtered hit count below which the search
	// expands to unfiltered.
	minFilteredMatches = 3

	// answerSourceLimit caps the source snippets attached to an answer.
	answerSourceLimit = 3

	// sourceSnippetRunes caps each source snippet's length.
	sourceSnippetRunes = 100
)

// noAnswerText is returned whenever retrieval produces nothing to ground
// an answer on. Empty retrieval is an answer, not an error.
const noAnswerText = "I could not find anything relevant in your notes."

// Answer is a generated answer with the note snippets it was grounded on.
type Answer struct {
	Text    string
	Sources []string
}

// AddNoteOptions holds optional parameters for AddNote.
type AddNoteOptions struct {
	Tags      []string          // Extra tags, merged with the extracted ones
	Category  string            // Overrides the extracted category when set
	Metadata  map[string]string // Optional metadata to attach
	CreatedAt time.Time         // Optional timestamp (uses current time if zero)
}

// AddNote validates, auto-tags, embeds, and stores one note. When the
// embedder is unreachable the note is stored without a vector and picked
// up by the next backfill run.
func (a *Assistant) AddNote(ctx context.Context, tenant core.TenantID, content string, opts *AddNoteOptions) (*core.Note, error) {
	if opts == nil {
		opts = &AddNoteOptions{}
	}

	extracted, category := tags.ExtractTagsAndCategory(content)
	if opts.Category != "" {
		category = opts.Category
	}

	note := &core.Note{
		Tenant:    tenant,
		Content:   content,
		CreatedAt: opts.CreatedAt,
		Tags:      core.NormalizeTags(append(extracted, opts.Tags...)),
		Category:  category,
		Metadata:  opts.Metadata,
	}
	if err := core.ValidateNote(note, a.vectorDim); err != nil {
		return nil, err
	}

	if vector, err := a.provider.Embedder().EmbedText(ctx, content); err != nil {
		a.logger.Warn("embedding unavailable, note left for backfill", "err", err)
	} else if len(vector) > 0 {
		note.Vector = backfill.NormalizeVector(vector)
	}

	added, err := a.notes.AddNotes(ctx, note)
	if err != nil {
		return nil, err
	}
	return added[0], nil
}

// Search returns the fused, ranked notes matching the query for a tenant.
func (a *Assistant) Search(ctx context.Context, tenant core.TenantID, query string, limit int) (*core.SearchResult, error) {
	return a.searcher.Search(ctx, tenant, query, limit, true)
}

// Ask answers a question from the tenant's notes. Retrieval is filtered by
// the tags and category extracted from the question, expanded to unfiltered
// search when too few notes match, and falls back to lexical search when no
// embedding is available. An empty retrieval yields a fixed no-answer text,
// never an error.
func (a *Assistant) Ask(ctx context.Context, tenant core.TenantID, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, search.ErrEmptyQuery
	}

	// The reranked shortlist is cached per (tenant, question); answer
	// generation itself is not.
	notes, err := a.searcher.Cache().GetOrCompute(ctx, tenant, "ask:"+question,
		func(ctx context.Context) ([]*core.Note, error) {
			return a.retrieveForAnswer(ctx, tenant, question)
		})
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return &Answer{Text: noAnswerText}, nil
	}

	noteContext := a.reranker.BuildContext(notes, question, search.DefaultTokenBudget)
	if noteContext == "" {
		return &Answer{Text: noAnswerText}, nil
	}

	text, err := a.provider.AnswerGenerator().GenerateAnswer(ctx, question, noteContext)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Text:    text,
		Sources: sourceSnippets(notes),
	}, nil
}

// retrieveForAnswer gathers and re-ranks candidate notes for a question.
func (a *Assistant) retrieveForAnswer(ctx context.Context, tenant core.TenantID, question string) ([]*core.Note, error) {
	questionTags, category := tags.ExtractTagsAndCategory(question)

	var candidates []core.Match

	vector, embedErr := a.provider.Embedder().EmbedText(ctx, question)
	if embedErr != nil || len(vector) == 0 {
		a.logger.Warn("embedding unavailable, answering from lexical search", "err", embedErr)
	} else {
		var err error
		candidates, err = a.notes.FindSimilarFiltered(ctx, tenant, vector,
			questionTags, category, answerSimilarityFloor, answerCandidateLimit)
		if err != nil {
			return nil, err
		}

		if len(candidates) < minFilteredMatches {
			expanded, err := a.notes.FindSimilar(ctx, tenant, vector,
				expandedSimilarityFloor, answerCandidateLimit)
			if err != nil {
				return nil, err
			}
			candidates = mergeMatches(candidates, expanded)
		}
	}

	if len(candidates) == 0 {
		found, err := a.notes.SearchText(ctx, tenant, question, answerCandidateLimit)
		if err != nil {
			return nil, err
		}
		for i, note := range found {
			candidates = append(candidates, core.Match{
				Note:  note,
				Score: 1.0 - float64(i)/float64(len(found)),
			})
		}
	}

	return a.reranker.Rerank(candidates, question), nil
}

// mergeMatches unions two match lists by note ID, keeping the higher score.
func mergeMatches(primary, extra []core.Match) []core.Match {
	byID := make(map[core.ID]int, len(primary))
	for i, match := range primary {
		byID[match.Note.Id] = i
	}
	for _, match := range extra {
		if i, ok := byID[match.Note.Id]; ok {
			if match.Score > primary[i].Score {
				primary[i].Score = match.Score
			}
			continue
		}
		byID[match.Note.Id] = len(primary)
		primary = append(primary, match)
	}
	return primary
}

// sourceSnippets trims the grounding notes into short display snippets.
func sourceSnippets(notes []*core.Note) []string {
	limit := min(answerSourceLimit, len(notes))
	snippets := make([]string, 0, limit)
	for _, note := range notes[:limit] {
		runes := []rune(note.Content)
		if len(runes) > sourceSnippetRunes {
			snippets = append(snippets, string(runes[:sourceSnippetRunes])+"...")
			continue
		}
		snippets = append(snippets, note.Content)
	}
	return snippets
}
