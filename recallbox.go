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
	"log/slog"

	"github.com/halcyonic/recallbox/ai"
	"github.com/halcyonic/recallbox/ai/openai"
	"github.com/halcyonic/recallbox/backfill"
	"github.com/halcyonic/recallbox/search"
	"github.com/halcyonic/recallbox/storage"
	"github.com/halcyonic/recallbox/storage/badger"
)

// Assistant is the top-level handle over the note store, the retrieval
// stack, and the AI provider. One Assistant serves all tenants.
type Assistant struct {
	backend     *badger.Backend
	notes       storage.NoteRepository
	checkpoints storage.CheckpointRepository
	provider    ai.Provider
	searcher    *search.Searcher
	reranker    *search.Reranker
	vectorDim   int
	logger      *slog.Logger
}

// AssistantOption configures an Assistant.
type AssistantOption func(*assistantOptions)

type assistantOptions struct {
	aiConfig *ai.Config
	provider ai.Provider
	inMemory bool
	logger   *slog.Logger
}

// WithAIConfig overrides the AI endpoint configuration.
func WithAIConfig(config *ai.Config) AssistantOption {
	return func(o *assistantOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithProvider supplies an already-constructed AI provider instead of
// dialing the configured endpoints. Used by tests and embedders-in-process.
func WithProvider(provider ai.Provider) AssistantOption {
	return func(o *assistantOptions) {
		o.provider = provider
	}
}

// WithInMemory keeps all data in memory; filePath is ignored.
func WithInMemory() AssistantOption {
	return func(o *assistantOptions) {
		o.inMemory = true
	}
}

// WithAssistantLogger sets a custom logger.
// Default is slog.Default().
func WithAssistantLogger(logger *slog.Logger) AssistantOption {
	return func(o *assistantOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open opens (or creates) the note store at filePath and wires the full
// retrieval stack around it.
func Open(filePath string, opts ...AssistantOption) (*Assistant, error) {
	options := &assistantOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	notes, err := badger.NewNoteRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	checkpoints := badger.NewCheckpointRepository(backend)

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			notes.Close()
			backend.Close()
			return nil, err
		}
	}

	searcher, err := search.NewSearcher(notes, provider, search.WithLogger(options.logger))
	if err != nil {
		provider.Close()
		notes.Close()
		backend.Close()
		return nil, err
	}

	reranker, err := search.NewReranker(search.WithRerankerLogger(options.logger))
	if err != nil {
		provider.Close()
		notes.Close()
		backend.Close()
		return nil, err
	}

	return &Assistant{
		backend:     backend,
		notes:       notes,
		checkpoints: checkpoints,
		provider:    provider,
		searcher:    searcher,
		reranker:    reranker,
		vectorDim:   options.aiConfig.VectorDim,
		logger:      options.logger,
	}, nil
}

// Close releases the AI provider, the repository, and the backing store.
func (a *Assistant) Close() error {
	if err := a.provider.Close(); err != nil {
		a.logger.Error("error closing AI provider", "err", err)
	}

	if err := a.notes.Close(); err != nil {
		a.logger.Error("error closing note repository", "err", err)
		return err
	}

	if err := a.backend.Close(); err != nil {
		a.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// NoteRepository exposes the underlying note repository.
func (a *Assistant) NoteRepository() storage.NoteRepository {
	return a.notes
}

// CheckpointRepository exposes backfill progress records.
func (a *Assistant) CheckpointRepository() storage.CheckpointRepository {
	return a.checkpoints
}

// Searcher exposes the hybrid searcher behind Search.
func (a *Assistant) Searcher() *search.Searcher {
	return a.searcher
}

// NewBackfillPipeline builds an embedding backfill pipeline over this
// assistant's store, recording progress in the checkpoint repository.
func (a *Assistant) NewBackfillPipeline(opts ...backfill.Option) (*backfill.Pipeline, error) {
	merged := append([]backfill.Option{
		backfill.WithCheckpoints(a.checkpoints),
		backfill.WithLogger(a.logger),
	}, opts...)
	return backfill.NewPipeline(a.notes, a.provider, merged...)
}
