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


package backfill

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/halcyonic/recallbox/ai"
	"github.com/halcyonic/recallbox/core"
	"github.com/halcyonic/recallbox/storage"
	"github.com/panjf2000/ants/v2"
)

const (
	// DefaultBatchSize is how many pending notes one fetch pulls.
	DefaultBatchSize = 100

	// DefaultBatchDelay is the pause between batches, keeping the
	// embedding endpoint from being hammered during large backfills.
	DefaultBatchDelay = 100 * time.Millisecond

	// DefaultMaxRetries is the per-item retry budget after a whole-batch
	// embedding call has already failed.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay for exponential backoff.
	DefaultRetryDelay = 1 * time.Second

	// bulkLoadThreshold separates row-wise updates from the staged bulk path.
	bulkLoadThreshold = 100

	// refreshStatsThreshold is how many processed rows warrant advisory
	// store maintenance after the run.
	refreshStatsThreshold = 1000
)

// Pipeline computes embedding vectors for notes that were stored without one
// and persists them in batches. Runs are restartable: work is discovered
// through the pending-embedding index, so a crashed run resumes where it
// stopped.
type Pipeline struct {
	source      storage.BackfillSource
	checkpoints storage.CheckpointRepository
	embedder    ai.Embedder
	pool        *ants.Pool
	maxRetries  int
	retryDelay  time.Duration
	batchDelay  time.Duration
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for per-item embedding retries.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithCheckpoints makes the pipeline record per-tenant progress after each run.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(p *Pipeline) error {
		p.checkpoints = repo
		return nil
	}
}

// WithBatchDelay sets the pause between batches. Zero disables it.
func WithBatchDelay(delay time.Duration) Option {
	return func(p *Pipeline) error {
		if delay < 0 {
			delay = 0
		}
		p.batchDelay = delay
		return nil
	}
}

// WithRetryPolicy sets the per-item retry budget and backoff base delay.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxRetries = maxAttempts
		p.retryDelay = baseDelay
		return nil
	}
}

// NewPipeline creates a new embedding backfill pipeline.
func NewPipeline(source storage.BackfillSource, provider ai.Provider, opts ...Option) (*Pipeline, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		source:     source,
		embedder:   provider.Embedder(),
		pool:       pool,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		batchDelay: DefaultBatchDelay,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// ProcessNotesWithoutEmbeddings embeds and persists vectors for every note of
// the tenant that lacks one, batch by batch, until none remain. Items whose
// embedding keeps failing are skipped for the rest of the run so the loop
// always terminates; they stay pending and are picked up by the next run.
// Returns the number of notes updated.
func (p *Pipeline) ProcessNotesWithoutEmbeddings(ctx context.Context, tenant core.TenantID, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	skipped := make(map[core.ID]struct{})
	processed := 0

	for {
		// Over-fetch by the skipped count: skipped notes stay in the
		// pending index and would otherwise starve the fetch.
		notes, err := p.source.NotesWithoutEmbedding(ctx, tenant, batchSize+len(skipped))
		if err != nil {
			return processed, err
		}

		pending := make([]*core.Note, 0, len(notes))
		for _, note := range notes {
			if _, ok := skipped[note.Id]; ok {
				continue
			}
			pending = append(pending, note)
		}
		if len(pending) == 0 {
			break
		}
		if len(pending) > batchSize {
			pending = pending[:batchSize]
		}

		updates := p.embedBatch(ctx, pending, skipped)
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		if len(updates) > 0 {
			updated, err := p.persist(ctx, tenant, updates)
			if err != nil {
				return processed, err
			}
			processed += updated
			p.logger.Debug("backfill batch persisted",
				"tenant", tenant, "updated", updated, "total", processed)
		}

		if p.batchDelay > 0 {
			timer := time.NewTimer(p.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return processed, ctx.Err()
			case <-timer.C:
			}
		}
	}

	if len(skipped) > 0 {
		p.logger.Warn("backfill finished with skipped notes",
			"tenant", tenant, "processed", processed, "skipped", len(skipped))
	}

	p.saveCheckpoint(ctx, tenant, processed, len(skipped))

	if processed > refreshStatsThreshold {
		if err := p.source.RefreshStats(ctx); err != nil {
			p.logger.Warn("store stats refresh failed", "err", err)
		}
	}

	return processed, nil
}

// embedBatch tries one whole-batch embedding call first; when that fails it
// falls back to per-item calls with retry, fanned out over the worker pool.
// Items that still fail are added to skipped.
func (p *Pipeline) embedBatch(ctx context.Context, notes []*core.Note, skipped map[core.ID]struct{}) []core.EmbeddingUpdate {
	texts := make([]string, len(notes))
	for i, note := range notes {
		texts[i] = note.Content
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err == nil && len(vectors) == len(notes) {
		updates := make([]core.EmbeddingUpdate, 0, len(notes))
		for i, note := range notes {
			if len(vectors[i]) == 0 {
				skipped[note.Id] = struct{}{}
				continue
			}
			updates = append(updates, core.EmbeddingUpdate{
				NoteID: note.Id,
				Vector: NormalizeVector(vectors[i]),
			})
		}
		return updates
	}

	p.logger.Warn("batch embedding failed, retrying per item",
		"batch", len(notes), "err", err)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		updates = make([]core.EmbeddingUpdate, 0, len(notes))
	)

	for _, note := range notes {
		note := note
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()

			var vector []float32
			retryErr := RetryWithBackoff(ctx, func() error {
				v, embedErr := p.embedder.EmbedText(ctx, note.Content)
				if embedErr != nil {
					return embedErr
				}
				vector = v
				return nil
			}, p.maxRetries, p.retryDelay)

			mu.Lock()
			defer mu.Unlock()

			if retryErr != nil || len(vector) == 0 {
				skipped[note.Id] = struct{}{}
				p.logger.Warn("skipping note after failed embedding",
					"note", note.Id, "err", retryErr)
				return
			}
			updates = append(updates, core.EmbeddingUpdate{
				NoteID: note.Id,
				Vector: NormalizeVector(vector),
			})
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			skipped[note.Id] = struct{}{}
			mu.Unlock()
			p.logger.Error("error submitting embedding task", "note", note.Id, "err", submitErr)
		}
	}
	wg.Wait()

	return updates
}

// persist routes small batches through row-wise updates and large ones
// through the staged bulk load, falling back to row-wise when the bulk
// path fails.
func (p *Pipeline) persist(ctx context.Context, tenant core.TenantID, updates []core.EmbeddingUpdate) (int, error) {
	if len(updates) <= bulkLoadThreshold {
		return p.source.UpdateEmbeddings(ctx, tenant, updates)
	}

	updated, err := p.source.BulkLoadEmbeddings(ctx, tenant, updates)
	if err != nil {
		p.logger.Warn("bulk load failed, falling back to row-wise updates", "err", err)
		return p.source.UpdateEmbeddings(ctx, tenant, updates)
	}
	return updated, nil
}

// saveCheckpoint records run progress when a checkpoint repository is wired.
// Checkpoint failures never fail the run.
func (p *Pipeline) saveCheckpoint(ctx context.Context, tenant core.TenantID, processed, skipped int) {
	if p.checkpoints == nil {
		return
	}
	checkpoint := &core.BackfillCheckpoint{
		Tenant:    tenant,
		Processed: uint64(processed),
		Skipped:   uint64(skipped),
	}
	if err := p.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
		p.logger.Warn("error saving backfill checkpoint", "tenant", tenant, "err", err)
	}
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
