package badger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/halcyonic/recallbox/core"
	"github.com/halcyonic/recallbox/storage"
)

// mergeChunkSize bounds the number of staged entries applied per transaction
// during a bulk load, keeping transactions under Badger's size limits.
const mergeChunkSize = 100

// NoteRepository implements storage.NoteRepository for BadgerDB.
type NoteRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.NoteRepository = (*NoteRepository)(nil)

// NewNoteRepository creates a new NoteRepository.
func NewNoteRepository(backend *Backend) (*NoteRepository, error) {
	idSeq, err := backend.GetSequence(noteIDSeq)
	if err != nil {
		return nil, err
	}

	return &NoteRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *NoteRepository) Close() error {
	return r.idSeq.Release()
}

// AddNotes adds one or more notes to storage.
func (r *NoteRepository) AddNotes(ctx context.Context, notes ...*core.Note) ([]*core.Note, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, note := range notes {
			if note.Id == 0 {
				nextID, err := r.idSeq.Next()
				if err != nil {
					return err
				}
				// BadgerDB sequences can return 0 on first call, so we skip it
				if nextID == 0 {
					nextID, err = r.idSeq.Next()
					if err != nil {
						return err
					}
				}
				note.Id = core.ID(nextID)
			}

			if note.CreatedAt.IsZero() {
				note.CreatedAt = time.Now().UTC()
			}
			note.UpdatedAt = note.CreatedAt

			if err := r.writeNote(tx, note); err != nil {
				return err
			}

			dateKey := makeDateKey(note.Tenant, note.CreatedAt, note.Id)
			if err := tx.Set(dateKey, storage.MarshalID(note.Id)); err != nil {
				return err
			}

			// Notes arriving without a vector are queued for backfill
			if !note.HasVector() {
				pendKey := makePendingKey(note.Tenant, note.CreatedAt, note.Id)
				if err := tx.Set(pendKey, storage.MarshalID(note.Id)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)

	return notes, err
}

// UpdateNotes updates existing notes.
func (r *NoteRepository) UpdateNotes(ctx context.Context, notes ...*core.Note) ([]*core.Note, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, note := range notes {
			key := makeNoteKey(note.Tenant, note.Id)

			old, err := r.readNote(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			note.UpdatedAt = time.Now().UTC()

			if err := r.writeNote(tx, note); err != nil {
				return err
			}

			if !old.CreatedAt.Equal(note.CreatedAt) {
				if err := tx.Delete(makeDateKey(old.Tenant, old.CreatedAt, old.Id)); err != nil {
					return err
				}
				if err := tx.Set(makeDateKey(note.Tenant, note.CreatedAt, note.Id), storage.MarshalID(note.Id)); err != nil {
					return err
				}
			}

			// Keep the pending-embedding index in sync with the vector state
			oldPending := !old.HasVector()
			newPending := !note.HasVector()
			if oldPending && (!newPending || !old.CreatedAt.Equal(note.CreatedAt)) {
				if err := tx.Delete(makePendingKey(old.Tenant, old.CreatedAt, old.Id)); err != nil {
					return err
				}
			}
			if newPending && (!oldPending || !old.CreatedAt.Equal(note.CreatedAt)) {
				if err := tx.Set(makePendingKey(note.Tenant, note.CreatedAt, note.Id), storage.MarshalID(note.Id)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)

	return notes, err
}

// DeleteNotes removes notes by their IDs.
func (r *NoteRepository) DeleteNotes(ctx context.Context, tenant core.TenantID, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeNoteKey(tenant, id)
			note, err := r.readNote(tx, key)
			if err != nil {
				return err
			}
			if note == nil {
				return storage.ErrNotFound
			}

			if err := tx.Delete(key); err != nil {
				return err
			}
			if err := tx.Delete(makeDateKey(tenant, note.CreatedAt, id)); err != nil {
				return err
			}
			if !note.HasVector() {
				if err := tx.Delete(makePendingKey(tenant, note.CreatedAt, id)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)
}

// GetNote retrieves a single note by ID.
func (r *NoteRepository) GetNote(ctx context.Context, tenant core.TenantID, id core.ID) (*core.Note, error) {
	var note *core.Note
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		note, err = r.readNote(tx, makeNoteKey(tenant, id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, storage.ErrNotFound
	}
	return note, nil
}

// GetNotes retrieves multiple notes by their IDs.
// Missing notes are silently skipped.
func (r *NoteRepository) GetNotes(ctx context.Context, tenant core.TenantID, ids ...core.ID) ([]*core.Note, error) {
	notes := make([]*core.Note, 0, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			note, err := r.readNote(tx, makeNoteKey(tenant, id))
			if err != nil {
				return err
			}
			if note != nil {
				notes = append(notes, note)
			}
		}
		return nil
	}, false)
	return notes, err
}

// RecentNotes retrieves the N most recent notes of a tenant, newest first.
func (r *NoteRepository) RecentNotes(ctx context.Context, tenant core.TenantID, limit int) ([]*core.Note, error) {
	var results []*core.Note
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := r.scanTimeIndexReverse(tx, noteDate, tenant, limit)
		if err != nil {
			return err
		}
		for _, id := range ids {
			note, err := r.readNote(tx, makeNoteKey(tenant, id))
			if err != nil {
				return err
			}
			if note != nil {
				results = append(results, note)
			}
		}
		return nil
	}, false)
	return results, err
}

// FindSimilar finds notes similar to the given vector within a tenant.
func (r *NoteRepository) FindSimilar(ctx context.Context, tenant core.TenantID, vector []float32, minSimilarity float64, limit int) ([]core.Match, error) {
	return r.findSimilar(ctx, tenant, vector, minSimilarity, limit, nil)
}

// FindSimilarFiltered is FindSimilar restricted by tags and/or category.
func (r *NoteRepository) FindSimilarFiltered(ctx context.Context, tenant core.TenantID, vector []float32, tags []string, category string, minSimilarity float64, limit int) ([]core.Match, error) {
	if len(tags) == 0 && category == "" {
		return r.findSimilar(ctx, tenant, vector, minSimilarity, limit, nil)
	}
	return r.findSimilar(ctx, tenant, vector, minSimilarity, limit, func(note *core.Note) bool {
		if category != "" && note.Category == category {
			return true
		}
		for _, tag := range tags {
			if slices.Contains(note.Tags, tag) {
				return true
			}
		}
		return false
	})
}

func (r *NoteRepository) findSimilar(ctx context.Context, tenant core.TenantID, vector []float32, minSimilarity float64, limit int, accept func(*core.Note) bool) ([]core.Match, error) {
	var results []core.Match

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeNoteScanPrefix(tenant)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var note *core.Note
			err := iter.Item().Value(func(val []byte) error {
				var err error
				note, err = storage.UnmarshalNote(val)
				return err
			})
			if err != nil {
				return err
			}
			if note == nil || !note.HasVector() {
				continue
			}
			if accept != nil && !accept(note) {
				continue
			}

			// Cosine similarity reduces to the dot product for unit vectors
			similarity := dotProduct(vector, note.Vector)
			if similarity > minSimilarity {
				results = append(results, core.Match{Note: note, Score: similarity})
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, compareMatches)

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// compareMatches orders by score descending, note id ascending on ties.
func compareMatches(a, b core.Match) int {
	if a.Score > b.Score {
		return -1
	}
	if a.Score < b.Score {
		return 1
	}
	if a.Note.Id < b.Note.Id {
		return -1
	}
	if a.Note.Id > b.Note.Id {
		return 1
	}
	return 0
}

// SearchText finds notes matching keywords extracted from the query.
// Relevance is the number of matched keywords, with a whole-phrase bonus;
// ties break by recency, then by note id.
func (r *NoteRepository) SearchText(ctx context.Context, tenant core.TenantID, query string, limit int) ([]*core.Note, error) {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return nil, storage.ErrInvalidQuery
	}
	keywords := lexicalKeywords(queryLower)

	type scored struct {
		note  *core.Note
		score int
	}
	var hits []scored

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeNoteScanPrefix(tenant)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var note *core.Note
			err := iter.Item().Value(func(val []byte) error {
				var err error
				note, err = storage.UnmarshalNote(val)
				return err
			})
			if err != nil {
				return err
			}
			if note == nil {
				continue
			}

			contentLower := strings.ToLower(note.Content)
			score := 0
			for _, kw := range keywords {
				if strings.Contains(contentLower, kw) {
					score++
				}
			}
			// Exact phrase outranks any keyword combination
			if strings.Contains(contentLower, queryLower) {
				score += len(keywords) + 1
			}
			if score > 0 {
				hits = append(hits, scored{note: note, score: score})
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	slices.SortFunc(hits, func(a, b scored) int {
		if a.score != b.score {
			return b.score - a.score
		}
		if !a.note.CreatedAt.Equal(b.note.CreatedAt) {
			if a.note.CreatedAt.After(b.note.CreatedAt) {
				return -1
			}
			return 1
		}
		if a.note.Id < b.note.Id {
			return -1
		}
		return 1
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	notes := make([]*core.Note, len(hits))
	for i, h := range hits {
		notes[i] = h.note
	}
	return notes, nil
}

// NotesWithoutEmbedding returns up to limit notes lacking a vector, newest first.
func (r *NoteRepository) NotesWithoutEmbedding(ctx context.Context, tenant core.TenantID, limit int) ([]*core.Note, error) {
	var results []*core.Note
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := r.scanTimeIndexReverse(tx, notePending, tenant, limit)
		if err != nil {
			return err
		}
		for _, id := range ids {
			note, err := r.readNote(tx, makeNoteKey(tenant, id))
			if err != nil {
				return err
			}
			// The index can briefly trail the record; trust the record
			if note != nil && !note.HasVector() {
				results = append(results, note)
			}
		}
		return nil
	}, false)
	return results, err
}

// UpdateEmbeddings persists vectors one note per transaction.
func (r *NoteRepository) UpdateEmbeddings(ctx context.Context, tenant core.TenantID, updates []core.EmbeddingUpdate) (int, error) {
	updated := 0
	for _, update := range updates {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		applied := false
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			var err error
			applied, err = r.applyEmbedding(tx, tenant, update)
			if err != nil {
				return err
			}
			if !applied {
				return nil
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return updated, err
		}
		if applied {
			updated++
		}
	}
	return updated, nil
}

// BulkLoadEmbeddings stages all vectors with a write batch, then merges the
// staging area into the primary records. Falls back to row-by-row updates
// when either phase fails.
func (r *NoteRepository) BulkLoadEmbeddings(ctx context.Context, tenant core.TenantID, updates []core.EmbeddingUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	if err := r.stageEmbeddings(tenant, updates); err != nil {
		r.backend.logger.Warn("falling back to row updates",
			"err", fmt.Errorf("%w: staging: %w", storage.ErrBulkLoadFailed, err))
		r.clearStaging(tenant)
		return r.UpdateEmbeddings(ctx, tenant, updates)
	}

	updated, err := r.mergeStaged(ctx, tenant, updates)
	if err != nil {
		r.backend.logger.Warn("falling back to row updates",
			"err", fmt.Errorf("%w: merge: %w", storage.ErrBulkLoadFailed, err))
		r.clearStaging(tenant)
		// Re-applying already merged entries is a no-op for correctness:
		// the vector write is idempotent.
		return r.UpdateEmbeddings(ctx, tenant, updates)
	}
	return updated, nil
}

func (r *NoteRepository) stageEmbeddings(tenant core.TenantID, updates []core.EmbeddingUpdate) error {
	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()

	for _, update := range updates {
		key := makeStagingKey(tenant, update.NoteID)
		if err := wb.Set(key, storage.MarshalVector(update.Vector)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (r *NoteRepository) mergeStaged(ctx context.Context, tenant core.TenantID, updates []core.EmbeddingUpdate) (int, error) {
	updated := 0
	for start := 0; start < len(updates); start += mergeChunkSize {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		end := min(start+mergeChunkSize, len(updates))
		chunkApplied := 0

		err := r.backend.WithTx(func(tx *badger.Txn) error {
			for _, update := range updates[start:end] {
				stagingKey := makeStagingKey(tenant, update.NoteID)
				item, err := tx.Get(stagingKey)
				if err == badger.ErrKeyNotFound {
					continue
				}
				if err != nil {
					return err
				}

				var vector []float32
				if err := item.Value(func(val []byte) error {
					var err error
					vector, err = storage.UnmarshalVector(val)
					return err
				}); err != nil {
					return err
				}

				applied, err := r.applyEmbedding(tx, tenant, core.EmbeddingUpdate{NoteID: update.NoteID, Vector: vector})
				if err != nil {
					return err
				}
				if applied {
					chunkApplied++
				}
				if err := tx.Delete(stagingKey); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return updated, err
		}
		updated += chunkApplied
	}
	return updated, nil
}

// applyEmbedding writes a vector onto a note inside tx and clears the
// pending-embedding index entry. Returns false when the note is missing.
func (r *NoteRepository) applyEmbedding(tx *badger.Txn, tenant core.TenantID, update core.EmbeddingUpdate) (bool, error) {
	key := makeNoteKey(tenant, update.NoteID)
	note, err := r.readNote(tx, key)
	if err != nil {
		return false, err
	}
	if note == nil {
		return false, nil
	}

	hadVector := note.HasVector()
	note.Vector = update.Vector
	note.UpdatedAt = time.Now().UTC()

	if err := r.writeNote(tx, note); err != nil {
		return false, err
	}
	if !hadVector {
		if err := tx.Delete(makePendingKey(tenant, note.CreatedAt, note.Id)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// clearStaging removes any staged entries left for a tenant, best effort.
func (r *NoteRepository) clearStaging(tenant core.TenantID) {
	prefix := makeTimeIndexPrefix(noteStaging, tenant)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)

		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		r.backend.logger.Warn("failed to clear embedding staging area", "err", err)
	}
}

// RefreshStats triggers value-log garbage collection after large vector loads.
// Advisory: a no-op result is not an error.
func (r *NoteRepository) RefreshStats(ctx context.Context) error {
	err := r.backend.RunValueLogGC(0.5)
	if err == badger.ErrNoRewrite || err == badger.ErrGCInMemoryMode {
		return nil
	}
	return err
}

// scanTimeIndexReverse walks a per-tenant time index newest first and
// returns up to limit note IDs.
func (r *NoteRepository) scanTimeIndexReverse(tx *badger.Txn, prefix string, tenant core.TenantID, limit int) ([]core.ID, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true

	iter := tx.NewIterator(opts)
	defer iter.Close()

	seekKey := makeTimeIndexSeekKey(prefix, tenant)
	indexPrefix := makeTimeIndexPrefix(prefix, tenant)

	var ids []core.ID
	for iter.Seek(seekKey); iter.Valid() && len(ids) < limit; iter.Next() {
		key := iter.Item().Key()
		if len(key) < len(indexPrefix) || !slices.Equal(key[:len(indexPrefix)], indexPrefix) {
			break
		}

		var id core.ID
		if err := iter.Item().Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *NoteRepository) writeNote(tx *badger.Txn, note *core.Note) error {
	return tx.Set(makeNoteKey(note.Tenant, note.Id), storage.MarshalNote(note))
}

// readNote returns nil (not an error) when the key does not exist.
func (r *NoteRepository) readNote(tx *badger.Txn, key []byte) (*core.Note, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var note *core.Note
	err = item.Value(func(val []byte) error {
		var err error
		note, err = storage.UnmarshalNote(val)
		return err
	})
	return note, err
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float64 {
	var sum float64
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// lexicalKeywords extracts match terms from a lowercased query:
// punctuation-trimmed words longer than two characters.
func lexicalKeywords(queryLower string) []string {
	words := strings.Fields(queryLower)
	keywords := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.Trim(word, ".,!?;:'\"-()[]{}")
		if len([]rune(cleaned)) > 2 {
			keywords = append(keywords, cleaned)
		}
	}
	return keywords
}
