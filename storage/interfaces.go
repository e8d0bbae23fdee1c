package storage

import (
	"context"

	"github.com/halcyonic/recallbox/core"
)

// VectorSearcher performs nearest-neighbor retrieval by cosine similarity.
// Implementations must be thread-safe and scope every query to one tenant.
type VectorSearcher interface {
	// FindSimilar finds notes similar to the given vector within a tenant.
	// Returns matches with similarity > minSimilarity, up to limit results,
	// ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, tenant core.TenantID, vector []float32, minSimilarity float64, limit int) ([]core.Match, error)

	// FindSimilarFiltered is FindSimilar restricted to notes carrying any of
	// the given tags and/or the given category. Empty tags and category mean
	// no filtering on that axis.
	FindSimilarFiltered(ctx context.Context, tenant core.TenantID, vector []float32, tags []string, category string, minSimilarity float64, limit int) ([]core.Match, error)
}

// LexicalSearcher performs keyword/substring retrieval.
// The result ordering is the implementation's own relevance ranking.
type LexicalSearcher interface {
	// SearchText finds notes whose content matches keywords extracted from
	// the query, up to limit results, most relevant first.
	SearchText(ctx context.Context, tenant core.TenantID, query string, limit int) ([]*core.Note, error)
}

// BackfillSource exposes the operations the embedding backfill pipeline
// needs: discovering notes lacking vectors and persisting computed vectors.
type BackfillSource interface {
	// NotesWithoutEmbedding returns up to limit notes of the tenant that have
	// no embedding vector, newest first.
	NotesWithoutEmbedding(ctx context.Context, tenant core.TenantID, limit int) ([]*core.Note, error)

	// UpdateEmbeddings persists vectors row by row.
	// Returns the number of notes actually updated; missing notes are skipped.
	UpdateEmbeddings(ctx context.Context, tenant core.TenantID, updates []core.EmbeddingUpdate) (int, error)

	// BulkLoadEmbeddings persists vectors via a staging area merged into the
	// primary records in one pass. Implementations fall back to row-by-row
	// updates when the staged merge fails.
	BulkLoadEmbeddings(ctx context.Context, tenant core.TenantID, updates []core.EmbeddingUpdate) (int, error)

	// RefreshStats hints the store to refresh internal statistics after a
	// large volume of vector writes. Advisory: errors are safe to ignore.
	RefreshStats(ctx context.Context) error
}

// CheckpointRepository persists embedding backfill progress per tenant.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for a tenant.
	SaveCheckpoint(ctx context.Context, checkpoint *core.BackfillCheckpoint) error

	// LoadCheckpoint retrieves the checkpoint for a tenant.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, tenant core.TenantID) (*core.BackfillCheckpoint, error)
}

// NoteRepository provides operations for managing notes.
// Implementations must be thread-safe and support concurrent access.
type NoteRepository interface {
	VectorSearcher
	LexicalSearcher
	BackfillSource

	// AddNotes adds one or more notes to storage.
	// For notes with ID=0, generates new IDs from sequence.
	// Sets CreatedAt/UpdatedAt timestamps if not already set.
	// Returns the notes with generated IDs and timestamps populated.
	AddNotes(ctx context.Context, notes ...*core.Note) ([]*core.Note, error)

	// UpdateNotes updates existing notes.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if any note doesn't exist.
	UpdateNotes(ctx context.Context, notes ...*core.Note) ([]*core.Note, error)

	// DeleteNotes removes notes by their IDs.
	// Also removes associated indices.
	// Returns ErrNotFound if any note doesn't exist.
	DeleteNotes(ctx context.Context, tenant core.TenantID, ids ...core.ID) error

	// GetNote retrieves a single note by ID.
	// Returns ErrNotFound if the note doesn't exist.
	GetNote(ctx context.Context, tenant core.TenantID, id core.ID) (*core.Note, error)

	// GetNotes retrieves multiple notes by their IDs.
	// Returns only the notes that exist (no error for missing notes).
	GetNotes(ctx context.Context, tenant core.TenantID, ids ...core.ID) ([]*core.Note, error)

	// RecentNotes retrieves the N most recent notes of a tenant,
	// ordered by creation time descending.
	RecentNotes(ctx context.Context, tenant core.TenantID, limit int) ([]*core.Note, error)

	// Close closes the repository and releases resources.
	Close() error
}
