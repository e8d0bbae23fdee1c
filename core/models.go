package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// TenantID identifies the owning user scope.
// Every note belongs to exactly one tenant and retrieval never crosses tenants.
type TenantID uint64

// DefaultVectorDim is the embedding dimensionality used when none is configured.
// Matches the common OpenAI text-embedding models.
const DefaultVectorDim = 1536

// Note is a single free-text entry in the knowledge base.
// The embedding vector may be attached synchronously on creation or
// asynchronously by the backfill pipeline.
type Note struct {
	Id        ID
	Tenant    TenantID
	Content   string
	CreatedAt time.Time         // When the note was submitted
	UpdatedAt time.Time         // When the note was last modified
	Tags      []string          // Free-form tags, unique within a note
	Category  string            // Optional category label, empty when unset
	Metadata  map[string]string // Optional metadata (e.g., "source", "channel")
	Vector    []float32         // Embedding vector, empty until embedded
}

// HasVector reports whether the note has an embedding attached.
func (n *Note) HasVector() bool {
	return len(n.Vector) > 0
}

// Match is a transient pairing of a note with a raw similarity score
// from a single retrieval path. It exists only during a query.
type Match struct {
	Note  *Note
	Score float64
}

// SearchResult is an ordered set of notes plus the total found count.
// It is the unit stored in and returned from the result cache.
type SearchResult struct {
	Notes      []*Note
	TotalFound int
}

// EmbeddingUpdate is a pending vector write produced by the backfill pipeline.
type EmbeddingUpdate struct {
	NoteID ID
	Vector []float32
}

// BackfillCheckpoint records the progress of the last embedding backfill run
// for a tenant, so restarts can report what has already been covered.
type BackfillCheckpoint struct {
	Tenant    TenantID
	Processed uint64 // Notes embedded across the run
	Skipped   uint64 // Notes that failed embedding and were left pending
	UpdatedAt time.Time
}
