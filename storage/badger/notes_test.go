package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/halcyonic/recallbox/core"
	"github.com/halcyonic/recallbox/storage"
)

const testTenant = core.TenantID(1)

func TestNoteBasics(t *testing.T) {
	// Create in-memory repository
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() {
		repo.Close()
		backend.Close()
	}()

	ctx := context.Background()

	// Test adding a note
	note := &core.Note{
		Tenant:    testTenant,
		Content:   "Remember to water the plants",
		CreatedAt: time.Now().UTC(),
	}

	added, err := repo.AddNotes(ctx, note)
	if err != nil {
		t.Fatalf("Failed to add note: %v", err)
	}

	if len(added) != 1 {
		t.Fatalf("Expected 1 note, got %d", len(added))
	}

	if added[0].Id == 0 {
		t.Fatal("Expected non-zero ID")
	}

	// Test retrieving the note
	retrieved, err := repo.GetNote(ctx, testTenant, added[0].Id)
	if err != nil {
		t.Fatalf("Failed to get note: %v", err)
	}

	if retrieved.Content != "Remember to water the plants" {
		t.Fatalf("Expected original content, got '%s'", retrieved.Content)
	}

	// Other tenants must not see the note
	_, err = repo.GetNote(ctx, core.TenantID(2), added[0].Id)
	if err != storage.ErrNotFound {
		t.Fatalf("Expected ErrNotFound for foreign tenant, got %v", err)
	}
}

func TestRecentNotes(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()

	// Add notes with incrementing timestamps
	now := time.Now().UTC().Truncate(time.Microsecond)
	notes := []*core.Note{
		{Tenant: testTenant, Content: "Note 1", CreatedAt: now.Add(-4 * time.Hour)},
		{Tenant: testTenant, Content: "Note 2", CreatedAt: now.Add(-3 * time.Hour)},
		{Tenant: testTenant, Content: "Note 3", CreatedAt: now.Add(-2 * time.Hour)},
		{Tenant: testTenant, Content: "Note 4", CreatedAt: now.Add(-1 * time.Hour)},
		{Tenant: testTenant, Content: "Note 5", CreatedAt: now},
	}

	_, err = repo.AddNotes(ctx, notes...)
	if err != nil {
		t.Fatalf("Failed to add notes: %v", err)
	}

	// Test: Get last 3 notes
	results, err := repo.RecentNotes(ctx, testTenant, 3)
	if err != nil {
		t.Fatalf("Failed to get recent notes: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("Expected 3 notes, got %d", len(results))
	}

	// Verify order: most recent first
	if results[0].Content != "Note 5" {
		t.Errorf("Expected 'Note 5' first, got '%s'", results[0].Content)
	}
	if results[1].Content != "Note 4" {
		t.Errorf("Expected 'Note 4' second, got '%s'", results[1].Content)
	}
	if results[2].Content != "Note 3" {
		t.Errorf("Expected 'Note 3' third, got '%s'", results[2].Content)
	}

	// Test: Empty tenant
	emptyResults, err := repo.RecentNotes(ctx, core.TenantID(99), 10)
	if err != nil {
		t.Fatalf("Failed to query empty tenant: %v", err)
	}
	if len(emptyResults) != 0 {
		t.Fatalf("Expected 0 notes for empty tenant, got %d", len(emptyResults))
	}
}

func TestUpdateNotes(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	// Add a note
	note := &core.Note{
		Tenant:    testTenant,
		Content:   "Original content",
		CreatedAt: now,
	}
	added, err := repo.AddNotes(ctx, note)
	if err != nil {
		t.Fatalf("Failed to add note: %v", err)
	}

	// Update the note
	added[0].Content = "Updated content"
	updated, err := repo.UpdateNotes(ctx, added[0])
	if err != nil {
		t.Fatalf("Failed to update note: %v", err)
	}

	if updated[0].Content != "Updated content" {
		t.Fatalf("Expected updated content, got %s", updated[0].Content)
	}

	// Verify the update persisted
	retrieved, err := repo.GetNote(ctx, testTenant, added[0].Id)
	if err != nil {
		t.Fatalf("Failed to get note: %v", err)
	}

	if retrieved.Content != "Updated content" {
		t.Fatalf("Expected updated content to persist, got %s", retrieved.Content)
	}

	// Updating a missing note must fail
	missing := &core.Note{Id: 9999, Tenant: testTenant, Content: "x", CreatedAt: now}
	_, err = repo.UpdateNotes(ctx, missing)
	if err != storage.ErrNotFound {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateNotes_PendingIndexFollowsVector(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()

	// A note without a vector is pending
	note := &core.Note{
		Tenant:    testTenant,
		Content:   "Needs an embedding",
		CreatedAt: time.Now().UTC(),
	}
	added, err := repo.AddNotes(ctx, note)
	if err != nil {
		t.Fatalf("Failed to add note: %v", err)
	}

	pending, err := repo.NotesWithoutEmbedding(ctx, testTenant, 10)
	if err != nil {
		t.Fatalf("Failed to list pending notes: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending note, got %d", len(pending))
	}

	// Setting a vector via update clears the pending entry
	added[0].Vector = []float32{0.6, 0.8}
	_, err = repo.UpdateNotes(ctx, added[0])
	if err != nil {
		t.Fatalf("Failed to update note: %v", err)
	}

	pending, err = repo.NotesWithoutEmbedding(ctx, testTenant, 10)
	if err != nil {
		t.Fatalf("Failed to list pending notes: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("Expected 0 pending notes, got %d", len(pending))
	}

	// Dropping the vector puts it back
	added[0].Vector = nil
	_, err = repo.UpdateNotes(ctx, added[0])
	if err != nil {
		t.Fatalf("Failed to update note: %v", err)
	}

	pending, err = repo.NotesWithoutEmbedding(ctx, testTenant, 10)
	if err != nil {
		t.Fatalf("Failed to list pending notes: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending note again, got %d", len(pending))
	}
}

func TestDeleteNotes(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	notes := []*core.Note{
		{Tenant: testTenant, Content: "Note 1", CreatedAt: now},
		{Tenant: testTenant, Content: "Note 2", CreatedAt: now},
	}
	added, err := repo.AddNotes(ctx, notes...)
	if err != nil {
		t.Fatalf("Failed to add notes: %v", err)
	}

	err = repo.DeleteNotes(ctx, testTenant, added[0].Id)
	if err != nil {
		t.Fatalf("Failed to delete note: %v", err)
	}

	// Verify it's deleted
	_, err = repo.GetNote(ctx, testTenant, added[0].Id)
	if err == nil {
		t.Fatal("Expected error when getting deleted note")
	}

	// Deleted note must also leave the recency index
	recent, err := repo.RecentNotes(ctx, testTenant, 10)
	if err != nil {
		t.Fatalf("Failed to get recent notes: %v", err)
	}
	if len(recent) != 1 || recent[0].Content != "Note 2" {
		t.Fatalf("Expected only 'Note 2' to remain, got %d notes", len(recent))
	}
}

func TestFindSimilar(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	// Unit vectors at varying angles to the query
	notes := []*core.Note{
		{Tenant: testTenant, Content: "Exact match", CreatedAt: now, Vector: []float32{1, 0, 0}},
		{Tenant: testTenant, Content: "Close match", CreatedAt: now, Vector: []float32{0.8, 0.6, 0}},
		{Tenant: testTenant, Content: "Orthogonal", CreatedAt: now, Vector: []float32{0, 1, 0}},
		{Tenant: testTenant, Content: "No vector yet", CreatedAt: now},
	}
	_, err = repo.AddNotes(ctx, notes...)
	if err != nil {
		t.Fatalf("Failed to add notes: %v", err)
	}

	query := []float32{1, 0, 0}
	matches, err := repo.FindSimilar(ctx, testTenant, query, 0.2, 10)
	if err != nil {
		t.Fatalf("Failed to find similar notes: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches above threshold, got %d", len(matches))
	}
	if matches[0].Note.Content != "Exact match" {
		t.Errorf("Expected 'Exact match' first, got '%s'", matches[0].Note.Content)
	}
	if matches[0].Score < 0.99 {
		t.Errorf("Expected near-perfect score, got %f", matches[0].Score)
	}
	if matches[1].Note.Content != "Close match" {
		t.Errorf("Expected 'Close match' second, got '%s'", matches[1].Note.Content)
	}

	// Threshold is exclusive: orthogonal vectors never qualify at 0.0
	matches, err = repo.FindSimilar(ctx, testTenant, query, 0.0, 10)
	if err != nil {
		t.Fatalf("Failed to find similar notes: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected orthogonal vector excluded at 0.0 threshold, got %d matches", len(matches))
	}

	// Limit clips the result
	matches, err = repo.FindSimilar(ctx, testTenant, query, 0.2, 1)
	if err != nil {
		t.Fatalf("Failed to find similar notes: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match with limit 1, got %d", len(matches))
	}
}

func TestFindSimilarFiltered(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	notes := []*core.Note{
		{Tenant: testTenant, Content: "Budget spreadsheet", CreatedAt: now, Vector: []float32{1, 0, 0}, Tags: []string{"budget"}, Category: "finance"},
		{Tenant: testTenant, Content: "Standup notes", CreatedAt: now, Vector: []float32{0.9, 0.43589, 0}, Tags: []string{"meeting"}, Category: "work"},
		{Tenant: testTenant, Content: "Untagged", CreatedAt: now, Vector: []float32{0.95, 0.31225, 0}},
	}
	_, err = repo.AddNotes(ctx, notes...)
	if err != nil {
		t.Fatalf("Failed to add notes: %v", err)
	}

	query := []float32{1, 0, 0}

	// Category filter
	matches, err := repo.FindSimilarFiltered(ctx, testTenant, query, nil, "work", 0.2, 10)
	if err != nil {
		t.Fatalf("Failed filtered search: %v", err)
	}
	if len(matches) != 1 || matches[0].Note.Content != "Standup notes" {
		t.Fatalf("Expected only the work note, got %d matches", len(matches))
	}

	// Tag filter
	matches, err = repo.FindSimilarFiltered(ctx, testTenant, query, []string{"budget"}, "", 0.2, 10)
	if err != nil {
		t.Fatalf("Failed filtered search: %v", err)
	}
	if len(matches) != 1 || matches[0].Note.Content != "Budget spreadsheet" {
		t.Fatalf("Expected only the budget note, got %d matches", len(matches))
	}

	// Tag OR category widens the filter
	matches, err = repo.FindSimilarFiltered(ctx, testTenant, query, []string{"budget"}, "work", 0.2, 10)
	if err != nil {
		t.Fatalf("Failed filtered search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches with tag or category, got %d", len(matches))
	}

	// No filters behaves like FindSimilar
	matches, err = repo.FindSimilarFiltered(ctx, testTenant, query, nil, "", 0.2, 10)
	if err != nil {
		t.Fatalf("Failed filtered search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("Expected 3 matches without filters, got %d", len(matches))
	}
}

func TestSearchText(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	notes := []*core.Note{
		{Tenant: testTenant, Content: "Grocery list: milk, eggs, bread", CreatedAt: now.Add(-2 * time.Hour)},
		{Tenant: testTenant, Content: "Buy milk on the way home", CreatedAt: now.Add(-1 * time.Hour)},
		{Tenant: testTenant, Content: "Buy milk and eggs tomorrow", CreatedAt: now},
		{Tenant: testTenant, Content: "Car service appointment", CreatedAt: now},
	}
	_, err = repo.AddNotes(ctx, notes...)
	if err != nil {
		t.Fatalf("Failed to add notes: %v", err)
	}

	results, err := repo.SearchText(ctx, testTenant, "milk eggs", 10)
	if err != nil {
		t.Fatalf("Failed text search: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	// Two-keyword matches outrank single-keyword, newest first among equals
	if results[0].Content != "Buy milk and eggs tomorrow" {
		t.Errorf("Expected newest two-keyword match first, got '%s'", results[0].Content)
	}
	if results[1].Content != "Grocery list: milk, eggs, bread" {
		t.Errorf("Expected older two-keyword match second, got '%s'", results[1].Content)
	}
	if results[2].Content != "Buy milk on the way home" {
		t.Errorf("Expected single-keyword match last, got '%s'", results[2].Content)
	}

	// Exact phrase beats scattered keywords
	results, err = repo.SearchText(ctx, testTenant, "milk on the way", 10)
	if err != nil {
		t.Fatalf("Failed text search: %v", err)
	}
	if len(results) == 0 || results[0].Content != "Buy milk on the way home" {
		t.Fatalf("Expected phrase match first")
	}

	// Blank queries are rejected
	_, err = repo.SearchText(ctx, testTenant, "   ", 10)
	if err != storage.ErrInvalidQuery {
		t.Fatalf("Expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchText_Russian(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	notes := []*core.Note{
		{Tenant: testTenant, Content: "Купить молоко и хлеб", CreatedAt: now},
		{Tenant: testTenant, Content: "Записаться к врачу", CreatedAt: now},
	}
	_, err = repo.AddNotes(ctx, notes...)
	if err != nil {
		t.Fatalf("Failed to add notes: %v", err)
	}

	results, err := repo.SearchText(ctx, testTenant, "молоко", 10)
	if err != nil {
		t.Fatalf("Failed text search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "Купить молоко и хлеб" {
		t.Fatalf("Expected the Cyrillic note, got %d results", len(results))
	}
}

func TestUpdateEmbeddings(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	notes := []*core.Note{
		{Tenant: testTenant, Content: "Note 1", CreatedAt: now.Add(-time.Hour)},
		{Tenant: testTenant, Content: "Note 2", CreatedAt: now},
	}
	added, err := repo.AddNotes(ctx, notes...)
	if err != nil {
		t.Fatalf("Failed to add notes: %v", err)
	}

	pending, err := repo.NotesWithoutEmbedding(ctx, testTenant, 10)
	if err != nil {
		t.Fatalf("Failed to list pending notes: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending notes, got %d", len(pending))
	}
	// Newest first
	if pending[0].Content != "Note 2" {
		t.Errorf("Expected 'Note 2' first, got '%s'", pending[0].Content)
	}

	updates := []core.EmbeddingUpdate{
		{NoteID: added[0].Id, Vector: []float32{1, 0}},
		{NoteID: core.ID(9999), Vector: []float32{0, 1}}, // missing note
	}
	updated, err := repo.UpdateEmbeddings(ctx, testTenant, updates)
	if err != nil {
		t.Fatalf("Failed to update embeddings: %v", err)
	}
	if updated != 1 {
		t.Fatalf("Expected 1 update applied, got %d", updated)
	}

	pending, err = repo.NotesWithoutEmbedding(ctx, testTenant, 10)
	if err != nil {
		t.Fatalf("Failed to list pending notes: %v", err)
	}
	if len(pending) != 1 || pending[0].Id != added[1].Id {
		t.Fatalf("Expected only the second note pending, got %d", len(pending))
	}

	note, err := repo.GetNote(ctx, testTenant, added[0].Id)
	if err != nil {
		t.Fatalf("Failed to get note: %v", err)
	}
	if !note.HasVector() {
		t.Fatal("Expected vector to be persisted")
	}
}

func TestBulkLoadEmbeddings(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	// More notes than one merge chunk to exercise chunked transactions
	count := mergeChunkSize + 25
	notes := make([]*core.Note, count)
	for i := range notes {
		notes[i] = &core.Note{
			Tenant:    testTenant,
			Content:   fmt.Sprintf("Note %d", i),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
	}
	added, err := repo.AddNotes(ctx, notes...)
	if err != nil {
		t.Fatalf("Failed to add notes: %v", err)
	}

	updates := make([]core.EmbeddingUpdate, count)
	for i, note := range added {
		updates[i] = core.EmbeddingUpdate{NoteID: note.Id, Vector: []float32{1, 0, 0}}
	}

	loaded, err := repo.BulkLoadEmbeddings(ctx, testTenant, updates)
	if err != nil {
		t.Fatalf("Failed to bulk load embeddings: %v", err)
	}
	if loaded != count {
		t.Fatalf("Expected %d embeddings loaded, got %d", count, loaded)
	}

	pending, err := repo.NotesWithoutEmbedding(ctx, testTenant, count)
	if err != nil {
		t.Fatalf("Failed to list pending notes: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("Expected no pending notes after bulk load, got %d", len(pending))
	}

	// Every note now carries its vector
	matches, err := repo.FindSimilar(ctx, testTenant, []float32{1, 0, 0}, 0.5, count)
	if err != nil {
		t.Fatalf("Failed to find similar notes: %v", err)
	}
	if len(matches) != count {
		t.Fatalf("Expected %d matches, got %d", count, len(matches))
	}
}

func TestRefreshStats(t *testing.T) {
	repo, backend, err := NewMemoryRepository()
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	defer func() { repo.Close(); backend.Close() }()

	// In-memory mode has no value log to collect; must not error
	if err := repo.RefreshStats(context.Background()); err != nil {
		t.Fatalf("RefreshStats failed: %v", err)
	}
}
