package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/halcyonic/recallbox/ai"
	"github.com/halcyonic/recallbox/core"
	"github.com/halcyonic/recallbox/storage"
)

const (
	// DefaultSearchLimit caps the result set when the caller passes no limit.
	DefaultSearchLimit = 20

	// HybridCacheTTL is the entry lifetime for fused search results; longer
	// than the cache default because a fused result cost two retrieval paths.
	HybridCacheTTL = 10 * time.Minute

	vectorCandidateLimit  = 100
	vectorSimilarityFloor = 0.2
	lexicalCandidateLimit = 50
)

// Searcher provides hybrid semantic and lexical search over notes.
// Vector and lexical retrieval run concurrently; their result sets are fused
// with adaptive weighting and served through the result cache.
type Searcher struct {
	vector   storage.VectorSearcher
	lexical  storage.LexicalSearcher
	embedder ai.Embedder
	cache    *ResultCache
	monitor  SearchMonitor
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCache sets the result cache instance.
// Default is a fresh cache with default TTL and cap.
func WithCache(cache *ResultCache) Option {
	return func(s *Searcher) error {
		if cache == nil {
			return fmt.Errorf("cache must not be nil")
		}
		s.cache = cache
		return nil
	}
}

// WithMonitor sets the search monitor receiving stage callbacks.
// Default is a no-op monitor.
func WithMonitor(monitor SearchMonitor) Option {
	return func(s *Searcher) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		s.monitor = monitor
		return nil
	}
}

// NewSearcher creates a new hybrid searcher over the given repository.
func NewSearcher(
	repository storage.NoteRepository,
	provider ai.Provider,
	opts ...Option,
) (*Searcher, error) {
	if repository == nil {
		return nil, ErrNoteRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	cache, err := NewResultCache()
	if err != nil {
		return nil, err
	}

	s := &Searcher{
		vector:   repository,
		lexical:  repository,
		embedder: provider.Embedder(),
		cache:    cache,
		monitor:  &noopMonitor{},
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Cache exposes the searcher's result cache, shared with the answer flow.
func (s *Searcher) Cache() *ResultCache {
	return s.cache
}

// scoredNote aggregates per-path scores for one candidate during fusion.
type scoredNote struct {
	note        *core.Note
	vectorScore float64
	textScore   float64
	finalScore  float64
}

// Search returns the fused, ranked notes matching the query for a tenant.
//
// The vector and lexical paths run concurrently. Either path may fail or
// degrade (an unreachable embedder yields zero vector candidates, not an
// error); only both paths failing aborts the query. Zero fused candidates
// is an empty result, not an error.
func (s *Searcher) Search(ctx context.Context, tenant core.TenantID, query string, limit int, useCache bool) (*core.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	start := time.Now()
	s.monitor.Start(query)

	key := s.cache.Key(tenant, query)
	if useCache {
		if cached, ok := s.cache.Get(key); ok {
			s.logger.Debug("serving search from cache", "tenant", tenant, "key", key)
			s.monitor.CacheHit(key)
			go s.monitor.Finish(cached, time.Since(start))
			return cached, nil
		}
	}

	// Fan out both retrieval paths; fusion waits for both to settle.
	var (
		wg sync.WaitGroup

		vectorMatches []core.Match
		vectorErr     error

		lexicalNotes []*core.Note
		lexicalErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorMatches, vectorErr = s.vectorCandidates(ctx, tenant, query)
	}()
	go func() {
		defer wg.Done()
		lexicalNotes, lexicalErr = s.lexical.SearchText(ctx, tenant, query, lexicalCandidateLimit)
	}()
	wg.Wait()

	if vectorErr != nil && lexicalErr != nil {
		return nil, fmt.Errorf("%w: vector: %w; lexical: %w", ErrRetrievalFailed, vectorErr, lexicalErr)
	}
	if vectorErr != nil {
		s.logger.Warn("vector path failed, using lexical results only", "err", vectorErr)
	}
	if lexicalErr != nil {
		s.logger.Warn("lexical path failed, using vector results only", "err", lexicalErr)
	}

	s.monitor.AfterVectorSearch(matchIDs(vectorMatches))
	s.monitor.AfterLexicalSearch(noteIDs(lexicalNotes))

	fused := fuse(vectorMatches, lexicalNotes)
	s.monitor.AfterFusion(len(fused))

	totalFound := len(fused)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	notes := make([]*core.Note, len(fused))
	for i, sn := range fused {
		notes[i] = sn.note
	}
	result := &core.SearchResult{Notes: notes, TotalFound: totalFound}

	if useCache && len(result.Notes) > 0 {
		s.cache.Put(key, result, HybridCacheTTL)
	}
	// Telemetry must never block the response
	go s.monitor.Finish(result, time.Since(start))

	return result, nil
}

// vectorCandidates embeds the query and retrieves nearest neighbors.
// An unavailable embedder or an empty vector degrades to zero candidates.
func (s *Searcher) vectorCandidates(ctx context.Context, tenant core.TenantID, query string) ([]core.Match, error) {
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Warn("embedding unavailable, skipping vector path", "err", err)
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, nil
	}
	return s.vector.FindSimilar(ctx, tenant, vector, vectorSimilarityFloor, vectorCandidateLimit)
}

// fuse merges the two candidate sets into one ranked list.
//
// Vector candidates seed entries at similarity x 0.7. Lexical rank r of n
// converts to a text score 1 - r/n; lexical-only entries score text x 0.3.
// Candidates present in both paths get adaptive weights via fusedScore.
// Ordering is final score descending, note id ascending on ties.
func fuse(vectorMatches []core.Match, lexicalNotes []*core.Note) []*scoredNote {
	byID := make(map[core.ID]*scoredNote, len(vectorMatches)+len(lexicalNotes))

	for _, match := range vectorMatches {
		byID[match.Note.Id] = &scoredNote{
			note:        match.Note,
			vectorScore: match.Score,
			finalScore:  match.Score * 0.7,
		}
	}

	total := len(lexicalNotes)
	for rank, note := range lexicalNotes {
		textScore := 1.0 - float64(rank)/float64(total)
		if entry, ok := byID[note.Id]; ok {
			entry.textScore = textScore
			entry.finalScore = fusedScore(entry.vectorScore, textScore)
		} else {
			byID[note.Id] = &scoredNote{
				note:       note,
				textScore:  textScore,
				finalScore: textScore * 0.3,
			}
		}
	}

	fused := make([]*scoredNote, 0, len(byID))
	for _, sn := range byID {
		fused = append(fused, sn)
	}
	slices.SortFunc(fused, func(a, b *scoredNote) int {
		if a.finalScore > b.finalScore {
			return -1
		}
		if a.finalScore < b.finalScore {
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
	return fused
}

// fusedScore weights a candidate present in both retrieval paths.
// A dominant path gets more weight; two strong paths split evenly.
func fusedScore(vectorScore, textScore float64) float64 {
	var wv, wt float64
	switch {
	case vectorScore > 0.8:
		wv, wt = 0.8, 0.2
	case textScore > 0.8:
		wv, wt = 0.3, 0.7
	case vectorScore > 0.5 && textScore > 0.5:
		wv, wt = 0.5, 0.5
	default:
		wv, wt = 0.7, 0.3
	}
	return vectorScore*wv + textScore*wt
}

func matchIDs(matches []core.Match) []core.ID {
	ids := make([]core.ID, len(matches))
	for i, m := range matches {
		ids[i] = m.Note.Id
	}
	return ids
}

func noteIDs(notes []*core.Note) []core.ID {
	ids := make([]core.ID, len(notes))
	for i, n := range notes {
		ids[i] = n.Id
	}
	return ids
}
