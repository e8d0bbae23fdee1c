package search

import (
	"time"

	"github.com/halcyonic/recallbox/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	CacheHit(key string)
	AfterVectorSearch(ids []core.ID)
	AfterLexicalSearch(ids []core.ID)
	AfterFusion(candidates int)
	Finish(result *core.SearchResult, elapsed time.Duration)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                  {}
func (n *noopMonitor) CacheHit(_ string)                               {}
func (n *noopMonitor) AfterVectorSearch(_ []core.ID)                   {}
func (n *noopMonitor) AfterLexicalSearch(_ []core.ID)                  {}
func (n *noopMonitor) AfterFusion(_ int)                               {}
func (n *noopMonitor) Finish(_ *core.SearchResult, _ time.Duration)    {}
