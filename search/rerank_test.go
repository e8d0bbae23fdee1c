package search

import (
	"strings"
	"testing"
	"time"

	"github.com/halcyonic/recallbox/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReranker(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		r, err := NewReranker()
		require.NoError(t, err)
		assert.Equal(t, DefaultTopN, r.topN)
	})

	t.Run("custom top N", func(t *testing.T) {
		r, err := NewReranker(WithTopN(3))
		require.NoError(t, err)
		assert.Equal(t, 3, r.topN)
	})

	t.Run("invalid top N", func(t *testing.T) {
		_, err := NewReranker(WithTopN(0))
		assert.Error(t, err)
	})
}

func TestRerank(t *testing.T) {
	r, err := NewReranker()
	require.NoError(t, err)

	now := time.Now().UTC()

	t.Run("empty candidates", func(t *testing.T) {
		assert.Empty(t, r.Rerank(nil, "query"))
	})

	t.Run("returns at most top N", func(t *testing.T) {
		candidates := make([]core.Match, 10)
		for i := range candidates {
			candidates[i] = core.Match{
				Note:  &core.Note{Id: core.ID(i + 1), Content: "note", CreatedAt: now},
				Score: 0.5,
			}
		}
		assert.Len(t, r.Rerank(candidates, "note"), DefaultTopN)
	})

	t.Run("recency breaks content ties", func(t *testing.T) {
		fresh := &core.Note{Id: 1, Content: "dentist appointment", CreatedAt: now.Add(-time.Hour)}
		stale := &core.Note{Id: 2, Content: "dentist appointment", CreatedAt: now.Add(-45 * 24 * time.Hour)}

		ranked := r.Rerank([]core.Match{
			{Note: stale, Score: 0.6},
			{Note: fresh, Score: 0.6},
		}, "dentist")

		require.Len(t, ranked, 2)
		assert.Equal(t, fresh, ranked[0])
		assert.Equal(t, stale, ranked[1])
	})

	t.Run("strong text match outranks weak vector match", func(t *testing.T) {
		phraseHit := &core.Note{Id: 1, Content: "the wifi password is hunter2", CreatedAt: now}
		unrelated := &core.Note{Id: 2, Content: "grocery run on saturday", CreatedAt: now}

		ranked := r.Rerank([]core.Match{
			{Note: unrelated, Score: 0.55},
			{Note: phraseHit, Score: 0.5},
		}, "wifi password")

		require.Len(t, ranked, 2)
		assert.Equal(t, phraseHit, ranked[0])
	})
}

func TestRerankWeights(t *testing.T) {
	t.Run("high vector score", func(t *testing.T) {
		wv, wt, wr := rerankWeights(0.9, 0.1)
		assert.Equal(t, []float64{0.7, 0.2, 0.1}, []float64{wv, wt, wr})
	})

	t.Run("high text score", func(t *testing.T) {
		wv, wt, wr := rerankWeights(0.5, 0.9)
		assert.Equal(t, []float64{0.3, 0.6, 0.1}, []float64{wv, wt, wr})
	})

	t.Run("balanced", func(t *testing.T) {
		wv, wt, wr := rerankWeights(0.5, 0.5)
		assert.Equal(t, []float64{0.5, 0.35, 0.15}, []float64{wv, wt, wr})
	})
}

func TestBuildContext(t *testing.T) {
	r, err := NewReranker()
	require.NoError(t, err)

	t.Run("empty notes", func(t *testing.T) {
		assert.Equal(t, "", r.BuildContext(nil, "question", 2000))
	})

	t.Run("all notes fit", func(t *testing.T) {
		notes := []*core.Note{
			{Id: 1, Content: "first note"},
			{Id: 2, Content: "second note"},
		}
		got := r.BuildContext(notes, "note", 2000)
		assert.Contains(t, got, "- first note\n")
		assert.Contains(t, got, "- second note\n")
	})

	t.Run("most relevant first", func(t *testing.T) {
		notes := []*core.Note{
			{Id: 1, Content: "completely unrelated entry"},
			{Id: 2, Content: "the meeting starts at noon"},
		}
		got := r.BuildContext(notes, "meeting starts", 2000)
		first := strings.Index(got, "meeting starts at noon")
		second := strings.Index(got, "completely unrelated")
		require.GreaterOrEqual(t, first, 0)
		require.GreaterOrEqual(t, second, 0)
		assert.Less(t, first, second)
	})

	t.Run("budget truncates at word boundary", func(t *testing.T) {
		long := strings.Repeat("word ", 400) // ~500 tokens
		notes := []*core.Note{
			{Id: 1, Content: "short relevant note about cats"},
			{Id: 2, Content: strings.TrimSpace(long)},
		}
		got := r.BuildContext(notes, "cats", 100)
		assert.Contains(t, got, "short relevant note about cats")
		// The long note is truncated, not dropped: enough budget remained
		assert.Contains(t, got, "...")
		assert.LessOrEqual(t, estimateTokens(got), 110)
	})

	t.Run("tiny remaining budget drops instead of truncating", func(t *testing.T) {
		filler := strings.Repeat("alpha ", 59) // ~90 tokens of a 100 budget
		notes := []*core.Note{
			{Id: 1, Content: strings.TrimSpace(filler) + " cats"},
			{Id: 2, Content: strings.Repeat("beta ", 100)},
		}
		got := r.BuildContext(notes, "cats", 100)
		assert.NotContains(t, got, "beta")
	})
}
