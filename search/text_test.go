package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{
			name:     "filters short words and stop words",
			query:    "what is the name of my cat",
			expected: []string{"name", "cat"},
		},
		{
			name:     "lowercases and splits on punctuation",
			query:    "Meeting-Notes, Project!",
			expected: []string{"meeting", "notes", "project"},
		},
		{
			name:     "russian stop words filtered",
			query:    "как зовут мою собаку",
			expected: []string{"зовут", "мою", "собаку"},
		},
		{
			name:     "empty query",
			query:    "",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractKeywords(tt.query))
		})
	}
}

func TestTrigramJaccard(t *testing.T) {
	t.Run("identical strings", func(t *testing.T) {
		assert.InDelta(t, 1.0, trigramJaccard("hello world", "hello world"), 0.0001)
	})

	t.Run("disjoint strings", func(t *testing.T) {
		assert.InDelta(t, 0.0, trigramJaccard("aaaa", "bbbb"), 0.0001)
	})

	t.Run("too short yields zero", func(t *testing.T) {
		assert.InDelta(t, 0.0, trigramJaccard("ab", "hello"), 0.0001)
		assert.InDelta(t, 0.0, trigramJaccard("hello", "ab"), 0.0001)
	})

	t.Run("partial overlap", func(t *testing.T) {
		sim := trigramJaccard("hello world", "hello there")
		assert.Greater(t, sim, 0.0)
		assert.Less(t, sim, 1.0)
	})
}

func TestTextRelevance(t *testing.T) {
	t.Run("exact substring scores one", func(t *testing.T) {
		score := textRelevance("remember to buy milk today", "buy milk")
		assert.InDelta(t, 1.0, score, 0.0001)
	})

	t.Run("keyword overlap provides a floor", func(t *testing.T) {
		score := textRelevance("milk is in the fridge", "milk bread butter")
		// One of three keywords present
		assert.GreaterOrEqual(t, score, 1.0/3.0)
	})

	t.Run("synonym match contributes", func(t *testing.T) {
		// Query asks for a name, the note uses the Russian verb form
		withSynonym := textRelevance("его зовут Марк", "name")
		without := textRelevance("ему пять лет", "name")
		assert.Greater(t, withSynonym, without)
	})

	t.Run("no match scores zero", func(t *testing.T) {
		assert.InDelta(t, 0.0, textRelevance("вишнёвый пирог", "quarterly report"), 0.05)
	})
}

func TestRecencyBoost(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		age      time.Duration
		expected float64
	}{
		{"one hour old", time.Hour, 1.0},
		{"one day old", 24 * time.Hour, 1.0},
		{"three days old", 72 * time.Hour, 0.5},
		{"one week old", 168 * time.Hour, 0.5},
		{"two weeks old", 336 * time.Hour, 0.2},
		{"thirty days old", 720 * time.Hour, 0.2},
		{"sixty days old", 1440 * time.Hour, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, recencyBoost(now.Add(-tt.age), now))
		})
	}

	t.Run("zero timestamp yields zero", func(t *testing.T) {
		assert.Equal(t, 0.0, recencyBoost(time.Time{}, now))
	})
}

func TestEstimateTokens(t *testing.T) {
	t.Run("ascii uses four chars per token", func(t *testing.T) {
		assert.Equal(t, 10, estimateTokens("0123456789012345678901234567890123456789"))
	})

	t.Run("non-ascii uses denser ratio", func(t *testing.T) {
		// 10 Cyrillic runes at 2.5 chars/token
		assert.Equal(t, 4, estimateTokens("привет мир"))
	})

	t.Run("empty string", func(t *testing.T) {
		assert.Equal(t, 0, estimateTokens(""))
	})
}

func TestTruncateToTokens(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateToTokens("hello", 100))
	})

	t.Run("cuts at word boundary with ellipsis", func(t *testing.T) {
		text := "alpha beta gamma delta epsilon zeta eta theta"
		got := truncateToTokens(text, 5) // ~20 chars
		assert.True(t, len(got) < len(text))
		assert.True(t, len(got) > 3)
		assert.Contains(t, got, "...")
		// No mid-word cut: everything before the ellipsis is whole words
		trimmed := got[:len(got)-3]
		assert.Contains(t, text, trimmed)
		assert.NotContains(t, trimmed, "  ")
	})
}
