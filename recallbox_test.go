package recallbox

import (
	"context"
	"strings"
	"testing"

	"github.com/halcyonic/recallbox/ai/mock"
	"github.com/halcyonic/recallbox/core"
	"github.com/halcyonic/recallbox/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = core.TenantID(1)

func newTestAssistant(t *testing.T) (*Assistant, *mock.MockEmbedder, *mock.MockAnswerGenerator) {
	t.Helper()

	embedder := mock.NewMockEmbedder()
	generator := mock.NewMockAnswerGenerator()
	provider := mock.NewMockProviderWithServices(embedder, generator)

	assistant, err := Open("", WithInMemory(), WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { assistant.Close() })

	return assistant, embedder, generator
}

func TestOpen(t *testing.T) {
	t.Run("filesystem database", func(t *testing.T) {
		assistant, err := Open(t.TempDir(), WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		require.NotNil(t, assistant)

		assert.NotNil(t, assistant.NoteRepository())
		assert.NotNil(t, assistant.CheckpointRepository())
		assert.NotNil(t, assistant.Searcher())

		assert.NoError(t, assistant.Close())
	})

	t.Run("can create backfill pipeline", func(t *testing.T) {
		assistant, _, _ := newTestAssistant(t)

		pipeline, err := assistant.NewBackfillPipeline()
		require.NoError(t, err)
		require.NotNil(t, pipeline)
		pipeline.Release()
	})
}

func TestAddNote(t *testing.T) {
	ctx := context.Background()

	t.Run("stores embedded and auto-tagged note", func(t *testing.T) {
		assistant, _, _ := newTestAssistant(t)

		note, err := assistant.AddNote(ctx, testTenant, "meeting with the platform team", nil)
		require.NoError(t, err)
		require.NotZero(t, note.Id)
		assert.True(t, note.HasVector())
		assert.Equal(t, "work", note.Category)
		assert.Contains(t, note.Tags, "work")
	})

	t.Run("explicit options extend extraction", func(t *testing.T) {
		assistant, _, _ := newTestAssistant(t)

		note, err := assistant.AddNote(ctx, testTenant, "meeting notes", &AddNoteOptions{
			Tags:     []string{"Quarterly", "work"},
			Category: "planning",
			Metadata: map[string]string{"source": "cli"},
		})
		require.NoError(t, err)
		assert.Equal(t, "planning", note.Category)
		assert.Contains(t, note.Tags, "quarterly")
		assert.Equal(t, "cli", note.Metadata["source"])

		// Tag merge de-duplicates
		count := 0
		for _, tag := range note.Tags {
			if tag == "work" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("unreachable embedder leaves note pending", func(t *testing.T) {
		assistant, embedder, _ := newTestAssistant(t)
		embedder.Unavailable = true

		note, err := assistant.AddNote(ctx, testTenant, "plain note", nil)
		require.NoError(t, err)
		assert.False(t, note.HasVector())

		pending, err := assistant.NoteRepository().NotesWithoutEmbedding(ctx, testTenant, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, note.Id, pending[0].Id)
	})

	t.Run("validation failures surface", func(t *testing.T) {
		assistant, _, _ := newTestAssistant(t)

		_, err := assistant.AddNote(ctx, testTenant, "   ", nil)
		assert.ErrorIs(t, err, core.ErrInvalidNote)

		_, err = assistant.AddNote(ctx, 0, "content", nil)
		assert.ErrorIs(t, err, core.ErrMissingTenant)
	})
}

func TestAssistantSearch(t *testing.T) {
	ctx := context.Background()
	assistant, _, _ := newTestAssistant(t)

	_, err := assistant.AddNote(ctx, testTenant, "bought milk and eggs", nil)
	require.NoError(t, err)

	result, err := assistant.Search(ctx, testTenant, "milk", 10)
	require.NoError(t, err)
	require.NotEmpty(t, result.Notes)
	assert.Contains(t, result.Notes[0].Content, "milk")
}

func TestAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("answers from stored notes", func(t *testing.T) {
		assistant, _, generator := newTestAssistant(t)

		_, err := assistant.AddNote(ctx, testTenant, "the wifi password is hunter2", nil)
		require.NoError(t, err)

		answer, err := assistant.Ask(ctx, testTenant, "wifi password")
		require.NoError(t, err)
		assert.Contains(t, answer.Text, "answer to")
		require.NotEmpty(t, answer.Sources)
		assert.Contains(t, answer.Sources[0], "wifi password")
		assert.Contains(t, generator.LastContext, "hunter2")
	})

	t.Run("empty question", func(t *testing.T) {
		assistant, _, _ := newTestAssistant(t)

		_, err := assistant.Ask(ctx, testTenant, "   ")
		assert.ErrorIs(t, err, search.ErrEmptyQuery)
	})

	t.Run("nothing relevant yields fixed answer", func(t *testing.T) {
		assistant, _, generator := newTestAssistant(t)

		answer, err := assistant.Ask(ctx, testTenant, "anything at all")
		require.NoError(t, err)
		assert.Equal(t, noAnswerText, answer.Text)
		assert.Empty(t, answer.Sources)
		assert.Zero(t, generator.CallCount(), "no generation without grounding context")
	})

	t.Run("lexical fallback without embedder", func(t *testing.T) {
		assistant, embedder, _ := newTestAssistant(t)

		_, err := assistant.AddNote(ctx, testTenant, "dentist appointment on friday", nil)
		require.NoError(t, err)

		embedder.Unavailable = true

		answer, err := assistant.Ask(ctx, testTenant, "dentist appointment")
		require.NoError(t, err)
		assert.NotEqual(t, noAnswerText, answer.Text)
		require.NotEmpty(t, answer.Sources)
		assert.Contains(t, answer.Sources[0], "dentist")
	})

	t.Run("retrieval cached across asks", func(t *testing.T) {
		assistant, embedder, generator := newTestAssistant(t)

		_, err := assistant.AddNote(ctx, testTenant, "the meeting starts at noon", nil)
		require.NoError(t, err)
		baseline := embedder.CallCount()

		_, err = assistant.Ask(ctx, testTenant, "when does the meeting start")
		require.NoError(t, err)
		afterFirst := embedder.CallCount()
		assert.Greater(t, afterFirst, baseline)

		_, err = assistant.Ask(ctx, testTenant, "when does the meeting start")
		require.NoError(t, err)
		assert.Equal(t, afterFirst, embedder.CallCount(), "second ask must reuse cached retrieval")
		assert.Equal(t, 2, generator.CallCount(), "generation runs on every ask")
	})

	t.Run("long sources are truncated", func(t *testing.T) {
		assistant, _, _ := newTestAssistant(t)

		long := "wifi details " + strings.Repeat("x", 200)
		_, err := assistant.AddNote(ctx, testTenant, long, nil)
		require.NoError(t, err)

		answer, err := assistant.Ask(ctx, testTenant, "wifi details")
		require.NoError(t, err)
		require.NotEmpty(t, answer.Sources)
		assert.LessOrEqual(t, len([]rune(answer.Sources[0])), sourceSnippetRunes+3)
		assert.True(t, strings.HasSuffix(answer.Sources[0], "..."))
	})
}
