package mock

import (
	"context"
	"fmt"

	"github.com/halcyonic/recallbox/ai"
)

// MockAnswerGenerator is a test double for ai.AnswerGenerator.
// It allows custom behavior injection via function fields.
type MockAnswerGenerator struct {
	// GenerateAnswerFunc is called by GenerateAnswer if set.
	// If nil, uses default canned behavior.
	GenerateAnswerFunc func(ctx context.Context, question, noteContext string) (string, error)

	// Unavailable makes every call fail with ai.ErrGenerationFailed.
	Unavailable bool

	callCount int

	// LastQuestion and LastContext record the most recent call arguments.
	LastQuestion string
	LastContext  string
}

// NewMockAnswerGenerator creates a mock generator with default canned behavior.
// Note: Returns concrete type to allow test assertions via GetMockGenerator().
func NewMockAnswerGenerator() *MockAnswerGenerator {
	return &MockAnswerGenerator{}
}

// GenerateAnswer returns a canned answer that echoes the question and
// reports whether any context was supplied.
func (m *MockAnswerGenerator) GenerateAnswer(ctx context.Context, question, noteContext string) (string, error) {
	m.callCount++
	m.LastQuestion = question
	m.LastContext = noteContext

	if m.Unavailable {
		return "", ai.ErrGenerationFailed
	}
	if m.GenerateAnswerFunc != nil {
		return m.GenerateAnswerFunc(ctx, question, noteContext)
	}

	if noteContext == "" {
		return "I could not find anything relevant in your notes.", nil
	}
	return fmt.Sprintf("Based on your notes: answer to %q", question), nil
}

// CallCount returns the number of times GenerateAnswer was called.
func (m *MockAnswerGenerator) CallCount() int {
	return m.callCount
}

// Reset clears the call count and custom behavior.
func (m *MockAnswerGenerator) Reset() {
	m.callCount = 0
	m.Unavailable = false
	m.GenerateAnswerFunc = nil
	m.LastQuestion = ""
	m.LastContext = ""
}
