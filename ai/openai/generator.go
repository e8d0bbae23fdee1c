// Copyright 2025 Halcyonic Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/halcyonic/recallbox/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// AnswerGenerator implements ai.AnswerGenerator using OpenAI-compatible chat APIs.
type AnswerGenerator struct {
	client llms.Model
	logger *slog.Logger
}

// newAnswerGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newAnswerGenerator(config *ai.Config) (*AnswerGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create OpenAI client configured for chat
	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.GeneratorHost),
		openai.WithToken("none"),
		openai.WithModel(config.GeneratorModel),
	)
	if err != nil {
		return nil, err
	}

	return &AnswerGenerator{
		client: client,
		logger: slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewAnswerGenerator creates a new answer generator using the provided configuration.
//
// Returns ai.AnswerGenerator interface to enforce abstraction.
func NewAnswerGenerator(config *ai.Config) (ai.AnswerGenerator, error) {
	return newAnswerGenerator(config)
}

// GenerateAnswer answers the question using only the supplied note context.
func (g *AnswerGenerator) GenerateAnswer(ctx context.Context, question, noteContext string) (string, error) {
	g.logger.Debug("generating answer",
		"question_length", len(question),
		"context_length", len(noteContext))

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(answerSystemPrompt),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(buildAnswerPrompt(question, noteContext)),
			},
		},
	}

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		g.logger.Error("failed to generate answer", "err", err)
		return "", fmt.Errorf("%w: %w", ai.ErrGenerationFailed, err)
	}

	if len(response.Choices) < 1 {
		g.logger.Warn("no choices returned from model")
		return "", ai.ErrGenerationFailed
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}
