package backfill

import "errors"

var (
	// ErrSourceRequired is returned when NewPipeline is called without a source.
	ErrSourceRequired = errors.New("backfill source is required")

	// ErrAIProviderRequired is returned when NewPipeline is called without a provider.
	ErrAIProviderRequired = errors.New("AI provider is required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
