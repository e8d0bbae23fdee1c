package ai

import "errors"

var (
	// ErrEmbeddingUnavailable indicates the embedding service could not be
	// reached or returned no usable vector. Retrieval degrades to lexical
	// search when this occurs.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationFailed indicates the answer generation service failed.
	ErrGenerationFailed = errors.New("answer generation failed")
)
