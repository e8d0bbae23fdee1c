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


package core

import (
	"fmt"
	"strings"
	"time"
)

// ValidateNote validates a Note according to domain rules.
//
// Validation rules:
//   - Tenant must be set
//   - Content must not be empty after trimming
//   - CreatedAt must not be in the future
//   - Vector must be empty or exactly vectorDim components
//
// NOT validated (populated later):
//   - ID (0 is valid from database sequences)
//   - UpdatedAt (set by storage)
func ValidateNote(note *Note, vectorDim int) error {
	if note == nil {
		return fmt.Errorf("%w: note is nil", ErrInvalidNote)
	}

	if note.Tenant == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidNote, ErrMissingTenant)
	}

	if strings.TrimSpace(note.Content) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNote, ErrEmptyContent)
	}

	if !IsValidTimestamp(note.CreatedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidNote, ErrInvalidTimestamp)
	}

	if len(note.Vector) != 0 && len(note.Vector) != vectorDim {
		return fmt.Errorf("%w: %w: got %d, want %d",
			ErrInvalidNote, ErrVectorDimension, len(note.Vector), vectorDim)
	}

	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}

// NormalizeTags lowercases, trims, and de-duplicates a tag list,
// preserving first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		cleaned := strings.ToLower(strings.TrimSpace(tag))
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		normalized = append(normalized, cleaned)
	}
	return normalized
}
