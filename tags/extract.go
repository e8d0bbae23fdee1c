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


// Package tags derives tags and a category from note content with local
// pattern matching, without any model call. Patterns are bilingual
// (Russian/English) to match the note corpus.
package tags

import (
	"strings"
	"unicode/utf8"
)

// maxWordTags caps how many repeated-word tags a note gets on top of its
// category tags.
const maxWordTags = 3

type categoryPattern struct {
	name     string
	keywords []string
}

// Ordered: the first matching category wins.
var categoryPatterns = []categoryPattern{
	{"work", []string{"встреча", "проект", "задача", "работа", "meeting", "project", "task"}},
	{"personal", []string{"личное", "семья", "друзья", "хобби", "personal", "family"}},
	{"finance", []string{"деньги", "бюджет", "расходы", "доходы", "money", "budget"}},
	{"tech", []string{"код", "программирование", "разработка", "kotlin", "api", "база данных"}},
	{"health", []string{"здоровье", "спорт", "врач", "лекарство", "health", "doctor"}},
}

// ExtractTagsAndCategory derives tags and a category from note content.
// Every matching category contributes a tag; the first match becomes the
// category (empty string when nothing matches). Words longer than three
// runes that occur more than once are added as tags, up to maxWordTags,
// in order of first occurrence.
func ExtractTagsAndCategory(content string) ([]string, string) {
	contentLower := strings.ToLower(content)

	var extracted []string
	seen := make(map[string]struct{})
	category := ""

	for _, pattern := range categoryPatterns {
		for _, keyword := range pattern.keywords {
			if strings.Contains(contentLower, keyword) {
				if category == "" {
					category = pattern.name
				}
				if _, ok := seen[pattern.name]; !ok {
					seen[pattern.name] = struct{}{}
					extracted = append(extracted, pattern.name)
				}
				break
			}
		}
	}

	words := strings.Fields(content)
	counts := make(map[string]int, len(words))
	order := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) <= 3 {
			continue
		}
		normalized := strings.Trim(strings.ToLower(word), ",.!?")
		if normalized == "" {
			continue
		}
		if counts[normalized] == 0 {
			order = append(order, normalized)
		}
		counts[normalized]++
	}

	added := 0
	for _, word := range order {
		if added == maxWordTags {
			break
		}
		if counts[word] < 2 {
			continue
		}
		added++
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		extracted = append(extracted, word)
	}

	return extracted, category
}
