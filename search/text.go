package search

import (
	"strings"
	"time"
	"unicode"
)

// Stop words filtered out of query keyword sets, English and Russian.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"you": true, "this": true, "that": true, "with": true, "have": true,
	"not": true, "but": true, "from": true, "what": true, "when": true,
	"where": true, "который": true, "которая": true, "это": true,
	"как": true, "что": true, "где": true, "когда": true, "или": true,
	"для": true, "при": true, "его": true, "она": true, "они": true,
	"мой": true, "моя": true, "мне": true, "меня": true, "есть": true,
}

// Fixed bilingual synonym groups used by the re-ranker. A keyword hitting
// any member of a group counts as a hit on the whole group.
var synonymGroups = [][]string{
	{"имя", "name", "зовут", "называют"},
	{"возраст", "age", "лет", "года"},
}

// extractKeywords tokenizes the query for matching: lowercase, split on
// non-letter/non-digit runes, keep words longer than two characters that
// are not stop words.
func extractKeywords(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	keywords := make([]string, 0, len(words))
	for _, word := range words {
		if len([]rune(word)) > 2 && !stopWords[word] {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

// keywordOverlapRatio is the fraction of keywords found as substrings of
// the lowercased content.
func keywordOverlapRatio(contentLower string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(contentLower, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// trigramJaccard computes the Jaccard index over character 3-grams.
// Either string shorter than three runes yields 0.
func trigramJaccard(a, b string) float64 {
	aGrams := trigrams(a)
	bGrams := trigrams(b)
	if len(aGrams) == 0 || len(bGrams) == 0 {
		return 0
	}

	intersection := 0
	for g := range aGrams {
		if bGrams[g] {
			intersection++
		}
	}
	union := len(aGrams) + len(bGrams) - intersection
	return float64(intersection) / float64(union)
}

func trigrams(s string) map[string]bool {
	runes := []rune(s)
	if len(runes) < 3 {
		return nil
	}
	grams := make(map[string]bool, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		grams[string(runes[i:i+3])] = true
	}
	return grams
}

// synonymOverlapRatio counts keywords whose synonym group is represented
// in the content, divided by the keyword-set size.
func synonymOverlapRatio(contentLower string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		for _, group := range synonymGroups {
			if !containsWord(group, kw) {
				continue
			}
			for _, syn := range group {
				if syn != kw && strings.Contains(contentLower, syn) {
					hits++
					break
				}
			}
			break
		}
	}
	return float64(hits) / float64(len(keywords))
}

func containsWord(words []string, w string) bool {
	for _, cand := range words {
		if cand == w {
			return true
		}
	}
	return false
}

// textRelevance scores how well content matches the query, in [0, 1].
// The best of three signals wins: an exact substring match, a blend of
// keyword/trigram/synonym overlap, or the raw keyword overlap as a floor.
func textRelevance(content, query string) float64 {
	contentLower := strings.ToLower(content)
	queryLower := strings.ToLower(strings.TrimSpace(query))
	keywords := extractKeywords(queryLower)

	if queryLower != "" && strings.Contains(contentLower, queryLower) {
		return 1.0
	}

	overlap := keywordOverlapRatio(contentLower, keywords)
	blended := 0.5*overlap +
		0.3*trigramJaccard(contentLower, queryLower) +
		0.2*synonymOverlapRatio(contentLower, keywords)

	return max(blended, overlap)
}

// recencyBoost maps note age to a boost factor. Zero timestamps get no boost.
func recencyBoost(createdAt, now time.Time) float64 {
	if createdAt.IsZero() || createdAt.After(now) {
		return 0
	}
	age := now.Sub(createdAt)
	switch {
	case age <= 24*time.Hour:
		return 1.0
	case age <= 168*time.Hour:
		return 0.5
	case age <= 720*time.Hour:
		return 0.2
	default:
		return 0
	}
}

// estimateTokens approximates the token count of text for budget purposes.
// Non-ASCII text tokenizes denser, so it uses a smaller chars-per-token ratio.
func estimateTokens(text string) int {
	chars := len([]rune(text))
	return int(float64(chars) / charsPerToken(text))
}

func charsPerToken(text string) float64 {
	for _, r := range text {
		if r > unicode.MaxASCII {
			return 2.5
		}
	}
	return 4.0
}

// truncateToTokens cuts text at a word boundary so that its estimated token
// count fits the budget, appending an ellipsis. Text already within the
// budget is returned unchanged.
func truncateToTokens(text string, tokenBudget int) string {
	if estimateTokens(text) <= tokenBudget {
		return text
	}

	charBudget := int(float64(tokenBudget) * charsPerToken(text))
	runes := []rune(text)
	if charBudget >= len(runes) {
		return text
	}
	if charBudget < 1 {
		charBudget = 1
	}

	cut := charBudget
	for i := charBudget; i > 0; i-- {
		if unicode.IsSpace(runes[i-1]) {
			cut = i - 1
			break
		}
	}
	if cut == 0 {
		cut = charBudget
	}
	return strings.TrimRight(string(runes[:cut]), " \t\n") + "..."
}
