package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
)

// bestMatch returns the index of the label that best matches query, or -1 when there are no labels.
// An in-order subsequence match wins. Otherwise every label is scored word by word, so typos and
// reordered words still find something; ties keep the earlier label.
func bestMatch(query string, labels []string) int {
	if len(labels) == 0 {
		return -1
	}
	if matches := fuzzy.Find(query, labels); len(matches) > 0 {
		return matches[0].Index
	}

	best, bestScore := 0, -1.0
	for i, label := range labels {
		if score := tokenSetScore(query, label); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// tokenSetScore is the mean, over the distinct words of query, of each word's closest
// similarity to a word of label. It ranges from 0 to 1.
func tokenSetScore(query, label string) float64 {
	queryWords := uniqueWords(query)
	labelWords := uniqueWords(label)
	if len(queryWords) == 0 || len(labelWords) == 0 {
		return 0
	}

	var total float64
	for _, q := range queryWords {
		closest := 0.0
		for _, l := range labelWords {
			closest = max(closest, similarity(q, l))
		}
		total += closest
	}
	return total / float64(len(queryWords))
}

// similarity is 1 minus the edit distance relative to the longer word
func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// uniqueWords case-folds s and splits it on anything that is not a letter or digit
func uniqueWords(s string) []string {
	words := strings.FieldsFunc(cases.Fold().String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	out := words[:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
