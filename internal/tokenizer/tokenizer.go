// Package tokenizer normalizes text into the term sequences used for indexing and querying.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on every rune that is not a letter
// or digit. Empty terms are dropped. The result is deterministic, and the
// same function must be used at index build time and at query time.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	fields := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// TermFrequencies counts occurrences of each term in tokens
func TermFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, term := range tokens {
		tf[term]++
	}
	return tf
}

// Unique returns the distinct terms of tokens in first-occurrence order
func Unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, term := range tokens {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
