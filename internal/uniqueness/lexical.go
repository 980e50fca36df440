package uniqueness

import (
	"log/slog"
	"strings"
	"unicode"
)

const significantTokenMinLen = 3

// significantTokens lowercases text and keeps words longer than three
// characters; short filler words carry no dedup signal.
func significantTokens(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) > significantTokenMinLen {
			tokens[w] = struct{}{}
		}
	}
	return tokens
}

// overlapRatio is the share of the candidate's significant tokens that also
// appear in other.
func overlapRatio(candidate map[string]struct{}, other string) float64 {
	if len(candidate) == 0 {
		return 0
	}

	otherTokens := significantTokens(other)
	shared := 0
	for t := range candidate {
		if _, ok := otherTokens[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(candidate))
}

// IsUnique runs the lexical overlap check against every existing take in the
// candidate's category. A single overlap above the configured maximum rejects
// the candidate. Pure function, no network.
func (f *Filter) IsUnique(candidateText, category string, existing []Existing) bool {
	tokens := significantTokens(candidateText)

	for _, take := range existing {
		if take.Category != category {
			continue
		}
		if ratio := overlapRatio(tokens, take.Text); ratio > f.cfg.LexicalOverlapMax {
			slog.Debug("[UniquenessFilter] Lexical overlap too high",
				slog.String("category", category),
				slog.Float64("ratio", ratio))
			return false
		}
	}
	return true
}
