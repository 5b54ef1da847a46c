package matching

import (
	"strings"
	"unicode"
)

// diacriticFold maps the latin diacritics seen in counterparty names to
// their ASCII base. Bank descriptors rarely go beyond latin-1.
var diacriticFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o', 'ø': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n', 'ß': 's',
}

// NormalizeName lowercases, folds diacritics and strips punctuation so that
// "Café Motta, LLC" and "CAFE MOTTA LLC" compare equal.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if folded, ok := diacriticFold[r]; ok {
			r = folded
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// nameTokens splits a normalized name into words of three or more runes;
// shorter tokens ("of", "co") carry no matching signal.
func nameTokens(normalized string) []string {
	fields := strings.Fields(normalized)
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// NameSimilarity scores two counterparty names in [0,1]. Full containment of
// one normalized name in the other is a strong signal; otherwise the score
// is the share of overlapping significant words. Missing names are neutral
// rather than disqualifying.
func NameSimilarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0.5
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.9
	}

	ta, tb := nameTokens(na), nameTokens(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	seen := make(map[string]bool, len(ta))
	for _, tok := range ta {
		seen[tok] = true
	}
	overlap := 0
	for _, tok := range tb {
		if seen[tok] {
			overlap++
		}
	}
	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}
	return float64(overlap) / float64(smaller)
}
