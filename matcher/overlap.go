// Package matcher resolves supplier products to Amazon listings, preferring
// identifier (EAN) search over fuzzy title search, and grades the result.
package matcher

import "strings"

// TitleOverlap scores how much of the supplier title's vocabulary appears in
// the candidate title: |tokens(supplier) ∩ tokens(candidate)| over
// |tokens(supplier)|. Case-insensitive, punctuation stripped.
func TitleOverlap(supplierTitle, candidateTitle string) float64 {
	supplier := tokenize(supplierTitle)
	if len(supplier) == 0 {
		return 0
	}
	candidate := make(map[string]struct{})
	for _, token := range tokenize(candidateTitle) {
		candidate[token] = struct{}{}
	}

	matched := 0
	seen := make(map[string]struct{})
	for _, token := range supplier {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if _, ok := candidate[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(seen))
}

func tokenize(title string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, title)
	return strings.Fields(cleaned)
}
