package availability

import (
	"strings"
	"unicode"
)

var noiseTokens = map[string]struct{}{
	"clean":      {},
	"deluxe":     {},
	"edition":    {},
	"edit":       {},
	"explicit":   {},
	"feat":       {},
	"featuring":  {},
	"ft":         {},
	"live":       {},
	"mix":        {},
	"mono":       {},
	"radio":      {},
	"remaster":   {},
	"remastered": {},
	"stereo":     {},
	"version":    {},
}

// Normalize lowercases name, drops bracketed segments such as "(2009
// Remaster)", collapses punctuation to single spaces and removes noise tokens.
func Normalize(name string) string {
	if name == "" {
		return ""
	}

	lower := strings.ToLower(name)
	filtered := stripBracketedSegments(lower)
	tokens := strings.Fields(cleanSeparators(filtered))

	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, drop := noiseTokens[token]; drop {
			continue
		}
		cleaned = append(cleaned, token)
	}

	return strings.Join(cleaned, " ")
}

// NamesMatch is the fuzzy, bidirectional name comparison: a and b match when
// they are equal after normalization or when either one contains the other
// on token boundaries. Empty names never match.
func NamesMatch(a, b string) bool {
	na, nb := matchKey(a), matchKey(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	pa, pb := " "+na+" ", " "+nb+" "
	return strings.Contains(pa, pb) || strings.Contains(pb, pa)
}

// matchKey falls back to the plain lowercase name when normalization strips
// everything, so a title like "(Untitled)" can still match itself.
func matchKey(name string) string {
	return fallbackIfEmpty(Normalize(name), strings.ToLower(strings.TrimSpace(name)))
}

func stripBracketedSegments(input string) string {
	var out strings.Builder
	depth := 0
	for _, r := range input {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				out.WriteRune(r)
			}
		}
	}

	return out.String()
}

func cleanSeparators(input string) string {
	var out strings.Builder
	lastSpace := false
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			out.WriteRune(' ')
			lastSpace = true
		}
	}

	return out.String()
}

func fallbackIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
