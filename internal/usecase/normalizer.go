package usecase

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// vietnameseLetterReplacer covers letters that carry no combining mark after NFD
var vietnameseLetterReplacer = strings.NewReplacer("đ", "d", "Đ", "d")

// Normalize canonicalizes a product name for matching: lowercase, diacritics stripped,
// "đ" folded to "d", everything except letters, digits and spaces removed, whitespace collapsed.
// It must be applied identically to raw names and catalog entries.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	lowered := strings.ToLower(s)

	// transform.Chain keeps internal state, so build one per call
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, lowered)
	if err != nil {
		stripped = lowered
	}
	stripped = vietnameseLetterReplacer.Replace(stripped)

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// tokenize splits an already normalized string into whitespace tokens
func tokenize(normalized string) []string {
	return strings.Fields(normalized)
}

// containsWord reports whether word occurs in normalized text as a whole token
func containsWord(normalized, word string) bool {
	if word == "" {
		return false
	}
	return strings.Contains(" "+normalized+" ", " "+word+" ")
}
