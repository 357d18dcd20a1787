package index

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// English stop words dropped from keyword sets and query terms.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "in": true,
	"is": true, "it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "to": true, "was": true,
	"were": true, "will": true, "with": true,
}

var lowerCaser = cases.Lower(language.Und)

// Fold normalizes a single token: NFKC then Unicode lower-casing.
func Fold(token string) string {
	return lowerCaser.String(norm.NFKC.String(token))
}

// Tokenize splits text into folded index terms. Non-alphanumeric runes
// separate tokens, camelCase and snake_case boundaries split further, and
// stop words are dropped. Positions in the returned slice are the term
// positions phrase matching relies on.
func Tokenize(text string) []string {
	var terms []string
	for _, raw := range splitWords(text) {
		for _, part := range splitCamel(raw) {
			term := Fold(part)
			if term == "" || stopWords[term] {
				continue
			}
			terms = append(terms, term)
		}
	}
	return terms
}

// TokenizeQuery folds query terms the same way as the corpus but keeps
// stop words, so an explicit search for one still matches nothing rather
// than everything.
func TokenizeQuery(text string) []string {
	var terms []string
	for _, raw := range splitWords(text) {
		for _, part := range splitCamel(raw) {
			if term := Fold(part); term != "" {
				terms = append(terms, term)
			}
		}
	}
	return terms
}

// splitWords splits on any rune that is not a letter or digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// splitCamel splits camelCase and letter/digit boundaries: "petStoreV2"
// becomes ["pet", "Store", "V", "2"]. Runs of capitals stay together so
// acronyms like "HTTPServer" split into "HTTP" and "Server".
func splitCamel(word string) []string {
	runes := []rune(word)
	if len(runes) == 0 {
		return nil
	}
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		switch {
		case unicode.IsLower(prev) && unicode.IsUpper(cur):
			boundary = true
		case unicode.IsLetter(prev) != unicode.IsLetter(cur):
			boundary = true
		case unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			boundary = true
		}
		if boundary {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))
	return parts
}
