package analysis

import (
	"strings"
	"unicode"
)

// minTokenLen drops noise tokens like "i" or "ok" from pattern counts.
const minTokenLen = 3

// tokenize case-folds content and splits it on anything that is not a
// letter or digit.
func tokenize(content string) []string {
	fields := strings.FieldsFunc(foldContent(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// tokenSet returns the unique tokens of content, without the length
// filter so short markers like "not" still match.
func tokenSet(content string) map[string]bool {
	set := map[string]bool{}
	for _, f := range strings.FieldsFunc(foldContent(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[f] = true
	}
	return set
}

func foldContent(content string) string {
	return strings.ToLower(content)
}

// countOccurrences counts non-overlapping occurrences of phrase.
func countOccurrences(s, phrase string) int {
	if phrase == "" {
		return 0
	}
	return strings.Count(s, phrase)
}
