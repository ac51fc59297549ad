package filter

import (
	"strings"
	"unicode"
)

// tokenize lowercases s and splits it into word tokens. '+' and '#' stay
// inside tokens so "c++" and "c#" survive; everything else separates.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
}

// containsPhrase reports whether phrase occurs as a contiguous token run in
// tokens. Matching is whole-token, so "java" does not match "javascript".
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}

// containsAll reports whether every token in want appears somewhere in tokens.
func containsAll(tokens, want []string) bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func anyToken(tokens []string, set map[string]bool) bool {
	for _, t := range tokens {
		if set[t] {
			return true
		}
	}
	return false
}
