package filter

import "strings"

// term is one OR-alternative of a user's interests.
type term struct {
	label  string
	tokens []string
	all    bool // match when every token is present, in any order
}

func (t term) matches(tokens []string) bool {
	if t.all {
		return containsAll(tokens, t.tokens)
	}
	return containsPhrase(tokens, t.tokens)
}

var developerAliases = []string{
	"developer",
	"engineer",
	"software engineer",
	"software developer",
	"sde",
	"backend engineer",
	"back-end engineer",
	"full stack engineer",
	"full-stack engineer",
}

// keywordTerms parses a stored keyword into OR terms. Commas separate
// alternatives; a chunk that repeats a word is treated as a bag of words
// rather than one malformed literal.
func keywordTerms(keyword string) []term {
	var chunks []string
	for _, c := range strings.Split(keyword, ",") {
		if c = strings.TrimSpace(c); c != "" {
			chunks = append(chunks, c)
		}
	}

	var terms []term
	for _, chunk := range chunks {
		toks := tokenize(chunk)
		if len(toks) == 0 {
			continue
		}

		uniq := unique(toks)
		if len(uniq) < len(toks) {
			for _, tok := range uniq {
				terms = append(terms, expandDeveloper(tok)...)
			}
			continue
		}

		terms = append(terms, expandDeveloper(chunk)...)

		if len(chunks) == 1 && len(uniq) >= 2 {
			var long []string
			for _, tok := range uniq {
				if len(tok) >= 3 {
					long = append(long, tok)
				}
			}
			if len(long) >= 2 {
				terms = append(terms, term{label: chunk, tokens: long, all: true})
			}
		}
	}
	return dedupeTerms(terms)
}

// expandDeveloper adds the engineer spellings employers actually use for a
// "developer" search.
func expandDeveloper(phrase string) []term {
	toks := tokenize(phrase)
	out := []term{{label: phrase, tokens: toks}}

	if len(toks) == 1 && toks[0] == "developer" {
		for _, alias := range developerAliases[1:] {
			out = append(out, term{label: alias, tokens: tokenize(alias)})
		}
		return out
	}

	if len(toks) > 1 && toks[len(toks)-1] == "developer" {
		prefix := strings.Join(toks[:len(toks)-1], " ")
		for _, alias := range []string{
			prefix + " engineer",
			"software " + prefix + " engineer",
			prefix + " software engineer",
		} {
			out = append(out, term{label: alias, tokens: tokenize(alias)})
		}
	}
	return out
}

func phraseTerms(phrases []string) []term {
	var out []term
	for _, p := range phrases {
		if toks := tokenize(p); len(toks) > 0 {
			out = append(out, term{label: strings.TrimSpace(p), tokens: toks})
		}
	}
	return dedupeTerms(out)
}

func unique(toks []string) []string {
	seen := make(map[string]bool, len(toks))
	var out []string
	for _, t := range toks {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func dedupeTerms(terms []term) []term {
	seen := make(map[string]bool, len(terms))
	var out []term
	for _, t := range terms {
		k := strings.Join(t.tokens, " ")
		if t.all {
			k = "all:" + k
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}
