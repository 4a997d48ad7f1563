package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxTitleLen = 30

// Leading words that add nothing to a chat title: interrogatives, auxiliary
// verbs, and articles.
var titleStopWords = map[string]struct{}{
	"what": {}, "whats": {}, "who": {}, "whos": {}, "how": {}, "why": {},
	"when": {}, "where": {}, "which": {},
	"is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {},
	"can": {}, "could": {}, "should": {}, "would": {}, "will": {},
	"the": {}, "a": {}, "an": {},
}

// DeriveTitle builds a short conversation title from the first user
// question: leading stop-words are dropped, the remainder is cut at a word
// boundary near 30 characters, trailing punctuation is stripped, and the
// first letter is capitalized. The derivation is pure, so repeated calls on
// the same question always agree.
func DeriveTitle(question string) string {
	words := strings.Fields(question)
	if len(words) == 0 {
		return ""
	}

	start := 0
	for start < len(words)-1 {
		w := strings.ToLower(strings.Trim(words[start], `"'`))
		w = strings.TrimSuffix(w, "'s")
		if _, stop := titleStopWords[strings.Trim(w, ",.!?;:")]; !stop {
			break
		}
		start++
	}

	var b strings.Builder
	for _, w := range words[start:] {
		sep := 0
		if b.Len() > 0 {
			sep = 1
		}
		if b.Len() > 0 && b.Len()+sep+len(w) > maxTitleLen {
			break
		}
		if sep == 1 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}

	title := strings.TrimRight(b.String(), `.,!?;: `)
	return capitalize(title)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
