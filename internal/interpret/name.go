// Package interpret turns free-form pt-BR transcripts into structured data:
// a person's name, a yes/no confirmation, and a Brazilian mobile phone number.
//
// Every function is pure and deterministic.
package interpret

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// namePatterns are tried in order. The first capture group is the name.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)meu\s+nome\s+é\s+(\S+)`),
	regexp.MustCompile(`(?i)me\s+chamo\s+(\S+)`),
	regexp.MustCompile(`(?i)(?:^|\s)sou\s+(\S+)`),
}

// ExtractName returns the name spoken in transcript. It recognises
// "meu nome é X", "me chamo X" and "sou X" and otherwise falls back to the
// first word. The result has its first letter upper-cased and surrounding
// punctuation removed. ok is false only when transcript holds no word.
func ExtractName(transcript string) (name string, ok bool) {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(transcript); m != nil {
			if n := cleanWord(m[1]); n != "" {
				return capitalize(n), true
			}
		}
	}
	for _, w := range strings.Fields(transcript) {
		if n := cleanWord(w); n != "" {
			return capitalize(n), true
		}
	}
	return "", false
}

func cleanWord(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
