// Package textnorm turns titles and queries into comparable word sequences.
// It lower-cases input, strips promotional noise phrases, drops everything
// that is not a letter, digit or whitespace, and collapses the result to
// single-space separated words. Query-only filler words are removed by a
// separate StopWords filter.
package textnorm

import (
	"strings"
	"unicode"

	"github.com/samber/lo"
	"golang.org/x/text/unicode/norm"
)

// Normalizer strips a fixed, ordered set of noise phrases.
type Normalizer struct {
	noise []string
}

// NewNormalizer builds a Normalizer. Phrases are applied in the given order
// as literal substrings; blank phrases are ignored.
func NewNormalizer(noise []string) *Normalizer {
	phrases := make([]string, 0, len(noise))
	for _, p := range noise {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		phrases = append(phrases, p)
	}
	return &Normalizer{noise: phrases}
}

// Normalize returns the canonical form of text. Passes repeat until one
// changes nothing, so Normalize(Normalize(x)) == Normalize(x) however deeply
// noise is nested. After the first pass a pass can only remove characters.
// Empty input, or input made only of noise, yields "".
func (n *Normalizer) Normalize(text string) string {
	out := n.pass(text)
	for {
		next := n.pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

// Words returns the normalized words of text in order.
func (n *Normalizer) Words(text string) []string {
	return strings.Fields(n.Normalize(text))
}

func (n *Normalizer) pass(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToLower(norm.NFKC.String(text))
	for _, phrase := range n.noise {
		text = strings.ReplaceAll(text, phrase, "")
	}
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			return r
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

// WordSet converts words into a set.
func WordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// StopWords drops query-only filler tokens such as "download" or "mp3".
type StopWords struct {
	words map[string]struct{}
}

// NewStopWords builds a filter from the configured stop-word list.
func NewStopWords(words []string) *StopWords {
	return &StopWords{
		words: WordSet(lo.Map(words, func(w string, _ int) string {
			return strings.ToLower(strings.TrimSpace(w))
		})),
	}
}

// Clean lower-cases raw and removes stop words. If every token is a stop
// word the lower-cased input is returned untouched, so a non-empty query
// never becomes empty.
func (s *StopWords) Clean(raw string) string {
	text := strings.ToLower(raw)
	kept := lo.Filter(strings.Fields(text), func(w string, _ int) bool {
		_, stop := s.words[w]
		return !stop
	})
	if len(kept) == 0 {
		return text
	}
	return strings.Join(kept, " ")
}

// Contains reports whether word is a configured stop word.
func (s *StopWords) Contains(word string) bool {
	_, ok := s.words[strings.ToLower(word)]
	return ok
}
