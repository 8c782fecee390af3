// Package translit expands a query into alternate-script renderings so a
// Cyrillic query can match a Latin-titled track and vice versa.
package translit

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"github.com/samber/mo"
)

// MaxVariants is the upper bound on the number of variants Expand returns.
const MaxVariants = 2

// Variant is one rendering of a query.
type Variant struct {
	Text           string
	Transliterated bool
}

// Transliterate returns the Latin rendering of text, or None when text has
// nothing to transliterate or the rendering carries no letters or digits.
func Transliterate(text string) mo.Option[string] {
	if !hasNonASCIILetter(text) {
		return mo.None[string]()
	}
	out := strings.ToLower(unidecode.Unidecode(text))
	out = strings.Join(strings.Fields(out), " ")
	if !hasLetterOrDigit(out) {
		return mo.None[string]()
	}
	return mo.Some(out)
}

// Expand returns the lower-cased query followed by its transliteration when
// one exists and differs. The first element is always the original.
func Expand(cleaned string) []Variant {
	original := strings.ToLower(cleaned)
	variants := make([]Variant, 0, MaxVariants)
	variants = append(variants, Variant{Text: original})

	if tr, ok := Transliterate(original).Get(); ok && tr != strings.TrimSpace(original) {
		variants = append(variants, Variant{Text: tr, Transliterated: true})
	}
	return variants
}

// Texts flattens variants into their strings.
func Texts(variants []Variant) []string {
	out := make([]string, len(variants))
	for i, v := range variants {
		out[i] = v.Text
	}
	return out
}

func hasNonASCIILetter(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
