// Package classifier detects content that is almost certainly not the track a
// user asked for (reactions, karaoke, tutorials) and softer variant markers
// (remixes, covers) that only deserve a penalty.
package classifier

import (
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Classifier holds the banned-phrase and junk-marker sets.
type Classifier struct {
	banned []string
	junk   []string
}

// New builds a Classifier. Phrases are lower-cased; blanks are dropped.
func New(banned, junk []string) *Classifier {
	return &Classifier{
		banned: prepare(banned),
		junk:   prepare(junk),
	}
}

func prepare(phrases []string) []string {
	out := lo.Map(phrases, func(p string, _ int) string {
		return strings.ToLower(strings.TrimSpace(p))
	})
	return lo.Uniq(lo.Compact(out))
}

// BannedPhrase returns the first banned phrase found anywhere in title,
// glued words included, that the query itself does not mention.
func (c *Classifier) BannedPhrase(title, cleanedQuery string) mo.Option[string] {
	t := strings.ToLower(title)
	q := strings.ToLower(cleanedQuery)
	for _, phrase := range c.banned {
		if strings.Contains(t, phrase) && !strings.Contains(q, phrase) {
			return mo.Some(phrase)
		}
	}
	return mo.None[string]()
}

// Banned reports whether the candidate must be excluded from results.
func (c *Classifier) Banned(title, cleanedQuery string) bool {
	return c.BannedPhrase(title, cleanedQuery).IsPresent()
}

// QueryAsksForVariant reports whether the query mentions any banned phrase
// or junk marker, in which case variant titles are not penalised.
func (c *Classifier) QueryAsksForVariant(cleanedQuery string) bool {
	q := strings.ToLower(cleanedQuery)
	has := func(p string) bool { return strings.Contains(q, p) }
	return lo.SomeBy(c.junk, has) || lo.SomeBy(c.banned, has)
}

// JunkMarker returns the first junk marker found in title.
func (c *Classifier) JunkMarker(title string) mo.Option[string] {
	t := strings.ToLower(title)
	if marker, ok := lo.Find(c.junk, func(m string) bool { return strings.Contains(t, m) }); ok {
		return mo.Some(marker)
	}
	return mo.None[string]()
}
