// Package normalize strips formatting noise from ticket text so that
// two renditions of the same underlying request compare equal.
package normalize

import (
	"regexp"
	"strings"
)

// Catalogue holds the data-driven strip lists. The defaults match the
// tickets this system was built for; deployments can extend them via
// configuration without code changes.
type Catalogue struct {
	// ReplyPrefixes are anchored regexes removed from the start of a
	// subject, applied once each in order.
	ReplyPrefixes []string
	// Tags are bracketed routing/severity markers removed anywhere.
	Tags []string
}

// DefaultCatalogue returns the built-in multilingual prefix and tag lists.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		ReplyPrefixes: []string{
			`^re:\s*`, `^re\[\d+\]:\s*`, `^re\s*\[\d+\]:\s*`,
			`^fw:\s*`, `^fwd:\s*`, `^forwarded:\s*`,
			`^aw:\s*`, `^antw:\s*`,
			`^sv:\s*`, `^svar:\s*`,
			`^vs:\s*`, `^vedr:\s*`,
			`^tr:\s*`,
			`^res:\s*`, `^resp:\s*`,
			`^enc:\s*`,
			`^odg:\s*`,
			`^ynt:\s*`,
			`^att:\s*`,
			`^回复:\s*`, `^转发:\s*`,
			`^답장:\s*`, `^전달:\s*`,
			`^返信:\s*`, `^転送:\s*`,
		},
		Tags: []string{"external", "spam", "important", "urgent"},
	}
}

// Normalizer applies the catalogue to raw ticket text.
type Normalizer struct {
	prefixes []*regexp.Regexp
	tags     []*regexp.Regexp
}

var (
	reTrailingRe  = regexp.MustCompile(`\s*\(re\)\s*$`)
	reTrailingFwd = regexp.MustCompile(`\s*\(fwd?\)\s*$`)
	reParenNum    = regexp.MustCompile(`\(\d+\)`)
	reBracketNum  = regexp.MustCompile(`\[\d+\]`)
	reHashNum     = regexp.MustCompile(`#\d+`)
	reTicketID    = regexp.MustCompile(`\b[a-z]{2,6}[-_]?\d{3,8}\b`)
	reURL         = regexp.MustCompile(`https?://\S+|www\.\S+`)
	reEmail       = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	reSeparators  = regexp.MustCompile(`[_\-–—•·│┃┆┇┈┉┊┋]+`)
	reWhitespace  = regexp.MustCompile(`\s+`)

	reDateDMY   = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	reDateYMD   = regexp.MustCompile(`\d{4}[/-]\d{1,2}[/-]\d{1,2}`)
	reTimeOfDay = regexp.MustCompile(`\d{1,2}:\d{2}(:\d{2})?(\s*[ap]m)?`)
	reAnyEmail  = regexp.MustCompile(`\S+@\S+\.\S+`)
)

// New compiles a Normalizer from the catalogue.
func New(cat Catalogue) *Normalizer {
	n := &Normalizer{}
	for _, p := range cat.ReplyPrefixes {
		n.prefixes = append(n.prefixes, regexp.MustCompile(p))
	}
	for _, tag := range cat.Tags {
		n.tags = append(n.tags, regexp.MustCompile(`\[`+regexp.QuoteMeta(tag)+`\]`))
	}
	return n
}

// Normalize lower-cases text and strips reply prefixes, routing tags,
// thread counters, ticket IDs, URLs, email addresses, and runs of
// separator punctuation. Empty input yields an empty string.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := strings.ToLower(text)

	for _, re := range n.prefixes {
		s = re.ReplaceAllString(s, "")
	}
	s = reTrailingRe.ReplaceAllString(s, "")
	s = reTrailingFwd.ReplaceAllString(s, "")

	for _, re := range n.tags {
		s = re.ReplaceAllString(s, "")
	}

	s = reParenNum.ReplaceAllString(s, "")
	s = reBracketNum.ReplaceAllString(s, "")
	s = reHashNum.ReplaceAllString(s, "")
	s = reTicketID.ReplaceAllString(s, "")
	s = reURL.ReplaceAllString(s, "")
	s = reEmail.ReplaceAllString(s, "")

	s = reSeparators.ReplaceAllString(s, " ")
	s = reWhitespace.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// CoreSubject strips the variable parts (dates, times of day, remaining
// counters, email addresses) from an already-normalized subject, leaving
// the invariant core used for looser matching.
func (n *Normalizer) CoreSubject(subject string) string {
	s := reDateYMD.ReplaceAllString(subject, "")
	s = reDateDMY.ReplaceAllString(s, "")
	s = reTimeOfDay.ReplaceAllString(s, "")
	s = reHashNum.ReplaceAllString(s, "")
	s = reBracketNum.ReplaceAllString(s, "")
	s = reAnyEmail.ReplaceAllString(s, "")
	s = reWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
