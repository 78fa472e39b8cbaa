// Package deriver turns raw generated Markdown into record metadata:
// title, slug, excerpt, tags and read time. Every function is pure.
package deriver

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/starford/folio/internal/profile"
)

// Defaults.
const (
	PlaceholderTitle = "Blog Sin Título"
	ExcerptLength    = 150
	MaxTags          = 8
	Ellipsis         = "…"
	charsPerMinute   = 1000
)

var (
	titleRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)

	foldReplacer = strings.NewReplacer(
		"á", "a", "à", "a", "ä", "a", "â", "a",
		"é", "e", "è", "e", "ë", "e", "ê", "e",
		"í", "i", "ì", "i", "ï", "i", "î", "i",
		"ó", "o", "ò", "o", "ö", "o", "ô", "o",
		"ú", "u", "ù", "u", "ü", "u", "û", "u",
		"ñ", "n",
	)
	slugStripRe  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaceRe  = regexp.MustCompile(`\s+`)
	slugHyphenRe = regexp.MustCompile(`-+`)

	headingLineRe = regexp.MustCompile(`(?m)^#.*$`)
	boldRe        = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe      = regexp.MustCompile(`\*(.+?)\*`)
	linkRe        = regexp.MustCompile(`\[(.+?)\]\(.+?\)`)
	codeRe        = regexp.MustCompile("`(.+?)`")
)

// Title returns the first level-1 heading, or PlaceholderTitle.
func Title(text string) string {
	m := titleRe.FindStringSubmatch(text)
	if m == nil {
		return PlaceholderTitle
	}
	if t := strings.TrimSpace(m[1]); t != "" {
		return t
	}
	return PlaceholderTitle
}

// Slug converts s into a lowercase, ASCII-folded, hyphen-separated slug.
// Slug(Slug(s)) == Slug(s).
func Slug(s string) string {
	s = strings.ToLower(s)
	s = foldReplacer.Replace(s)
	s = slugStripRe.ReplaceAllString(s, "")
	s = slugSpaceRe.ReplaceAllString(s, "-")
	s = slugHyphenRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Excerpt strips Markdown markers from text and returns its first paragraph,
// truncated to maxLength characters plus an ellipsis when longer.
// A non-positive maxLength selects ExcerptLength.
func Excerpt(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = ExcerptLength
	}
	plain := headingLineRe.ReplaceAllString(text, "")
	plain = boldRe.ReplaceAllString(plain, "$1")
	plain = italicRe.ReplaceAllString(plain, "$1")
	plain = linkRe.ReplaceAllString(plain, "$1")
	plain = codeRe.ReplaceAllString(plain, "$1")
	plain = strings.TrimSpace(plain)

	para := plain
	if i := strings.Index(plain, "\n\n"); i >= 0 {
		para = plain[:i]
	} else if i := strings.Index(plain, "\n"); i >= 0 {
		para = plain[:i]
	}
	para = strings.TrimSpace(para)

	if utf8.RuneCountInString(para) <= maxLength {
		return para
	}
	runes := []rune(para)
	return strings.TrimSpace(string(runes[:maxLength])) + Ellipsis
}

// Tags returns seeds followed by the first match of every keyword group
// found in text, lowercased, deduplicated and capped at MaxTags.
func Tags(text string, seeds []string, keywords []profile.Keyword) []string {
	out := make([]string, 0, MaxTags)
	seen := make(map[string]bool, MaxTags)
	add := func(tag string) {
		if tag == "" || seen[tag] || len(out) >= MaxTags {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}
	for _, s := range seeds {
		add(s)
	}
	for _, k := range keywords {
		add(strings.ToLower(k.Find(text)))
	}
	return out
}

// ReadTime estimates minutes as ceil(characters / 1000).
func ReadTime(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerMinute - 1) / charsPerMinute
}

// WordCount splits text on whitespace.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
