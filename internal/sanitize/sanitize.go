// Package sanitize normalizes the small inline HTML vocabulary that policy
// content may carry: paragraphs, level-2 headings, bullet lists, line breaks,
// bold and italic. Everything else is unwrapped (tags dropped, text kept),
// while scripts and event-handler attributes are removed entirely.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// BlockTags is the whitelist kept by Inline.
var BlockTags = []string{"p", "h2", "br", "strong", "em", "ul", "li"}

// InlineTags is the whitelist kept by InlineOnly.
var InlineTags = []string{"br", "strong", "em"}

var (
	legacyBoldOpen    = regexp.MustCompile(`(?i)<b(\s|>)`)
	legacyBoldClose   = regexp.MustCompile(`(?i)</b\s*>`)
	legacyItalicOpen  = regexp.MustCompile(`(?i)<i(\s|>)`)
	legacyItalicClose = regexp.MustCompile(`(?i)</i\s*>`)
	headingTags       = regexp.MustCompile(`(?i)<\/?h[1-6][^>]*>`)
	anyTag            = regexp.MustCompile(`</?[A-Za-z][^>]*>`)
)

var (
	blockPolicy  = newPolicy(BlockTags)
	inlinePolicy = newPolicy(InlineTags)
)

func newPolicy(elements []string) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(elements...)
	return p
}

// NormalizeLegacyMarks rewrites <b>/<i> into <strong>/<em>.
func NormalizeLegacyMarks(s string) string {
	s = legacyBoldOpen.ReplaceAllString(s, "<strong${1}")
	s = legacyBoldClose.ReplaceAllString(s, "</strong>")
	s = legacyItalicOpen.ReplaceAllString(s, "<em${1}")
	s = legacyItalicClose.ReplaceAllString(s, "</em>")
	return s
}

// Inline keeps only BlockTags, dropping every attribute. Script and style
// bodies are discarded together with their tags. Inline is idempotent.
func Inline(s string) string {
	if s == "" {
		return ""
	}
	return blockPolicy.Sanitize(NormalizeLegacyMarks(s))
}

// InlineOnly is Inline without block wrappers: only <strong>, <em> and <br>
// survive. Used wherever block tags are illegal, e.g. inside a heading.
func InlineOnly(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(inlinePolicy.Sanitize(NormalizeLegacyMarks(s)))
}

// HasMarkup reports whether s contains anything tag-shaped.
func HasMarkup(s string) bool {
	return anyTag.MatchString(s)
}

// StripHeadingTags removes h1-h6 tags, keeping their text.
func StripHeadingTags(s string) string {
	return headingTags.ReplaceAllString(s, "")
}

// Escape makes plain text safe to embed in HTML.
func Escape(s string) string {
	return html.EscapeString(s)
}

// PlainToInline escapes plain text and turns newlines into line breaks.
func PlainToInline(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(Escape(s), "\n", "<br>")
}

var (
	wrapMu      sync.Mutex
	wrapPattern = map[string]*regexp.Regexp{}
)

func wrappedPattern(tag string) *regexp.Regexp {
	wrapMu.Lock()
	defer wrapMu.Unlock()
	if re, ok := wrapPattern[tag]; ok {
		return re
	}
	re := regexp.MustCompile(fmt.Sprintf(`(?is)^<%s\b.*</%s>$`, regexp.QuoteMeta(tag), regexp.QuoteMeta(tag)))
	wrapPattern[tag] = re
	return re
}

// EnsureWrapped wraps s in <tag>...</tag> unless the trimmed string already
// starts with that tag and ends with its closing tag.
func EnsureWrapped(s, tag string) string {
	tag = strings.ToLower(tag)
	trimmed := strings.TrimSpace(s)
	if wrappedPattern(tag).MatchString(trimmed) {
		return trimmed
	}
	return "<" + tag + ">" + trimmed + "</" + tag + ">"
}
