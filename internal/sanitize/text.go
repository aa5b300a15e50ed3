package sanitize

import (
	"strings"

	"golang.org/x/net/html"
)

var blockLevel = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true,
}

// StripTags drops all markup and returns the unescaped, trimmed text.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			if name, _ := z.TagName(); isSkipped(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isSkipped(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// PlainText renders markup as text the way an editor would: block elements
// are separated by a newline, <br> becomes a newline, trailing whitespace is
// trimmed.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	pendingBreak := false
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimRight(b.String(), " \t\r\n")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tt == html.StartTagToken && isSkipped(tag) {
				skip++
				continue
			}
			if tag == "br" {
				b.WriteByte('\n')
				continue
			}
			if blockLevel[tag] && b.Len() > 0 {
				pendingBreak = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if isSkipped(tag) && skip > 0 {
				skip--
				continue
			}
			if blockLevel[tag] {
				pendingBreak = true
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := z.Text()
			if len(text) == 0 || (strings.TrimSpace(string(text)) == "" && strings.ContainsRune(string(text), '\n')) {
				continue
			}
			if pendingBreak && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
			pendingBreak = false
			b.Write(text)
		}
	}
}

func isSkipped(tag string) bool {
	return tag == "script" || tag == "style"
}
