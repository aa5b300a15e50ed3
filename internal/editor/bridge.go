// Package editor maps canonical blocks to and from the HTML documents a
// rich-text editor works on, and keeps a block list in sync with edits.
package editor

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"policyforge/api/internal/block"
	"policyforge/api/internal/sanitize"
)

var whitespace = regexp.MustCompile(`\s+`)

// Normalize collapses whitespace runs so documents that differ only in
// formatting whitespace compare equal.
func Normalize(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ToDocument renders b as the editor document it is edited in: an <h2>, a
// <p> or a <ul>.
func ToDocument(b block.Block) string {
	switch b.Type {
	case block.TypeList:
		var sb strings.Builder
		sb.WriteString("<ul>")
		for _, item := range b.Content.Items {
			sb.WriteString("<li>")
			if b.Content.Format == block.FormatInline {
				sb.WriteString(sanitize.Inline(sanitize.StripHeadingTags(item)))
			} else {
				sb.WriteString(sanitize.PlainToInline(item))
			}
			sb.WriteString("</li>")
		}
		sb.WriteString("</ul>")
		return sb.String()
	case block.TypeHeading:
		return textDocument(b.Content, "h2", false)
	default:
		return textDocument(b.Content, "p", true)
	}
}

func textDocument(c block.Content, tag string, stripHeadings bool) string {
	if c.Format != block.FormatInline {
		return "<" + tag + ">" + sanitize.PlainToInline(c.Text) + "</" + tag + ">"
	}
	text := c.Text
	if stripHeadings {
		text = sanitize.StripHeadingTags(text)
	}
	return sanitize.EnsureWrapped(sanitize.Inline(text), tag)
}

// FromDocument reads an edited document back into b. Lists take the
// sanitized inner HTML of each non-empty item; headings keep the sanitized
// HTML as content and its plain text as title; paragraphs keep the
// sanitized HTML. ID, type and order are carried over from b.
func FromDocument(b block.Block, doc string) block.Block {
	out := block.Block{ID: b.ID, Type: b.Type, Order: b.Order}
	switch b.Type {
	case block.TypeList:
		out.Content = block.Content{Format: block.FormatInline, Items: listItems(doc)}
	case block.TypeHeading:
		out.Title = sanitize.PlainText(doc)
		out.Content = block.Content{Format: block.FormatInline, Text: sanitize.Inline(doc)}
	default:
		out.Content = block.Content{Format: block.FormatInline, Text: sanitize.Inline(doc)}
	}
	return out
}

func listItems(doc string) []string {
	nodes, err := html.ParseFragment(strings.NewReader(doc), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return []string{}
	}
	items := []string{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Li {
			if item := strings.TrimSpace(sanitize.Inline(innerHTML(n))); item != "" {
				items = append(items, item)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return items
}

func innerHTML(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return ""
		}
	}
	return sb.String()
}
