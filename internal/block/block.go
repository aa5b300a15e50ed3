// Package block holds the canonical policy content model: a policy is an
// ordered set of typed blocks (heading, paragraph, list). Raw blocks of any
// shape are brought into this form by Canonicalize.
package block

import (
	"strings"
	"time"

	"policyforge/api/internal/sanitize"
)

type Type string

const (
	TypeHeading   Type = "heading"
	TypeParagraph Type = "paragraph"
	TypeList      Type = "list"
)

func (t Type) Valid() bool {
	switch t {
	case TypeHeading, TypeParagraph, TypeList:
		return true
	}
	return false
}

// Format says how Content text is to be read: plain text that must be
// escaped, or a fragment of whitelisted inline HTML.
type Format string

const (
	FormatPlain  Format = "plain"
	FormatInline Format = "inline"
)

// Content is a block body. Text is used by heading and paragraph blocks,
// Items by list blocks.
type Content struct {
	Format Format
	Text   string
	Items  []string
}

// HTML returns Text as an inline HTML fragment.
func (c Content) HTML() string {
	return toHTML(c.Format, c.Text)
}

// ItemsHTML returns every list item as an inline HTML fragment.
func (c Content) ItemsHTML() []string {
	out := make([]string, len(c.Items))
	for i, item := range c.Items {
		out[i] = toHTML(c.Format, item)
	}
	return out
}

func toHTML(format Format, s string) string {
	if format == FormatInline {
		return s
	}
	return sanitize.PlainToInline(s)
}

func toPlain(format Format, s string) string {
	if format == FormatInline {
		return sanitize.PlainText(s)
	}
	return s
}

type Block struct {
	ID      string
	Type    Type
	Title   string
	Content Content
	Order   float64
}

// PlainText is the block rendered as text: the caption for headings, one
// item per line for lists.
func (b Block) PlainText() string {
	switch b.Type {
	case TypeHeading:
		if b.Title != "" {
			return b.Title
		}
		return toPlain(b.Content.Format, b.Content.Text)
	case TypeList:
		items := make([]string, 0, len(b.Content.Items))
		for _, item := range b.Content.Items {
			if text := strings.TrimSpace(toPlain(b.Content.Format, item)); text != "" {
				items = append(items, text)
			}
		}
		return strings.Join(items, "\n")
	default:
		return toPlain(b.Content.Format, b.Content.Text)
	}
}

type Meta struct {
	GeneratedBy string    `json:"generatedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

type Policy struct {
	ID     string  `json:"id"`
	Topic  string  `json:"topic"`
	Blocks []Block `json:"blocks"`
	Meta   Meta    `json:"meta"`
}

// Text joins the topic and every block's plain text, in display order.
func (p Policy) Text() string {
	body := BodyText(p.Blocks)
	if body == "" {
		return p.Topic
	}
	return p.Topic + "\n" + body
}

// BodyText joins the plain text of blocks in display order, skipping blocks
// with no text.
func BodyText(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range Sorted(blocks) {
		if text := b.PlainText(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
