package export

import (
	"strings"
	"unicode/utf8"

	"policyforge/api/internal/block"
	"policyforge/api/internal/sanitize"
)

// Clipboard is a policy prepared for pasting into other applications.
type Clipboard struct {
	HTML  string `json:"html"`
	Text  string `json:"text"`
	Words int    `json:"words"`
	Chars int    `json:"chars"`
}

// BuildClipboard renders topic and blocks as inline-styled HTML and as plain
// text. Words and Chars count the blocks' plain text only.
func BuildClipboard(topic string, blocks []block.Block) Clipboard {
	if topic == "" {
		topic = DefaultTopic
	}
	sorted := block.Sorted(blocks)

	var html strings.Builder
	html.WriteString(`<h1 style="font-size:20px;margin:0 0 12px">` + sanitize.Escape(topic) + `</h1>`)
	lines := []string{strings.ToUpper(topic), ""}
	var body []string

	for i, b := range sorted {
		if i > 0 {
			html.WriteString("\n")
		}
		text := b.PlainText()
		if text != "" {
			body = append(body, text)
		}
		switch b.Type {
		case block.TypeHeading:
			html.WriteString(`<h2 style="font-size:16px;margin:16px 0 8px">` + sanitize.Escape(text) + `</h2>`)
			lines = append(lines, text)
		case block.TypeList:
			html.WriteString(`<ul style="margin:8px 0 8px 20px">`)
			for _, item := range listItems(b) {
				html.WriteString("<li>" + item + "</li>")
				lines = append(lines, "• "+sanitize.PlainText(item))
			}
			html.WriteString("</ul>")
		default:
			html.WriteString(`<p style="margin:6px 0">` + sanitize.InlineOnly(b.Content.HTML()) + `</p>`)
			lines = append(lines, text)
		}
	}

	joined := strings.Join(body, "\n")
	return Clipboard{
		HTML:  html.String(),
		Text:  strings.Join(lines, "\n"),
		Words: len(strings.Fields(joined)),
		Chars: utf8.RuneCountInString(joined),
	}
}
