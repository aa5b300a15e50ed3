package export

import (
	"strings"
	"time"

	"golang.org/x/net/html"

	"policyforge/api/internal/block"
	"policyforge/api/internal/sanitize"
)

// Paragraph styles defined in word/styles.xml.
const (
	StyleTitle      = "Title"
	StyleHeading2   = "Heading2"
	StyleListBullet = "ListBullet"
)

// Document is the Word document tree for one policy.
type Document struct {
	Title      string
	Modified   time.Time
	Paragraphs []Paragraph
}

type Paragraph struct {
	Style        string
	Bullet       bool
	SpacingAfter int
	Runs         []Run
}

// Run is a span of text sharing formatting, or a line break when Break is set.
// Size is in half-points; zero leaves the style default.
type Run struct {
	Text   string
	Bold   bool
	Italic bool
	Break  bool
	Size   int
}

// BuildDocument mirrors RenderBodyHTML as a Word paragraph tree, preceded by
// a bold title paragraph carrying the topic.
func BuildDocument(topic string, blocks []block.Block) Document {
	if topic == "" {
		topic = DefaultTopic
	}
	doc := Document{
		Title: topic,
		Paragraphs: []Paragraph{{
			Style:        StyleTitle,
			SpacingAfter: 240,
			Runs:         []Run{{Text: topic, Bold: true, Size: 48}},
		}},
	}
	for _, b := range block.Sorted(blocks) {
		switch b.Type {
		case block.TypeHeading:
			doc.Paragraphs = append(doc.Paragraphs, Paragraph{
				Style:        StyleHeading2,
				SpacingAfter: 140,
				Runs:         HTMLToRuns(b.Content.HTML()),
			})
		case block.TypeList:
			for _, item := range listItems(b) {
				doc.Paragraphs = append(doc.Paragraphs, Paragraph{
					Style:        StyleListBullet,
					Bullet:       true,
					SpacingAfter: 80,
					Runs:         HTMLToRuns(item),
				})
			}
		default:
			doc.Paragraphs = append(doc.Paragraphs, Paragraph{
				Runs: HTMLToRuns(b.Content.HTML()),
			})
		}
	}
	return doc
}

// HTMLToRuns converts inline HTML into runs. <strong> and <em> toggle bold
// and italic; <br> and newlines become break runs. Other tags are dropped.
// An input without text yields a single empty run.
func HTMLToRuns(input string) []Run {
	var runs []Run
	bold, italic := 0, 0
	z := html.NewTokenizer(strings.NewReader(sanitize.InlineOnly(input)))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if len(runs) == 0 {
				return []Run{{}}
			}
			return runs
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "strong":
				if tt == html.StartTagToken {
					bold++
				}
			case "em":
				if tt == html.StartTagToken {
					italic++
				}
			case "br":
				runs = append(runs, Run{Break: true})
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "strong":
				bold = max(bold-1, 0)
			case "em":
				italic = max(italic-1, 0)
			}
		case html.TextToken:
			segments := strings.Split(string(z.Text()), "\n")
			for i, segment := range segments {
				if segment != "" {
					runs = append(runs, Run{Text: segment, Bold: bold > 0, Italic: italic > 0})
				}
				if i < len(segments)-1 {
					runs = append(runs, Run{Break: true})
				}
			}
		}
	}
}
