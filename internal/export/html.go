package export

import (
	"strings"

	"policyforge/api/internal/block"
	"policyforge/api/internal/sanitize"
)

// RenderBodyHTML renders blocks in display order, one element per line.
// Headings become <h2>, lists <ul>, everything else a <p>.
func RenderBodyHTML(blocks []block.Block) string {
	sorted := block.Sorted(blocks)
	parts := make([]string, 0, len(sorted))
	for _, b := range sorted {
		parts = append(parts, renderBlock(b))
	}
	return strings.Join(parts, "\n")
}

func renderBlock(b block.Block) string {
	switch b.Type {
	case block.TypeHeading:
		return "<h2>" + sanitize.InlineOnly(b.Content.HTML()) + "</h2>"
	case block.TypeList:
		var sb strings.Builder
		sb.WriteString("<ul>")
		for _, item := range listItems(b) {
			sb.WriteString("<li>")
			sb.WriteString(item)
			sb.WriteString("</li>")
		}
		sb.WriteString("</ul>")
		return sb.String()
	default:
		return sanitize.EnsureWrapped(sanitize.Inline(b.Content.HTML()), "p")
	}
}

// listItems returns the inline-only HTML of every non-empty list item.
func listItems(b block.Block) []string {
	items := make([]string, 0, len(b.Content.Items))
	for _, item := range b.Content.ItemsHTML() {
		if html := sanitize.InlineOnly(strings.TrimSpace(item)); html != "" {
			items = append(items, html)
		}
	}
	return items
}
