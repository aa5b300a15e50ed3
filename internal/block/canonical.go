package block

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"policyforge/api/internal/sanitize"
)

// Raw is a block of unknown shape as decoded from JSON.
type Raw = map[string]any

var lineBreak = regexp.MustCompile(`\r?\n`)

var typeAliases = map[string]Type{
	"heading":   TypeHeading,
	"h1":        TypeHeading,
	"h2":        TypeHeading,
	"h3":        TypeHeading,
	"h4":        TypeHeading,
	"h5":        TypeHeading,
	"h6":        TypeHeading,
	"header":    TypeHeading,
	"title":     TypeHeading,
	"list":      TypeList,
	"ul":        TypeList,
	"ol":        TypeList,
	"paragraph": TypeParagraph,
}

// NormalizeType maps a wire type (including aliases) onto the closed set.
// Anything unrecognized is a paragraph.
func NormalizeType(s string) Type {
	if t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return TypeParagraph
}

// Canonicalize turns a raw block into a canonical Block. index is the
// block's position in its array and supplies the order when none is given.
// Missing or malformed fields fall back to defaults; it never fails.
func Canonicalize(raw Raw, index int) Block {
	b := Block{
		ID:    scalarString(raw["id"]),
		Type:  NormalizeType(scalarString(raw["type"])),
		Order: float64(index + 1),
	}
	if order, ok := finiteNumber(raw["order"]); ok {
		b.Order = order
	}
	format, explicit := parseFormat(raw["format"])

	switch b.Type {
	case TypeHeading:
		text := toText(raw["content"])
		caption := strings.TrimSpace(scalarString(raw["title"]))
		if caption == "" {
			caption = sanitize.StripTags(text)
		}
		b.Title = caption
		b.Content = Content{Format: FormatPlain, Text: caption}
	case TypeList:
		items := toItems(raw["content"])
		if !explicit {
			format = sniffItems(items)
			if format == FormatInline {
				for i, item := range items {
					if !sanitize.HasMarkup(item) {
						items[i] = sanitize.Escape(item)
					}
				}
			}
		}
		b.Content = Content{Format: format, Items: items}
	default:
		text := toText(raw["content"])
		if !explicit {
			format = sniff(text)
		}
		b.Content = Content{Format: format, Text: text}
	}
	return b
}

// CanonicalizeAll canonicalizes every element of raws by position.
func CanonicalizeAll(raws []Raw) []Block {
	out := make([]Block, len(raws))
	for i, raw := range raws {
		out[i] = Canonicalize(raw, i)
	}
	return out
}

// Raw returns the wire shape of b, the inverse of Canonicalize.
func (b Block) Raw() Raw {
	raw := Raw{
		"id":     b.ID,
		"type":   string(b.Type),
		"format": string(b.Content.Format),
		"order":  b.Order,
	}
	if b.Type == TypeList {
		items := make([]any, len(b.Content.Items))
		for i, item := range b.Content.Items {
			items[i] = item
		}
		raw["content"] = items
	} else {
		raw["content"] = b.Content.Text
	}
	if b.Title != "" {
		raw["title"] = b.Title
	}
	return raw
}

func parseFormat(v any) (Format, bool) {
	s, _ := v.(string)
	switch Format(strings.ToLower(s)) {
	case FormatPlain:
		return FormatPlain, true
	case FormatInline:
		return FormatInline, true
	}
	return FormatPlain, false
}

func sniff(s string) Format {
	if sanitize.HasMarkup(s) {
		return FormatInline
	}
	return FormatPlain
}

func sniffItems(items []string) Format {
	for _, item := range items {
		if sanitize.HasMarkup(item) {
			return FormatInline
		}
	}
	return FormatPlain
}

func finiteNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case bool, int, int64:
		return fmt.Sprint(s)
	}
	return ""
}

func toText(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any:
		parts := make([]string, 0, len(c))
		for _, item := range c {
			parts = append(parts, toText(item))
		}
		return strings.Join(parts, "\n")
	case []string:
		return strings.Join(c, "\n")
	case map[string]any:
		data, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return scalarString(v)
}

func toItems(v any) []string {
	switch c := v.(type) {
	case []any:
		items := make([]string, len(c))
		for i, item := range c {
			items[i] = toText(item)
		}
		return items
	case []string:
		return append([]string(nil), c...)
	case nil:
		return []string{}
	}
	items := []string{}
	for _, line := range lineBreak.Split(toText(v), -1) {
		if line = strings.TrimSpace(line); line != "" {
			items = append(items, line)
		}
	}
	return items
}
