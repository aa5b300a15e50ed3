package export

import (
	"bytes"
	"embed"
	"html/template"

	"policyforge/api/internal/block"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate = template.Must(template.ParseFS(templateFS, "templates/document.html"))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Topic    string
	BodyHTML template.HTML
}

// RenderDocumentHTML renders the print document for topic and blocks.
func RenderDocumentHTML(topic string, blocks []block.Block) (string, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	data := TemplateData{
		Topic: topic,
		// Body is assembled from sanitized fragments only.
		BodyHTML: template.HTML(RenderBodyHTML(blocks)),
	}
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
