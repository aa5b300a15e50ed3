// Package export renders canonical policy blocks to HTML, PDF, DOCX and
// clipboard text.
package export

import (
	"errors"
	"fmt"
	"strings"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DefaultTopic is used when a policy has no topic to title the document with.
const DefaultTopic = "ESG Policy"

// ParseFormat accepts pdf or docx in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPDF, FormatDOCX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}

func (f Format) Ext() string { return string(f) }

func (f Format) MimeType() string {
	if f == FormatDOCX {
		return MimeDOCX
	}
	return MimePDF
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrInvalidFormat indicates a format other than pdf or docx was requested.
	ErrInvalidFormat = errors.New("export format invalid")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
