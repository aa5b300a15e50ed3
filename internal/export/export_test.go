package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"policyforge/api/internal/block"
)

func heading(id, title string, order float64) block.Block {
	return block.Block{ID: id, Type: block.TypeHeading, Title: title, Content: block.Content{Format: block.FormatPlain, Text: title}, Order: order}
}

func paragraph(id, text string, format block.Format, order float64) block.Block {
	return block.Block{ID: id, Type: block.TypeParagraph, Content: block.Content{Format: format, Text: text}, Order: order}
}

func list(id string, order float64, format block.Format, items ...string) block.Block {
	return block.Block{ID: id, Type: block.TypeList, Content: block.Content{Format: format, Items: items}, Order: order}
}

func TestRenderBodyHTML(t *testing.T) {
	tests := []struct {
		name     string
		blocks   []block.Block
		expected string
	}{
		{
			name:     "empty",
			blocks:   nil,
			expected: "",
		},
		{
			name:     "heading is escaped plain caption",
			blocks:   []block.Block{heading("h", "R&D <Scope>", 1)},
			expected: "<h2>R&amp;D &lt;Scope&gt;</h2>",
		},
		{
			name:     "plain paragraph with newline",
			blocks:   []block.Block{paragraph("p", "one\ntwo", block.FormatPlain, 1)},
			expected: "<p>one<br>two</p>",
		},
		{
			name:     "inline paragraph already wrapped",
			blocks:   []block.Block{paragraph("p", `<p onclick="x()">Hi <b>there</b></p>`, block.FormatInline, 1)},
			expected: "<p>Hi <strong>there</strong></p>",
		},
		{
			name:     "inline paragraph gets wrapped",
			blocks:   []block.Block{paragraph("p", "Hi <em>there</em><script>x()</script>", block.FormatInline, 1)},
			expected: "<p>Hi <em>there</em></p>",
		},
		{
			name:     "list drops empty items and block tags",
			blocks:   []block.Block{list("l", 1, block.FormatInline, "<p>one</p>", "  ", "<strong>two</strong>", "<p></p>")},
			expected: "<ul><li>one</li><li><strong>two</strong></li></ul>",
		},
		{
			name: "ordered by order then id",
			blocks: []block.Block{
				paragraph("b", "second", block.FormatPlain, 5),
				paragraph("a", "first", block.FormatPlain, 5),
				heading("z", "Top", 1),
			},
			expected: "<h2>Top</h2>\n<p>first</p>\n<p>second</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RenderBodyHTML(tt.blocks))
		})
	}
}

func TestRenderBodyHTMLIsDeterministic(t *testing.T) {
	blocks := []block.Block{
		paragraph("beta", "B", block.FormatPlain, 5),
		paragraph("alpha", "A", block.FormatPlain, 5),
	}
	first := RenderBodyHTML(blocks)
	for range 5 {
		assert.Equal(t, first, RenderBodyHTML(blocks))
	}
	assert.Less(t, strings.Index(first, ">A<"), strings.Index(first, ">B<"))
}

func TestRenderDocumentHTML(t *testing.T) {
	html, err := RenderDocumentHTML("Water <Conservation>", []block.Block{heading("h", "Scope", 1)})
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Water &lt;Conservation&gt;</title>")
	assert.Contains(t, html, "<h1>Water &lt;Conservation&gt;</h1>")
	assert.Contains(t, html, "@page")
	assert.Contains(t, html, "font-size: 22pt")
	// Body HTML must not be escaped.
	assert.Contains(t, html, "<h2>Scope</h2>")
	assert.NotContains(t, html, "&lt;h2&gt;")

	empty, err := RenderDocumentHTML("", nil)
	require.NoError(t, err)
	assert.Contains(t, empty, "<h1>ESG Policy</h1>")
	assert.Contains(t, empty, "</html>")
}

func TestHTMLToRuns(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Run
	}{
		{"empty", "", []Run{{}}},
		{"plain", "Hello", []Run{{Text: "Hello"}}},
		{
			name:  "marks",
			input: "a <b>bold <i>both</i></b> c",
			want: []Run{
				{Text: "a "},
				{Text: "bold ", Bold: true},
				{Text: "both", Bold: true, Italic: true},
				{Text: " c"},
			},
		},
		{
			name:  "breaks",
			input: "one<br>two<br/>three",
			want:  []Run{{Text: "one"}, {Break: true}, {Text: "two"}, {Break: true}, {Text: "three"}},
		},
		{
			name:  "newline in text",
			input: "x\ny",
			want:  []Run{{Text: "x"}, {Break: true}, {Text: "y"}},
		},
		{
			name:  "block wrappers dropped",
			input: "<p>Fish &amp; <em>chips</em></p>",
			want:  []Run{{Text: "Fish & "}, {Text: "chips", Italic: true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTMLToRuns(tt.input))
		})
	}
}

func TestBuildDocument(t *testing.T) {
	doc := BuildDocument("Water", []block.Block{
		list("l", 2, block.FormatPlain, "a", "", "b"),
		heading("h", "Scope", 1),
		paragraph("p", "Body", block.FormatPlain, 3),
	})

	require.Len(t, doc.Paragraphs, 5)
	assert.Equal(t, StyleTitle, doc.Paragraphs[0].Style)
	assert.Equal(t, []Run{{Text: "Water", Bold: true, Size: 48}}, doc.Paragraphs[0].Runs)
	assert.Equal(t, StyleHeading2, doc.Paragraphs[1].Style)
	assert.True(t, doc.Paragraphs[2].Bullet)
	assert.Equal(t, []Run{{Text: "a"}}, doc.Paragraphs[2].Runs)
	assert.Equal(t, []Run{{Text: "b"}}, doc.Paragraphs[3].Runs)
	assert.Equal(t, "", doc.Paragraphs[4].Style)
}

func TestWriteDOCX(t *testing.T) {
	doc := BuildDocument("Water", []block.Block{
		heading("h", "Scope", 1),
		list("l", 2, block.FormatInline, "<strong>Reduce</strong> use"),
		paragraph("p", "line<br>break", block.FormatInline, 3),
	})
	data, err := WriteDOCX(doc)
	require.NoError(t, err)

	parts := readZip(t, data)
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml", "word/styles.xml", "word/numbering.xml", "word/_rels/document.xml.rels", "docProps/core.xml"} {
		assert.Contains(t, parts, name)
	}

	xml := etree.NewDocument()
	require.NoError(t, xml.ReadFromBytes(parts["word/document.xml"]))
	paras := xml.FindElements("//w:body/w:p")
	require.Len(t, paras, 4)
	assert.Equal(t, "Heading2", paras[1].FindElement("w:pPr/w:pStyle").SelectAttrValue("w:val", ""))
	assert.NotNil(t, paras[2].FindElement("w:pPr/w:numPr/w:numId"))
	assert.NotNil(t, paras[2].FindElement("w:r/w:rPr/w:b"))
	assert.NotNil(t, paras[3].FindElement("w:r/w:br"))
	assert.NotNil(t, xml.FindElement("//w:body/w:sectPr"))

	again, err := WriteDOCX(doc)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestWriteDOCXEmptyBlocks(t *testing.T) {
	data, err := WriteDOCX(BuildDocument("Empty", nil))
	require.NoError(t, err)

	xml := etree.NewDocument()
	require.NoError(t, xml.ReadFromBytes(readZip(t, data)["word/document.xml"]))
	assert.Len(t, xml.FindElements("//w:body/w:p"), 1)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{`a\b/c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"Q1/Q2: Plan", "Q1_Q2_ Plan"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"é", "%C3%A9"},                        // UTF-8 bytes encoded individually
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	f, err = ParseFormat("docx")
	require.NoError(t, err)
	assert.Equal(t, MimeDOCX, f.MimeType())

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestBuildClipboard(t *testing.T) {
	clip := BuildClipboard("Water Use", []block.Block{
		paragraph("p", "Cut <em>waste</em> now", block.FormatInline, 3),
		heading("h", "Scope & Aim", 1),
		list("l", 2, block.FormatPlain, "meters", "", "leaks"),
	})

	assert.Equal(t, "WATER USE\n\nScope & Aim\n• meters\n• leaks\nCut waste now", clip.Text)
	assert.True(t, strings.HasPrefix(clip.HTML, `<h1 style="font-size:20px;margin:0 0 12px">Water Use</h1>`))
	assert.Contains(t, clip.HTML, `<h2 style="font-size:16px;margin:16px 0 8px">Scope &amp; Aim</h2>`)
	assert.Contains(t, clip.HTML, "<li>meters</li><li>leaks</li>")
	assert.Contains(t, clip.HTML, `<p style="margin:6px 0">Cut <em>waste</em> now</p>`)
	assert.Equal(t, 8, clip.Words)
	assert.Equal(t, len("Scope & Aim\nmeters\nleaks\nCut waste now"), clip.Chars)
}

type fakeRenderer struct {
	calls int
	html  string
	err   error
}

func (f *fakeRenderer) RenderPDF(_ context.Context, html string) ([]byte, error) {
	f.calls++
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

type memoryCache struct{ data map[string][]byte }

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, data []byte) error {
	m.data[key] = data
	return nil
}

type failingArchive struct{ calls int }

func (f *failingArchive) Put(context.Context, string, string, string, []byte) (string, error) {
	f.calls++
	return "", errors.New("bucket unavailable")
}

type recordingObserver struct{ cached []bool }

func (r *recordingObserver) ObserveExport(_ string, cached bool, _ time.Duration, _ error) {
	r.cached = append(r.cached, cached)
}

func TestServiceExportPDF(t *testing.T) {
	renderer := &fakeRenderer{}
	cache := &memoryCache{data: map[string][]byte{}}
	archive := &failingArchive{}
	observer := &recordingObserver{}
	svc := NewService(renderer, zaptest.NewLogger(t), WithCache(cache), WithArchive(archive), WithObserver(observer))

	p := block.Policy{ID: "p1", Topic: `Water: "Saving"?`, Blocks: []block.Block{heading("h", "Scope", 1)}, Meta: block.Meta{ModifiedAt: time.Unix(100, 0)}}
	res, err := svc.Export(context.Background(), p, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", res.MimeType)
	assert.Equal(t, "Water_ _Saving__.pdf", res.Filename)
	assert.Equal(t, []byte("%PDF-1.4 fake"), res.Data)
	assert.Contains(t, renderer.html, "<h2>Scope</h2>")
	assert.Equal(t, 1, archive.calls)

	again, err := svc.Export(context.Background(), p, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, res.Data, again.Data)
	assert.Equal(t, 1, renderer.calls, "second export served from cache")
	assert.Equal(t, []bool{false, true}, observer.cached)

	p.Meta.ModifiedAt = time.Unix(200, 0)
	_, err = svc.Export(context.Background(), p, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, 2, renderer.calls)
}

func TestServiceExportErrors(t *testing.T) {
	p := block.Policy{ID: "p1", Topic: "T"}

	_, err := NewService(nil, nil).Export(context.Background(), p, FormatPDF)
	assert.ErrorIs(t, err, ErrPDFDependencyMissing)

	_, err = NewService(&fakeRenderer{}, nil).Export(context.Background(), p, Format("xml"))
	assert.ErrorIs(t, err, ErrInvalidFormat)

	boom := errors.New("chrome crashed")
	_, err = NewService(&fakeRenderer{err: boom}, nil).Export(context.Background(), p, FormatPDF)
	assert.ErrorIs(t, err, boom)
}

func TestServiceExportDOCXEmpty(t *testing.T) {
	res, err := NewService(nil, nil).Export(context.Background(), block.Policy{ID: "p", Topic: "Empty"}, FormatDOCX)
	require.NoError(t, err)
	assert.Equal(t, "Empty.docx", res.Filename)
	assert.Equal(t, MimeDOCX, res.MimeType)
	assert.Contains(t, readZip(t, res.Data), "word/document.xml")
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	parts := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		parts[f.Name] = body
	}
	return parts
}

func TestChromeRendererMissingExecutable(t *testing.T) {
	r := NewChromeRenderer("/nonexistent/chrome", 0)
	assert.Equal(t, 30*time.Second, r.Timeout)
	assert.Equal(t, 5*time.Second, NewChromeRenderer("", 5*time.Second).Timeout)

	for _, path := range []string{"/nonexistent/chrome", "policyforge-no-such-chrome"} {
		r := NewChromeRenderer(path, time.Second)
		pdf, err := r.RenderPDF(context.Background(), "<html><body>x</body></html>")
		require.ErrorIs(t, err, ErrPDFDependencyMissing)
		assert.Contains(t, err.Error(), path)
		assert.Nil(t, pdf)
	}
}
