package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

const (
	nsW             = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR             = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsPkgRels       = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsContentTypes  = "http://schemas.openxmlformats.org/package/2006/content-types"
	relOfficeDoc    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relCoreProps    = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	relStyles       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles"
	relNumbering    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/numbering"
	bulletNumID     = "1"
	bulletAbstractI = "0"
)

// WriteDOCX packages doc as a WordprocessingML (.docx) archive. The output
// depends only on doc, so re-exporting unchanged data is byte-identical.
func WriteDOCX(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := []struct {
		name string
		doc  *etree.Document
	}{
		{"[Content_Types].xml", contentTypesXML()},
		{"_rels/.rels", packageRelsXML()},
		{"docProps/core.xml", corePropsXML(doc.Title, doc.Modified)},
		{"word/_rels/document.xml.rels", documentRelsXML()},
		{"word/styles.xml", stylesXML()},
		{"word/numbering.xml", numberingXML()},
		{"word/document.xml", documentXML(doc)},
	}
	for _, part := range parts {
		if err := writeXMLToZip(zw, part.name, part.doc); err != nil {
			return nil, fmt.Errorf("write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	return writeDataToZip(zw, name, buf.Bytes())
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func newXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	return doc
}

func contentTypesXML() *etree.Document {
	doc := newXML()
	types := doc.CreateElement("Types")
	types.CreateAttr("xmlns", nsContentTypes)

	defaults := []struct{ ext, ct string }{
		{"rels", "application/vnd.openxmlformats-package.relationships+xml"},
		{"xml", "application/xml"},
	}
	for _, d := range defaults {
		def := types.CreateElement("Default")
		def.CreateAttr("Extension", d.ext)
		def.CreateAttr("ContentType", d.ct)
	}
	overrides := []struct{ part, ct string }{
		{"/word/document.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"},
		{"/word/styles.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"},
		{"/word/numbering.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.numbering+xml"},
		{"/docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml"},
	}
	for _, o := range overrides {
		el := types.CreateElement("Override")
		el.CreateAttr("PartName", o.part)
		el.CreateAttr("ContentType", o.ct)
	}
	return doc
}

func relationships(rels ...[3]string) *etree.Document {
	doc := newXML()
	root := doc.CreateElement("Relationships")
	root.CreateAttr("xmlns", nsPkgRels)
	for _, rel := range rels {
		el := root.CreateElement("Relationship")
		el.CreateAttr("Id", rel[0])
		el.CreateAttr("Type", rel[1])
		el.CreateAttr("Target", rel[2])
	}
	return doc
}

func packageRelsXML() *etree.Document {
	return relationships(
		[3]string{"rId1", relOfficeDoc, "word/document.xml"},
		[3]string{"rId2", relCoreProps, "docProps/core.xml"},
	)
}

func documentRelsXML() *etree.Document {
	return relationships(
		[3]string{"rId1", relStyles, "styles.xml"},
		[3]string{"rId2", relNumbering, "numbering.xml"},
	)
}

func corePropsXML(title string, modified time.Time) *etree.Document {
	doc := newXML()
	props := doc.CreateElement("cp:coreProperties")
	props.CreateAttr("xmlns:cp", "http://schemas.openxmlformats.org/package/2006/metadata/core-properties")
	props.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	props.CreateAttr("xmlns:dcterms", "http://purl.org/dc/terms/")
	props.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")

	props.CreateElement("dc:title").SetText(title)
	props.CreateElement("dc:creator").SetText("policyforge")
	if !modified.IsZero() {
		for _, name := range []string{"dcterms:created", "dcterms:modified"} {
			el := props.CreateElement(name)
			el.CreateAttr("xsi:type", "dcterms:W3CDTF")
			el.SetText(modified.UTC().Format(time.RFC3339))
		}
	}
	return doc
}

func stylesXML() *etree.Document {
	doc := newXML()
	styles := doc.CreateElement("w:styles")
	styles.CreateAttr("xmlns:w", nsW)

	defaults := styles.CreateElement("w:docDefaults").CreateElement("w:rPrDefault").CreateElement("w:rPr")
	fonts := defaults.CreateElement("w:rFonts")
	fonts.CreateAttr("w:ascii", "Arial")
	fonts.CreateAttr("w:hAnsi", "Arial")
	fonts.CreateAttr("w:cs", "Arial")
	defaults.CreateElement("w:sz").CreateAttr("w:val", "24")

	addStyle := func(id, name string, size int, bold bool) *etree.Element {
		style := styles.CreateElement("w:style")
		style.CreateAttr("w:type", "paragraph")
		style.CreateAttr("w:styleId", id)
		style.CreateElement("w:name").CreateAttr("w:val", name)
		if id != "Normal" {
			style.CreateElement("w:basedOn").CreateAttr("w:val", "Normal")
		}
		if size > 0 || bold {
			rPr := style.CreateElement("w:rPr")
			if bold {
				rPr.CreateElement("w:b")
			}
			if size > 0 {
				rPr.CreateElement("w:sz").CreateAttr("w:val", strconv.Itoa(size))
			}
		}
		return style
	}
	addStyle("Normal", "Normal", 0, false).CreateAttr("w:default", "1")
	addStyle(StyleTitle, "Title", 48, true)
	addStyle(StyleHeading2, "heading 2", 28, true)
	addStyle(StyleListBullet, "List Bullet", 0, false)
	return doc
}

func numberingXML() *etree.Document {
	doc := newXML()
	numbering := doc.CreateElement("w:numbering")
	numbering.CreateAttr("xmlns:w", nsW)

	abstract := numbering.CreateElement("w:abstractNum")
	abstract.CreateAttr("w:abstractNumId", bulletAbstractI)
	lvl := abstract.CreateElement("w:lvl")
	lvl.CreateAttr("w:ilvl", "0")
	lvl.CreateElement("w:start").CreateAttr("w:val", "1")
	lvl.CreateElement("w:numFmt").CreateAttr("w:val", "bullet")
	lvl.CreateElement("w:lvlText").CreateAttr("w:val", "•")
	lvl.CreateElement("w:lvlJc").CreateAttr("w:val", "left")
	ind := lvl.CreateElement("w:pPr").CreateElement("w:ind")
	ind.CreateAttr("w:left", "720")
	ind.CreateAttr("w:hanging", "360")

	num := numbering.CreateElement("w:num")
	num.CreateAttr("w:numId", bulletNumID)
	num.CreateElement("w:abstractNumId").CreateAttr("w:val", bulletAbstractI)
	return doc
}

func documentXML(d Document) *etree.Document {
	doc := newXML()
	root := doc.CreateElement("w:document")
	root.CreateAttr("xmlns:w", nsW)
	root.CreateAttr("xmlns:r", nsR)
	body := root.CreateElement("w:body")

	for _, p := range d.Paragraphs {
		writeParagraph(body, p)
	}

	sect := body.CreateElement("w:sectPr")
	pgSz := sect.CreateElement("w:pgSz")
	pgSz.CreateAttr("w:w", "11906")
	pgSz.CreateAttr("w:h", "16838")
	pgMar := sect.CreateElement("w:pgMar")
	for _, side := range []string{"w:top", "w:right", "w:bottom", "w:left"} {
		pgMar.CreateAttr(side, "1440")
	}
	return doc
}

func writeParagraph(body *etree.Element, p Paragraph) {
	para := body.CreateElement("w:p")
	if p.Style != "" || p.Bullet || p.SpacingAfter > 0 {
		pPr := para.CreateElement("w:pPr")
		if p.Style != "" {
			pPr.CreateElement("w:pStyle").CreateAttr("w:val", p.Style)
		}
		if p.Bullet {
			numPr := pPr.CreateElement("w:numPr")
			numPr.CreateElement("w:ilvl").CreateAttr("w:val", "0")
			numPr.CreateElement("w:numId").CreateAttr("w:val", bulletNumID)
		}
		if p.SpacingAfter > 0 {
			pPr.CreateElement("w:spacing").CreateAttr("w:after", strconv.Itoa(p.SpacingAfter))
		}
	}
	for _, run := range p.Runs {
		r := para.CreateElement("w:r")
		if run.Break {
			r.CreateElement("w:br")
			continue
		}
		if run.Bold || run.Italic || run.Size > 0 {
			rPr := r.CreateElement("w:rPr")
			if run.Bold {
				rPr.CreateElement("w:b")
			}
			if run.Italic {
				rPr.CreateElement("w:i")
			}
			if run.Size > 0 {
				rPr.CreateElement("w:sz").CreateAttr("w:val", strconv.Itoa(run.Size))
			}
		}
		t := r.CreateElement("w:t")
		t.CreateAttr("xml:space", "preserve")
		t.SetText(run.Text)
	}
}
