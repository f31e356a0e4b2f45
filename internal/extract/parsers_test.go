package extract

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kura/internal/models"
)

func parseOne(t *testing.T, r *Registry, path string) []models.Document {
	t.Helper()
	docs, err := r.Parse(path)
	if err != nil {
		t.Fatalf("Parse(%s): %v", filepath.Base(path), err)
	}
	return docs
}

func TestText_plainUTF8(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.md", []byte("caf\xc3\xa9\nLine 2"))
	docs := parseOne(t, NewRegistry(), path)
	if len(docs) != 1 {
		t.Fatalf("len = %d", len(docs))
	}
	if docs[0].Text != "café\nLine 2" {
		t.Errorf("text = %q", docs[0].Text)
	}
	if docs[0].Metadata[models.MetaFilePath] != path {
		t.Errorf("metadata = %v", docs[0].Metadata)
	}
}

func TestText_invalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "raw.rst", []byte("hello\x80world"))
	docs := parseOne(t, NewRegistry(), path)
	if docs[0].Text != "hello\uFFFDworld" {
		t.Errorf("text = %q", docs[0].Text)
	}
}

func TestTabular_csv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "people.csv", []byte("name,age\nAda,36\n\"Lovelace, A\",37\n"))
	docs := parseOne(t, NewRegistry(), path)
	if len(docs) != 1 {
		t.Fatalf("len = %d", len(docs))
	}
	want := "name,age\nAda,36\nLovelace, A,37"
	if docs[0].Text != want {
		t.Errorf("text = %q, want %q", docs[0].Text, want)
	}
}

func TestTabular_tsvRaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rows.tsv", []byte("a\tb\tc\n1\t2\n"))
	docs := parseOne(t, NewRegistry(), path)
	if docs[0].Text != "a,b,c\n1,2" {
		t.Errorf("text = %q", docs[0].Text)
	}
}

func TestSpreadsheet_onePerSheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	if _, err := f.NewSheet("Totals"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	f.SetCellValue("Totals", "A1", "Sum")
	f.SetCellValue("Totals", "B1", 3)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	docs := parseOne(t, NewRegistry(), path)
	if len(docs) != 2 {
		t.Fatalf("len = %d", len(docs))
	}
	if docs[0].Text != "Title\nValue 1,Value 2" {
		t.Errorf("sheet1 text = %q", docs[0].Text)
	}
	if docs[0].Metadata[MetaSheetName] != "Sheet1" || docs[1].Metadata[MetaSheetName] != "Totals" {
		t.Errorf("sheet names = %v, %v", docs[0].Metadata[MetaSheetName], docs[1].Metadata[MetaSheetName])
	}
	if docs[1].Text != "Sum,3" {
		t.Errorf("totals text = %q", docs[1].Text)
	}
}

func TestSpreadsheet_notAWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.xlsx", []byte("not a zip"))
	if _, err := NewRegistry().Parse(path); err == nil {
		t.Error("expected error")
	}
}

// minimalZip returns zip bytes holding the given entries.
func minimalZip(entries map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range entries {
		fw, _ := w.Create(name)
		_, _ = fw.Write([]byte(body))
	}
	_ = w.Close()
	return buf.Bytes()
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func TestWord_docxParagraphsThenTables(t *testing.T) {
	body := `<w:document ` + wordNS + `><w:body>` +
		`<w:p w:rsidR="00AB"><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Name</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Role</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p><w:r><w:t> Ada </w:t></w:r></w:p></w:tc><w:tc><w:p></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p></w:p>` +
		`<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	dir := t.TempDir()
	path := writeFile(t, dir, "letter.docx", minimalZip(map[string]string{"word/document.xml": body}))
	docs := parseOne(t, NewRegistry(), path)
	if len(docs) != 1 {
		t.Fatalf("len = %d", len(docs))
	}
	want := "First paragraph\nSecond\ttabbed\nName\tRole\nAda"
	if docs[0].Text != want {
		t.Errorf("text = %q, want %q", docs[0].Text, want)
	}
	if docs[0].Metadata[MetaFormat] != "docx" {
		t.Errorf("format = %v", docs[0].Metadata[MetaFormat])
	}
}

func TestWord_docxContentTypes(t *testing.T) {
	ct := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/word/document2.xml"/>
</Types>`
	body := `<w:document ` + wordNS + `><w:body><w:p><w:r><w:t>From document2</w:t></w:r></w:p></w:body></w:document>`
	content := minimalZip(map[string]string{"[Content_Types].xml": ct, "word/document2.xml": body})
	got, err := extractDOCX(content)
	if err != nil {
		t.Fatalf("extractDOCX: %v", err)
	}
	if got != "From document2" {
		t.Errorf("got %q", got)
	}
}

func TestWord_docxMissingBody(t *testing.T) {
	if _, err := extractDOCX(minimalZip(map[string]string{"other.xml": "<x/>"})); err == nil {
		t.Error("expected error when document.xml is missing")
	}
	if _, err := extractDOCX([]byte("plain bytes")); err == nil {
		t.Error("expected error for non-zip content")
	}
}

func TestPresentation_pptxSlideOrder(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	content := minimalZip(map[string]string{
		"ppt/slides/slide10.xml": slide("Tenth"),
		"ppt/slides/slide2.xml":  slide("Second"),
		"ppt/slides/slide1.xml":  slide("First"),
	})
	dir := t.TempDir()
	path := writeFile(t, dir, "deck.pptx", content)
	docs := parseOne(t, NewRegistry(), path)
	if docs[0].Text != "First\nSecond\nTenth" {
		t.Errorf("text = %q", docs[0].Text)
	}
	if docs[0].Metadata[MetaFormat] != "pptx" {
		t.Errorf("format = %v", docs[0].Metadata[MetaFormat])
	}
}

func TestPresentation_odp(t *testing.T) {
	contentXML := `<office:document><office:body><draw:page><text:h>Slide title</text:h><text:p>Body text</text:p></draw:page></office:body></office:document>`
	dir := t.TempDir()
	path := writeFile(t, dir, "deck.odp", minimalZip(map[string]string{"content.xml": contentXML}))
	docs := parseOne(t, NewRegistry(), path)
	if docs[0].Text != "Slide title Body text" {
		t.Errorf("text = %q", docs[0].Text)
	}
}

func TestSpreadsheet_ods(t *testing.T) {
	contentXML := `<office:document><office:body><table:table><table:table-row><table:table-cell><text:p>Cell one</text:p></table:table-cell><table:table-cell><text:p>Cell two</text:p></table:table-cell></table:table-row></table:table></office:body></office:document>`
	dir := t.TempDir()
	path := writeFile(t, dir, "sheet.ods", minimalZip(map[string]string{"content.xml": contentXML}))
	docs := parseOne(t, NewRegistry(), path)
	if len(docs) != 1 || docs[0].Text != "Cell one Cell two" {
		t.Errorf("got %+v", docs)
	}
}

func TestSpreadsheet_odsContentNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sheet.ods", minimalZip(map[string]string{"meta.xml": "<x/>"}))
	if _, err := NewRegistry().Parse(path); err == nil {
		t.Error("expected error")
	}
}

func TestPDF_invalidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "paper.pdf", []byte("%PDF-1.4 truncated"))
	if _, err := NewRegistry().Parse(path); err == nil {
		t.Error("expected error for truncated PDF")
	}
}
