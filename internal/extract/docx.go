package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lu4p/cat"

	"github.com/hyperjump/kura/internal/models"
)

// MetaFormat is the metadata key holding the source format (extension without dot).
const MetaFormat = "format"

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// docxMainContentType is the content type for the main document in DOCX files.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// partNameRe extracts PartName from Override elements in [Content_Types].xml; partNameRe2 handles
// ContentType appearing before PartName.
var (
	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

type wordParser struct{}

func (p *wordParser) Capability() Capability { return CapabilityWordDocument }

func (p *wordParser) Available(ext string) error {
	if ext == ".doc" {
		return unavailable("doc", "legacy binary documents are not supported, convert to .docx")
	}
	return nil
}

// Parse returns one document per file. For .docx the text is the body paragraphs,
// one per line, followed by table rows with non-empty cells joined by tabs.
func (p *wordParser) Parse(path string) ([]models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	md := fileMetadata(path)
	md[MetaFormat] = strings.TrimPrefix(ext, ".")

	if ext != ".docx" {
		text, err := cat.File(path)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", ext, err)
		}
		return []models.Document{models.NewDocument(strings.TrimSpace(text), md)}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text, err := extractDOCX(content)
	if err != nil {
		return nil, err
	}
	return []models.Document{models.NewDocument(text, md)}, nil
}

// findDocxMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	data, err := readZipEntry(zr, contentTypesPath)
	if err != nil {
		return ""
	}
	content := string(data)
	if m := partNameRe.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimPrefix(m[1], "/")
	}
	if m := partNameRe2.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimPrefix(m[1], "/")
	}
	return ""
}

// extractDOCX extracts text from .docx bytes. The document body is streamed with
// encoding/xml so paragraph and table structure survives attributes on w:p and w:r.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	docXML, err := readZipEntry(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	paragraphs, rows, err := walkDocumentXML(docXML)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	return strings.Join(append(paragraphs, rows...), "\n"), nil
}

// walkDocumentXML returns the non-empty top-level paragraphs and the non-empty
// rows of top-level tables. Nested table content is folded into its outer cell.
func walkDocumentXML(data []byte) (paragraphs, rows []string, err error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		tableDepth int
		inRun      bool
		inText     bool
		para       strings.Builder
		cellParas  []string
		cells      []string
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth == 1 {
					cells = nil
				}
			case "tc":
				if tableDepth == 1 {
					cellParas = nil
				}
			case "p":
				para.Reset()
			case "r":
				inRun = true
			case "t":
				inText = inRun
			case "tab":
				if inRun {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					para.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				inRun = false
			case "t":
				inText = false
			case "p":
				text := para.String()
				if tableDepth == 0 {
					if text != "" {
						paragraphs = append(paragraphs, text)
					}
				} else {
					cellParas = append(cellParas, text)
				}
			case "tc":
				if tableDepth == 1 {
					cells = append(cells, strings.TrimSpace(strings.Join(cellParas, "\n")))
				}
			case "tr":
				if tableDepth == 1 {
					var nonEmpty []string
					for _, c := range cells {
						if c != "" {
							nonEmpty = append(nonEmpty, c)
						}
					}
					if row := strings.Join(nonEmpty, "\t"); row != "" {
						rows = append(rows, row)
					}
				}
			case "tbl":
				tableDepth--
			}
		}
	}
	return paragraphs, rows, nil
}
