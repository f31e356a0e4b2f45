package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/kura/internal/models"
)

// pptxSlidePathPrefix is the path prefix for slide XML files inside a .pptx zip.
const pptxSlidePathPrefix = "ppt/slides/slide"

// atTag matches <a:t>text</a:t> with any attributes.
var atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

type presentationParser struct{}

func (p *presentationParser) Capability() Capability { return CapabilityPresentation }

func (p *presentationParser) Available(string) error { return nil }

// Parse returns the text of all slides as one document.
func (p *presentationParser) Parse(path string) ([]models.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	var text string
	if ext == ".odp" {
		text, err = extractODF(content)
		if err != nil {
			err = fmt.Errorf("extract ODP: %w", err)
		}
	} else {
		text, err = extractPPTX(content)
	}
	if err != nil {
		return nil, err
	}
	md := fileMetadata(path)
	md[MetaFormat] = strings.TrimPrefix(ext, ".")
	return []models.Document{models.NewDocument(text, md)}, nil
}

// extractPPTX extracts <a:t> runs from every ppt/slides/slideN.xml, in slide order.
func extractPPTX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	var slides []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, pptxSlidePathPrefix) && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i].Name) < slideNumber(slides[j].Name)
	})

	lines := make([]string, 0, len(slides))
	for _, f := range slides {
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("extract PPTX: open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("extract PPTX: read %s: %w", f.Name, err)
		}
		var parts []string
		for _, m := range atTag.FindAllStringSubmatch(string(data), -1) {
			if s := strings.TrimSpace(m[1]); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " "))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func slideNumber(name string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, pptxSlidePathPrefix), ".xml"))
	if err != nil {
		return 0
	}
	return n
}
