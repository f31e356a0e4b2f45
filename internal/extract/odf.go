package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// odfContentPath is the path to the main content inside OpenDocument zips (.ods, .odp).
const odfContentPath = "content.xml"

// OpenDocument text elements (with optional attributes). Separate patterns keep opening and closing tags paired.
var (
	odfTextP    = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	odfTextSpan = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	odfTextH    = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)
)

// readZipEntry returns the bytes of the named entry of an in-memory zip.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}

// extractODF extracts the text of an OpenDocument file (spreadsheet or presentation)
// from content.xml, joining text:h, text:p and text:span contents with spaces.
func extractODF(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip: %w", err)
	}
	contentXML, err := readZipEntry(zr, odfContentPath)
	if err != nil {
		return "", err
	}
	s := string(contentXML)
	var b strings.Builder
	for _, re := range []*regexp.Regexp{odfTextH, odfTextP, odfTextSpan} {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			text := strings.TrimSpace(m[1])
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
	}
	return b.String(), nil
}
