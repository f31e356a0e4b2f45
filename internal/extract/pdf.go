package extract

import (
	"fmt"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
)

// Page metadata keys.
const (
	MetaPageNumber = "page_number"
	MetaNumPages   = "num_pages"
)

type pdfParser struct {
	logger *zap.Logger
}

func (p *pdfParser) Capability() Capability { return CapabilityPageDocument }

func (p *pdfParser) Available(string) error { return nil }

// Parse returns one document per page. A page whose text cannot be extracted is
// logged and kept with empty text so page numbers stay aligned.
func (p *pdfParser) Parse(path string) ([]models.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	numPages := r.NumPage()
	docs := make([]models.Document, 0, numPages)
	for i := 1; i <= numPages; i++ {
		md := fileMetadata(path)
		md[MetaPageNumber] = i
		md[MetaNumPages] = numPages
		docs = append(docs, models.NewDocument(p.pageText(r, i, path), md))
	}
	p.logger.Debug("parsed PDF", zap.String("path", path), zap.Int("pages", numPages))
	return docs, nil
}

func (p *pdfParser) pageText(r *pdf.Reader, n int, path string) (text string) {
	// the reader panics on some malformed content streams
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Warn("failed to extract page text", zap.String("path", path), zap.Int("page", n), zap.Any("panic", rec))
			text = ""
		}
	}()
	page := r.Page(n)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		p.logger.Warn("failed to extract page text", zap.String("path", path), zap.Int("page", n), zap.Error(err))
		return ""
	}
	return text
}
