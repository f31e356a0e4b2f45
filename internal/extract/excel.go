package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
)

// MetaSheetName is the metadata key holding a worksheet name.
const MetaSheetName = "sheet_name"

type spreadsheetParser struct {
	logger *zap.Logger
}

func (p *spreadsheetParser) Capability() Capability { return CapabilitySpreadsheet }

func (p *spreadsheetParser) Available(ext string) error {
	if ext == ".xls" {
		return unavailable("xls", "legacy binary workbooks are not supported, convert to .xlsx")
	}
	return nil
}

// Parse returns one document per worksheet for OOXML workbooks, rows joined by
// newlines and cells by commas. OpenDocument spreadsheets yield a single document.
func (p *spreadsheetParser) Parse(path string) ([]models.Document, error) {
	if strings.EqualFold(filepath.Ext(path), ".ods") {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		text, err := extractODF(content)
		if err != nil {
			return nil, fmt.Errorf("extract ODS: %w", err)
		}
		return []models.Document{models.NewDocument(text, fileMetadata(path))}, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var docs []models.Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			p.logger.Warn("failed to read sheet", zap.String("path", path), zap.String("sheet", sheet), zap.Error(err))
			continue
		}
		lines := make([]string, len(rows))
		for i, row := range rows {
			lines[i] = strings.Join(row, ",")
		}
		md := fileMetadata(path)
		md[MetaSheetName] = sheet
		docs = append(docs, models.NewDocument(strings.Join(lines, "\n"), md))
	}
	p.logger.Debug("parsed workbook", zap.String("path", path), zap.Int("sheets", len(docs)))
	return docs, nil
}
