package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
)

type tabularParser struct {
	logger *zap.Logger
}

func (p *tabularParser) Capability() Capability { return CapabilityTabular }

func (p *tabularParser) Available(string) error { return nil }

// Parse serialises the whole table into one document: the header line followed by
// one line per row, cells joined by commas.
func (p *tabularParser) Parse(path string) ([]models.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	r := csv.NewReader(bytes.NewReader(content))
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		r.Comma = '\t'
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var lines []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read table: %w", err)
		}
		lines = append(lines, strings.Join(record, ","))
	}
	p.logger.Debug("parsed table", zap.String("path", path), zap.Int("rows", max(len(lines)-1, 0)))
	return []models.Document{models.NewDocument(validUTF8([]byte(strings.Join(lines, "\n"))), fileMetadata(path))}, nil
}
