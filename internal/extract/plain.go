package extract

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kura/internal/models"
)

type textParser struct{}

func (p *textParser) Capability() Capability { return CapabilityText }

func (p *textParser) Available(string) error { return nil }

// Parse returns the whole file as one document.
func (p *textParser) Parse(path string) ([]models.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return []models.Document{models.NewDocument(validUTF8(content), fileMetadata(path))}, nil
}

// validUTF8 returns content as string; invalid UTF-8 sequences are replaced with the replacement character.
func validUTF8(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd")
	}
	return string(content)
}
