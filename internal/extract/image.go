package extract

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/kura/internal/models"
)

const defaultOCRCommand = "tesseract"

// imageParser runs OCR by shelling out to tesseract ("tesseract <image> stdout").
type imageParser struct {
	command string

	once     sync.Once
	resolved string
	lookErr  error
}

func newImageParser(command string) *imageParser {
	return &imageParser{command: command}
}

func (p *imageParser) Capability() Capability { return CapabilityImage }

// Available reports whether the OCR binary can be found; the lookup runs once.
func (p *imageParser) Available(string) error {
	p.once.Do(func() {
		p.resolved, p.lookErr = exec.LookPath(p.command)
	})
	if p.lookErr != nil {
		return unavailable("image", fmt.Sprintf("OCR binary %q not found", p.command))
	}
	return nil
}

func (p *imageParser) Parse(path string) ([]models.Document, error) {
	if err := p.Available(""); err != nil {
		return nil, err
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(p.resolved, path, "stdout")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ocr: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	md := fileMetadata(path)
	md[MetaFormat] = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return []models.Document{models.NewDocument(validUTF8(stdout.Bytes()), md)}, nil
}
