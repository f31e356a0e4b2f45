// Package extract turns files into documents. A Registry maps file extensions to
// parser capabilities (text, tabular, spreadsheet, page-document, word-document,
// presentation, image); unknown extensions have no parser and are skipped by callers.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
)

// Capability names a family of formats handled by one parser.
type Capability string

const (
	CapabilityText         Capability = "text"
	CapabilityTabular      Capability = "tabular"
	CapabilitySpreadsheet  Capability = "spreadsheet"
	CapabilityPageDocument Capability = "page-document"
	CapabilityWordDocument Capability = "word-document"
	CapabilityPresentation Capability = "presentation"
	CapabilityImage        Capability = "image"
)

// ErrUnavailable is returned (wrapped) when a registered format cannot be parsed in this deployment.
var ErrUnavailable = errors.New("format unavailable")

// Parser turns one file into zero or more documents.
type Parser interface {
	Capability() Capability
	// Available reports whether ext can be parsed here; a non-nil error wraps ErrUnavailable.
	Available(ext string) error
	Parse(path string) ([]models.Document, error)
}

// Availability is the answer to "is this extension supported in this deployment".
type Availability struct {
	Extension  string     `json:"extension"`
	Capability Capability `json:"capability,omitempty"`
	Supported  bool       `json:"supported"`
	Available  bool       `json:"available"`
	Reason     string     `json:"reason,omitempty"`
}

// Registry is the extension table. Build it once with NewRegistry.
type Registry struct {
	parsers map[string]Parser
	logger  *zap.Logger
	ocrCmd  string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger passed to parsers.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithOCRCommand sets the tesseract executable used by the image parser.
func WithOCRCommand(cmd string) RegistryOption {
	return func(r *Registry) {
		if cmd != "" {
			r.ocrCmd = cmd
		}
	}
}

// NewRegistry returns a registry with every built-in capability registered.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		parsers: make(map[string]Parser),
		logger:  zap.NewNop(),
		ocrCmd:  defaultOCRCommand,
	}
	for _, opt := range opts {
		opt(r)
	}

	text := &textParser{}
	for _, ext := range []string{".txt", ".md", ".rst"} {
		r.Register(ext, text)
	}
	tab := &tabularParser{logger: r.logger}
	r.Register(".csv", tab)
	r.Register(".tsv", tab)
	sheet := &spreadsheetParser{logger: r.logger}
	for _, ext := range []string{".xlsx", ".xlsm", ".ods", ".xls"} {
		r.Register(ext, sheet)
	}
	r.Register(".pdf", &pdfParser{logger: r.logger})
	word := &wordParser{}
	for _, ext := range []string{".docx", ".odt", ".rtf", ".doc"} {
		r.Register(ext, word)
	}
	slides := &presentationParser{}
	r.Register(".pptx", slides)
	r.Register(".odp", slides)
	img := newImageParser(r.ocrCmd)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".tiff", ".bmp"} {
		r.Register(ext, img)
	}
	return r
}

// Register binds ext (with or without leading dot, any case) to p, replacing any previous binding.
func (r *Registry) Register(ext string, p Parser) {
	r.parsers[normalizeExt(ext)] = p
}

// Lookup returns the parser for path's extension. It returns false for unknown
// extensions and for registered formats that are unavailable in this deployment.
func (r *Registry) Lookup(path string) (Parser, bool) {
	ext := normalizeExt(filepath.Ext(path))
	p, ok := r.parsers[ext]
	if !ok {
		return nil, false
	}
	if err := p.Available(ext); err != nil {
		r.logger.Debug("parser unavailable", zap.String("extension", ext), zap.Error(err))
		return nil, false
	}
	return p, true
}

// Parse dispatches path to its parser. Unknown extensions yield (nil, nil).
func (r *Registry) Parse(path string) ([]models.Document, error) {
	p, ok := r.Lookup(path)
	if !ok {
		return nil, nil
	}
	docs, err := p.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s (%s): %w", path, p.Capability(), err)
	}
	return docs, nil
}

// Availability answers the capability query for ext.
func (r *Registry) Availability(ext string) Availability {
	ext = normalizeExt(ext)
	a := Availability{Extension: ext}
	p, ok := r.parsers[ext]
	if !ok {
		a.Reason = "no parser registered"
		return a
	}
	a.Supported = true
	a.Capability = p.Capability()
	if err := p.Available(ext); err != nil {
		a.Reason = err.Error()
		return a
	}
	a.Available = true
	return a
}

// Capabilities returns the availability of every registered extension, sorted by extension.
func (r *Registry) Capabilities() []Availability {
	exts := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	out := make([]Availability, 0, len(exts))
	for _, ext := range exts {
		out = append(out, r.Availability(ext))
	}
	return out
}

// Extensions returns the available extensions, sorted.
func (r *Registry) Extensions() []string {
	var exts []string
	for _, a := range r.Capabilities() {
		if a.Available {
			exts = append(exts, a.Extension)
		}
	}
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func unavailable(format, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrUnavailable, format, reason)
}

func fileMetadata(path string) map[string]any {
	return map[string]any{models.MetaFilePath: path}
}
