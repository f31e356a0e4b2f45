package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
)

// Filesystem reads a single file or every file under a directory.
type Filesystem struct {
	location string
	parser   FileParser
	logger   *zap.Logger
}

// NewFilesystem returns a source for location.
func NewFilesystem(location string, parser FileParser, opts ...Option) *Filesystem {
	o := newOptions(opts)
	return &Filesystem{location: location, parser: parser, logger: o.logger}
}

// Name returns "filesystem".
func (f *Filesystem) Name() string { return "filesystem" }

// Process parses the location. A missing location is an error; unsupported and
// unparsable files are skipped.
func (f *Filesystem) Process(ctx context.Context) ([]models.Document, error) {
	info, err := os.Stat(f.location)
	if err != nil {
		return nil, fmt.Errorf("files location %s: %w", f.location, err)
	}
	if !info.IsDir() {
		return f.parseFile(f.location), nil
	}

	var docs []models.Document
	files := 0
	err = filepath.WalkDir(f.location, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			f.logger.Warn("cannot read path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		files++
		docs = append(docs, f.parseFile(path)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.logger.Info("processed files location",
		zap.String("location", f.location), zap.Int("files", files), zap.Int("documents", len(docs)))
	return docs, nil
}

func (f *Filesystem) parseFile(path string) []models.Document {
	return parseLogged(f.parser, f.logger, path)
}

// parseLogged parses one file, logging and absorbing parser errors.
func parseLogged(parser FileParser, logger *zap.Logger, path string) []models.Document {
	docs, err := parser.Parse(path)
	if err != nil {
		logger.Warn("failed to parse file", zap.String("path", path), zap.Error(err))
		return nil
	}
	if docs == nil {
		logger.Debug("skipping unsupported file", zap.String("path", path))
	}
	return docs
}
