// Package source collects documents for a pipeline run from a filesystem
// location, a source repository and a Confluence space.
package source

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/models"
)

// Source produces documents. An error means the whole source failed; per-item
// failures are logged and skipped by the source itself.
type Source interface {
	Name() string
	Process(ctx context.Context) ([]models.Document, error)
}

// FileParser turns one file into documents. Unknown formats yield (nil, nil).
// *extract.Registry implements it.
type FileParser interface {
	Parse(path string) ([]models.Document, error)
}

type options struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// Option configures a source.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient sets the HTTP client used by network sources.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FromConfig builds the configured sources in collection order: filesystem,
// repository, wiki. Unconfigured sources are left out.
func FromConfig(cfg config.SourcesConfig, parser FileParser, opts ...Option) ([]Source, error) {
	var sources []Source
	if cfg.FilesLocation != "" {
		sources = append(sources, NewFilesystem(cfg.FilesLocation, parser, opts...))
	}
	if cfg.Git != nil {
		repo, err := NewRepository(*cfg.Git, parser, opts...)
		if err != nil {
			return nil, err
		}
		sources = append(sources, repo)
	}
	if cfg.Confluence != nil {
		sources = append(sources, NewConfluence(*cfg.Confluence, opts...))
	}
	return sources, nil
}
