package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/models"
)

// MetaRepository is the metadata key holding the repository URL.
const MetaRepository = "repository"

// fetcher materializes a repository checkout into dest.
type fetcher interface {
	Fetch(ctx context.Context, dest string) error
	Method() string
}

// Repository clones a repository into a scoped temporary directory and parses
// the files that pass the extension filter.
type Repository struct {
	cfg     config.GitConfig
	parser  FileParser
	logger  *zap.Logger
	fetcher fetcher
}

// NewRepository returns a repository source. The fetch method is chosen from
// cfg.Method: "git" uses the git CLI, "github" the GitHub REST API, and "auto"
// picks the API for github.com URLs when a token is configured.
func NewRepository(cfg config.GitConfig, parser FileParser, opts ...Option) (*Repository, error) {
	o := newOptions(opts)
	r := &Repository{cfg: cfg, parser: parser, logger: o.logger}
	switch method := resolveMethod(cfg); method {
	case "git":
		r.fetcher = &gitCLI{url: cfg.URL, branch: cfg.Branch}
	case "github":
		gh, err := newGitHubFetcher(cfg, newFileFilter(cfg), o)
		if err != nil {
			return nil, err
		}
		r.fetcher = gh
	default:
		return nil, fmt.Errorf("unknown repository fetch method %q", method)
	}
	return r, nil
}

func resolveMethod(cfg config.GitConfig) string {
	if cfg.Method != "" && cfg.Method != "auto" {
		return cfg.Method
	}
	if cfg.Token != "" && (cfg.APIURL != "" || isGitHubURL(cfg.URL)) {
		return "github"
	}
	return "git"
}

func isGitHubURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "github.com" || host == "www.github.com"
}

// Name returns "repository".
func (r *Repository) Name() string { return "repository" }

// Process fetches the repository and parses eligible files. The temporary
// checkout is removed before Process returns.
func (r *Repository) Process(ctx context.Context) ([]models.Document, error) {
	dir, err := os.MkdirTemp("", "repo_clone_")
	if err != nil {
		return nil, fmt.Errorf("failed to create clone directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("failed to remove clone directory", zap.String("path", dir), zap.Error(err))
		}
	}()

	r.logger.Info("fetching repository",
		zap.String("url", r.cfg.URL), zap.String("method", r.fetcher.Method()), zap.String("path", dir))
	if err := r.fetcher.Fetch(ctx, dir); err != nil {
		return nil, fmt.Errorf("failed to fetch repository %s: %w", r.cfg.URL, err)
	}

	paths, err := newFileFilter(r.cfg).collect(ctx, dir)
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		for _, doc := range parseLogged(r.parser, r.logger, path) {
			doc.Set(MetaRepository, r.cfg.URL)
			doc.Set(models.MetaFilePath, filepath.ToSlash(rel))
			docs = append(docs, doc)
		}
	}
	r.logger.Info("processed repository",
		zap.String("url", r.cfg.URL), zap.Int("files", len(paths)), zap.Int("documents", len(docs)))
	return docs, nil
}

// fileFilter selects repository files by lower-cased extension. Exclusions win
// over inclusions; max caps the number of selected files (0 means no cap).
type fileFilter struct {
	include map[string]bool
	exclude map[string]bool
	max     int
}

func newFileFilter(cfg config.GitConfig) fileFilter {
	return fileFilter{
		include: extensionSet(cfg.IncludeExtensions),
		exclude: extensionSet(cfg.ExcludeExtensions),
		max:     cfg.MaxFiles,
	}
}

func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

func (f fileFilter) allows(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if f.exclude[ext] {
		return false
	}
	if f.include != nil && !f.include[ext] {
		return false
	}
	return true
}

// collect walks root in lexical order, skipping .git directories.
func (f fileFilter) collect(ctx context.Context, root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !f.allows(d.Name()) {
			return nil
		}
		paths = append(paths, path)
		if f.max > 0 && len(paths) >= f.max {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return nil, fmt.Errorf("failed to list repository files: %w", err)
	}
	return paths, nil
}
