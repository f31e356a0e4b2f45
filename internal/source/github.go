package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	gh "github.com/google/go-github/v80/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/hyperjump/kura/internal/config"
)

// githubFetcher downloads the tree of one branch through the GitHub REST API.
// Files rejected by the extension filter are never downloaded.
type githubFetcher struct {
	client  *gh.Client
	limiter *rate.Limiter
	owner   string
	repo    string
	branch  string
	filter  fileFilter
	logger  *zap.Logger
}

func newGitHubFetcher(cfg config.GitConfig, filter fileFilter, o options) (*githubFetcher, error) {
	owner, repo, err := parseRepoURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	httpClient := o.httpClient
	if cfg.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, o.httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	client := gh.NewClient(httpClient)
	if cfg.APIURL != "" {
		base := cfg.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", cfg.APIURL, err)
		}
		client.BaseURL = u
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = config.DefaultGitRPS
	}
	// Only the extension part of the filter applies at download time; the file
	// cap is applied by the walk over the checkout.
	filter.max = 0
	return &githubFetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		owner:   owner,
		repo:    repo,
		branch:  cfg.Branch,
		filter:  filter,
		logger:  o.logger,
	}, nil
}

// parseRepoURL extracts owner and repository from https://host/owner/repo(.git).
func parseRepoURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid repository URL %q", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL %q must name an owner and a repository", raw)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

func (g *githubFetcher) Method() string { return "github" }

func (g *githubFetcher) Fetch(ctx context.Context, dest string) error {
	branch := g.branch
	if branch == "" {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		repository, _, err := g.client.Repositories.Get(ctx, g.owner, g.repo)
		if err != nil {
			return fmt.Errorf("get repo: %w", err)
		}
		branch = repository.GetDefaultBranch()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	tree, _, err := g.client.Git.GetTree(ctx, g.owner, g.repo, branch, true)
	if err != nil {
		return fmt.Errorf("get tree: %w", err)
	}
	if tree.GetTruncated() {
		g.logger.Warn("repository tree truncated by the API", zap.String("repo", g.owner+"/"+g.repo))
	}

	downloaded := 0
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		rel := entry.GetPath()
		if !filepath.IsLocal(rel) || !g.filter.allows(path.Base(rel)) || hasGitDir(rel) {
			continue
		}
		content, err := g.blob(ctx, entry.GetSHA())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Warn("failed to download file", zap.String("path", rel), zap.Error(err))
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, content, 0644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
		downloaded++
	}
	g.logger.Debug("downloaded repository files",
		zap.String("repo", g.owner+"/"+g.repo), zap.String("branch", branch), zap.Int("files", downloaded))
	return nil
}

func (g *githubFetcher) blob(ctx context.Context, sha string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	blob, _, err := g.client.Git.GetBlob(ctx, g.owner, g.repo, sha)
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	if blob.GetEncoding() == "base64" {
		content := strings.ReplaceAll(blob.GetContent(), "\n", "")
		return base64.StdEncoding.DecodeString(content)
	}
	return []byte(blob.GetContent()), nil
}

func hasGitDir(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == ".git" {
			return true
		}
	}
	return false
}
