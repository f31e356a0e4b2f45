package source

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/extract"
	"github.com/hyperjump/kura/internal/models"
)

func TestFileFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.MD", "readme")
	writeFile(t, dir, "docs/guide.md", "guide")
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "notes.txt", "notes")
	writeFile(t, dir, ".git/config", "[core]")

	tests := []struct {
		name string
		cfg  config.GitConfig
		want []string
	}{
		{"no filter", config.GitConfig{}, []string{"README.MD", "docs/guide.md", "main.go", "notes.txt"}},
		{"include", config.GitConfig{IncludeExtensions: []string{".md"}}, []string{"README.MD", "docs/guide.md"}},
		{"include without dot", config.GitConfig{IncludeExtensions: []string{"TXT"}}, []string{"notes.txt"}},
		{"exclude wins", config.GitConfig{IncludeExtensions: []string{".md", ".go"}, ExcludeExtensions: []string{".md"}}, []string{"main.go"}},
		{"max files", config.GitConfig{MaxFiles: 2}, []string{"README.MD", "docs/guide.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths, err := newFileFilter(tt.cfg).collect(context.Background(), dir)
			require.NoError(t, err)
			rel := make([]string, len(paths))
			for i, p := range paths {
				r, _ := filepath.Rel(dir, p)
				rel[i] = filepath.ToSlash(r)
			}
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestResolveMethod(t *testing.T) {
	assert.Equal(t, "git", resolveMethod(config.GitConfig{URL: "https://github.com/o/r"}))
	assert.Equal(t, "github", resolveMethod(config.GitConfig{URL: "https://github.com/o/r", Token: "t"}))
	assert.Equal(t, "git", resolveMethod(config.GitConfig{URL: "https://gitlab.com/o/r", Token: "t"}))
	assert.Equal(t, "github", resolveMethod(config.GitConfig{URL: "https://ghe.corp/o/r", Token: "t", APIURL: "https://ghe.corp/api/v3"}))
	assert.Equal(t, "git", resolveMethod(config.GitConfig{URL: "https://github.com/o/r", Token: "t", Method: "git"}))
}

func TestParseRepoURL(t *testing.T) {
	owner, repo, err := parseRepoURL("https://github.com/hyperjump/kura.git")
	require.NoError(t, err)
	assert.Equal(t, "hyperjump", owner)
	assert.Equal(t, "kura", repo)

	_, _, err = parseRepoURL("https://github.com/hyperjump")
	assert.Error(t, err)
}

// fakeGitHub serves a repository with a recursive tree and base64 blobs.
type fakeGitHub struct {
	mu        sync.Mutex
	blobs     map[string]string // sha -> content
	paths     map[string]string // path -> sha
	blobCalls []string
	auth      string
}

func newFakeGitHub(t *testing.T, files map[string]string) (*fakeGitHub, string) {
	t.Helper()
	f := &fakeGitHub{blobs: map[string]string{}, paths: map[string]string{}}
	i := 0
	for path, content := range files {
		sha := "sha" + string(rune('a'+i))
		i++
		f.blobs[sha] = content
		f.paths[path] = sha
	}

	r := chi.NewRouter()
	r.Get("/repos/{owner}/{repo}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()
		writeTestJSON(w, map[string]any{"name": chi.URLParam(r, "repo"), "default_branch": "main"})
	})
	r.Get("/repos/{owner}/{repo}/git/trees/{sha}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "sha") != "main" || r.URL.Query().Get("recursive") == "" {
			http.Error(w, "unexpected tree request", http.StatusBadRequest)
			return
		}
		entries := []map[string]any{{"path": "docs", "type": "tree", "sha": "tree1"}}
		for path, sha := range f.paths {
			entries = append(entries, map[string]any{"path": path, "type": "blob", "sha": sha})
		}
		writeTestJSON(w, map[string]any{"sha": "main", "tree": entries, "truncated": false})
	})
	r.Get("/repos/{owner}/{repo}/git/blobs/{sha}", func(w http.ResponseWriter, r *http.Request) {
		sha := chi.URLParam(r, "sha")
		f.mu.Lock()
		f.blobCalls = append(f.blobCalls, sha)
		f.mu.Unlock()
		content, ok := f.blobs[sha]
		if !ok {
			http.NotFound(w, r)
			return
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(content))
		writeTestJSON(w, map[string]any{"sha": sha, "encoding": "base64", "content": encoded[:len(encoded)/2] + "\n" + encoded[len(encoded)/2:]})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func TestRepository_GitHubFetch(t *testing.T) {
	gh, apiURL := newFakeGitHub(t, map[string]string{
		"README.md":     "# Project",
		"docs/guide.md": "guide text",
		"logo.exe":      "binary",
		"src/main.go":   "package main",
	})
	cfg := config.GitConfig{
		URL:               "https://github.com/acme/project",
		Token:             "secret",
		APIURL:            apiURL,
		IncludeExtensions: []string{".md", ".exe"},
		ExcludeExtensions: []string{".exe"},
		RequestsPerSecond: 1000,
	}
	repo, err := NewRepository(cfg, extract.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, "github", repo.fetcher.Method())

	docs, err := repo.Process(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "# Project", docs[0].Text)
	assert.Equal(t, "README.md", docs[0].Metadata[models.MetaFilePath])
	assert.Equal(t, "docs/guide.md", docs[1].Metadata[models.MetaFilePath])
	assert.Equal(t, cfg.URL, docs[1].Metadata[MetaRepository])

	gh.mu.Lock()
	defer gh.mu.Unlock()
	assert.Len(t, gh.blobCalls, 2, "filtered files must not be downloaded")
	assert.Equal(t, "Bearer secret", gh.auth)
}

func TestRepository_RemovesTempDir(t *testing.T) {
	_, apiURL := newFakeGitHub(t, map[string]string{"a.txt": "a"})
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	cfg := config.GitConfig{URL: "https://github.com/acme/project", Token: "t", APIURL: apiURL, RequestsPerSecond: 1000}
	repo, err := NewRepository(cfg, extract.NewRegistry())
	require.NoError(t, err)
	docs, err := repo.Process(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "repo_clone_"), "clone directory %s left behind", e.Name())
	}
}

func TestRepository_FetchFailureRemovesTempDir(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	cfg := config.GitConfig{URL: "https://github.com/acme/missing", Token: "t", APIURL: srv.URL, RequestsPerSecond: 1000}
	repo, err := NewRepository(cfg, extract.NewRegistry())
	require.NoError(t, err)
	_, err = repo.Process(context.Background())
	require.Error(t, err)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRepository_GitClone(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	origin := t.TempDir()
	writeFile(t, origin, "README.md", "hello from git")
	writeFile(t, origin, "skip.bin", "\x00\x01")
	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"add", "."},
		{"-c", "user.email=test@example.com", "-c", "user.name=test", "commit", "-q", "-m", "init"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = origin
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	cfg := config.GitConfig{URL: "file://" + filepath.ToSlash(origin), Method: "git", Branch: "main"}
	repo, err := NewRepository(cfg, extract.NewRegistry())
	require.NoError(t, err)
	docs, err := repo.Process(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "hello from git", docs[0].Text)
	assert.Equal(t, "README.md", docs[0].Metadata[models.MetaFilePath])
}

func TestRepository_GitCloneFailure(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	cfg := config.GitConfig{URL: "file://" + filepath.ToSlash(filepath.Join(t.TempDir(), "absent")), Method: "git"}
	repo, err := NewRepository(cfg, extract.NewRegistry())
	require.NoError(t, err)
	_, err = repo.Process(context.Background())
	assert.ErrorContains(t, err, "git clone")
}
