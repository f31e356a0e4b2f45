package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/vector"
)

func sampleDocs() []models.Document {
	return []models.Document{
		models.NewDocument("alpha", map[string]any{"file_path": "a.txt"}),
		models.NewDocument("beta", map[string]any{"file_path": "b.txt"}),
		models.NewDocument("gamma", map[string]any{"file_path": "c.txt"}),
	}
}

func sampleVectors() [][]float32 {
	return [][]float32{
		{0.1, 0.2, 0.3, 0.4},
		{0.5, 0.6, 0.7, 0.8},
		{0.9, 1.0, 1.1, 1.2},
	}
}

func readMetadata(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestBuild_CreatesStore(t *testing.T) {
	base := t.TempDir()
	b := NewBuilder(base)

	name, err := b.Build(context.Background(), "docs", sampleDocs(), sampleVectors())
	require.NoError(t, err)
	assert.Equal(t, "docs", name)

	dir := filepath.Join(base, "docs")
	assert.ElementsMatch(t, []string{IndexFile, MetadataFile}, listDir(t, dir))

	idx, err := vector.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Size())
	assert.Equal(t, 4, idx.Dimensions())
	assert.Equal(t, []int64{0, 1, 2}, idx.IDs())
	assert.Equal(t, sampleVectors()[1], idx.Vector(1))

	entries := readMetadata(t, dir)
	require.Len(t, entries, 3)
	for i, want := range []string{"alpha", "beta", "gamma"} {
		assert.Equal(t, want, entries[i]["text"])
		assert.Equal(t, float64(i), entries[i]["id"])
	}
	assert.Equal(t, "b.txt", entries[1]["file_path"])
}

func TestBuild_NameCollision(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "docs"), 0755))
	b := NewBuilder(base)

	name, err := b.Build(context.Background(), "docs", sampleDocs(), sampleVectors())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^docs_[A-Z0-9]{4}$`), name)

	assert.DirExists(t, filepath.Join(base, "docs"))
	assert.Empty(t, listDir(t, filepath.Join(base, "docs")), "existing store must not be touched")
	assert.FileExists(t, filepath.Join(base, name, IndexFile))
	assert.FileExists(t, filepath.Join(base, name, MetadataFile))
}

func TestBuild_RetriesTakenSuffix(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "docs"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(base, "docs_AAAA"), 0755))
	b := NewBuilder(base)
	suffixes := []string{"AAAA", "AAAA", "B2C3"}
	b.suffix = func() string {
		s := suffixes[0]
		suffixes = suffixes[1:]
		return s
	}

	name, err := b.Build(context.Background(), "docs", sampleDocs(), sampleVectors())
	require.NoError(t, err)
	assert.Equal(t, "docs_B2C3", name)
}

func TestBuild_ValidationBeforeDiskIO(t *testing.T) {
	tests := []struct {
		name    string
		docs    []models.Document
		vectors [][]float32
		check   func(t *testing.T, err error)
	}{
		{
			name:    "cardinality",
			docs:    sampleDocs(),
			vectors: sampleVectors()[:2],
			check: func(t *testing.T, err error) {
				var cerr *CardinalityError
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, 3, cerr.Documents)
				assert.Equal(t, 2, cerr.Vectors)
			},
		},
		{
			name: "empty",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptyInput)
			},
		},
		{
			name:    "dimension mismatch",
			docs:    sampleDocs(),
			vectors: [][]float32{{1, 2, 3, 4}, {1, 2, 3}, {1, 2, 3, 4}},
			check: func(t *testing.T, err error) {
				var derr *DimensionMismatchError
				require.ErrorAs(t, err, &derr)
				assert.Equal(t, 1, derr.Index)
				assert.Equal(t, 4, derr.Expected)
				assert.Equal(t, 3, derr.Got)
			},
		},
		{
			name:    "zero dimension",
			docs:    sampleDocs()[:1],
			vectors: [][]float32{{}},
			check: func(t *testing.T, err error) {
				var derr *DimensionMismatchError
				require.ErrorAs(t, err, &derr)
				assert.Equal(t, 0, derr.Expected)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "stores")
			_, err := NewBuilder(base).Build(context.Background(), "docs", tt.docs, tt.vectors)
			tt.check(t, err)
			assert.NoDirExists(t, base, "validation failures must not touch the disk")
		})
	}
}

func TestBuild_TextAndIDOverrideMetadata(t *testing.T) {
	base := t.TempDir()
	docs := []models.Document{
		models.NewDocument("real text", map[string]any{"text": "stale", "id": 99, "title": "T"}),
	}
	_, err := NewBuilder(base).Build(context.Background(), "docs", docs, [][]float32{{1, 2}})
	require.NoError(t, err)

	entries := readMetadata(t, filepath.Join(base, "docs"))
	require.Len(t, entries, 1)
	assert.Equal(t, "real text", entries[0]["text"])
	assert.Equal(t, float64(0), entries[0]["id"])
	assert.Equal(t, "T", entries[0]["title"])
}

func TestBuild_MetadataEncoding(t *testing.T) {
	base := t.TempDir()
	docs := []models.Document{models.NewDocument("café <b>naïve</b> & 日本", nil)}
	_, err := NewBuilder(base).Build(context.Background(), "docs", docs, [][]float32{{1}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(base, "docs", MetadataFile))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "café <b>naïve</b> & 日本")
	assert.NotContains(t, content, `\u003c`)
	assert.True(t, strings.HasPrefix(content, "[\n  {\n    \""), "expected two-space indentation, got %q", content)
}

type failingIndex struct {
	vector.Index
}

func (f failingIndex) WriteFile(string) error { return errors.New("disk full") }

func TestBuild_RollbackOnPersistenceError(t *testing.T) {
	base := t.TempDir()
	b := NewBuilder(base)
	b.newIndex = func(indexType string, dim int) (vector.Index, error) {
		idx, err := vector.NewFlatIndex(dim)
		return failingIndex{idx}, err
	}

	_, err := b.Build(context.Background(), "docs", sampleDocs(), sampleVectors())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "write index", perr.Op)
	assert.NoDirExists(t, filepath.Join(base, "docs"))
	assert.Empty(t, listDir(t, base))
}

func TestBuild_UnencodableMetadata(t *testing.T) {
	base := filepath.Join(t.TempDir(), "stores")
	docs := []models.Document{models.NewDocument("x", map[string]any{"bad": make(chan int)})}
	_, err := NewBuilder(base).Build(context.Background(), "docs", docs, [][]float32{{1}})
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.NoDirExists(t, base)
}

func TestBuild_UnknownIndexType(t *testing.T) {
	base := filepath.Join(t.TempDir(), "stores")
	_, err := NewBuilder(base, WithIndexType("hnsw")).Build(context.Background(), "docs", sampleDocs(), sampleVectors())
	require.Error(t, err)
	assert.NoDirExists(t, base)
}

func TestRandomSuffix(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z0-9]{4}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, re, randomSuffix())
	}
}
