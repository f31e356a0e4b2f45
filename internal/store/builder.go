// Package store persists embedded documents as a vector store directory holding
// index.faiss and metadata.json.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/vector"
)

// Artifact file names inside a store directory.
const (
	IndexFile    = "index.faiss"
	MetadataFile = "metadata.json"
)

const (
	suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLength   = 4
	maxAttempts    = 1000
)

// Builder writes stores under a base directory.
type Builder struct {
	basePath  string
	indexType string
	logger    *zap.Logger
	suffix    func() string
	newIndex  func(indexType string, dimensions int) (vector.Index, error)
}

// Option configures a Builder.
type Option func(*Builder)

// WithIndexType selects the vector index implementation ("flat" or "faiss").
func WithIndexType(indexType string) Option {
	return func(b *Builder) {
		if indexType != "" {
			b.indexType = indexType
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder returns a Builder writing stores under basePath.
func NewBuilder(basePath string, opts ...Option) *Builder {
	b := &Builder{
		basePath:  basePath,
		indexType: string(vector.IndexTypeFlat),
		logger:    zap.NewNop(),
		suffix:    randomSuffix,
		newIndex:  vector.NewIndex,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IndexType returns the configured vector index type.
func (b *Builder) IndexType() string {
	return b.indexType
}

// BasePath returns the directory stores are created in.
func (b *Builder) BasePath() string {
	return b.basePath
}

// Path returns the directory of the store with the given resolved name.
func (b *Builder) Path(name string) string {
	return filepath.Join(b.basePath, name)
}

// Build validates docs and vectors, builds the index and persists a new store.
// It returns the resolved store name, which differs from name when a store of
// that name already exists. On failure no store directory is left behind.
func (b *Builder) Build(ctx context.Context, name string, docs []models.Document, vectors [][]float32) (string, error) {
	dim, err := validate(docs, vectors)
	if err != nil {
		return "", err
	}

	idx, err := b.newIndex(b.indexType, dim)
	if err != nil {
		return "", fmt.Errorf("failed to create %s index: %w", b.indexType, err)
	}
	defer idx.Close()

	ids := make([]int64, len(vectors))
	for i := range ids {
		ids[i] = int64(i)
	}
	if err := idx.AddWithIDs(ctx, ids, vectors); err != nil {
		return "", fmt.Errorf("failed to add vectors to index: %w", err)
	}

	metadata, err := encodeMetadata(docs)
	if err != nil {
		return "", &PersistenceError{Path: MetadataFile, Op: "encode", Err: err}
	}

	if err := os.MkdirAll(b.basePath, 0755); err != nil {
		return "", &PersistenceError{Path: b.basePath, Op: "create base directory", Err: err}
	}
	resolved, dir, err := b.reserve(name)
	if err != nil {
		return "", err
	}

	if err := b.persist(dir, idx, metadata); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			b.logger.Warn("failed to remove incomplete vector store", zap.String("path", dir), zap.Error(rmErr))
		}
		return "", err
	}

	b.logger.Info("vector store created",
		zap.String("name", resolved),
		zap.String("path", dir),
		zap.Int("vectors", idx.Size()),
		zap.Int("dimensions", dim),
		zap.String("index_type", idx.Type()))
	return resolved, nil
}

// validate returns the common vector dimension. It touches nothing on disk.
func validate(docs []models.Document, vectors [][]float32) (int, error) {
	if len(docs) != len(vectors) {
		return 0, &CardinalityError{Documents: len(docs), Vectors: len(vectors)}
	}
	if len(vectors) == 0 {
		return 0, ErrEmptyInput
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, &DimensionMismatchError{Index: 0, Expected: 0, Got: 0}
	}
	for i, vec := range vectors {
		if len(vec) != dim {
			return 0, &DimensionMismatchError{Index: i, Expected: dim, Got: len(vec)}
		}
	}
	return dim, nil
}

// reserve atomically creates the store directory, trying name first and then
// name_XXXX with fresh random suffixes while the directory already exists.
func (b *Builder) reserve(name string) (string, string, error) {
	candidate := name
	for attempt := 0; attempt < maxAttempts; attempt++ {
		dir := b.Path(candidate)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			if candidate != name {
				b.logger.Debug("vector store name taken, using suffix",
					zap.String("requested", name), zap.String("resolved", candidate))
			}
			return candidate, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", &PersistenceError{Path: dir, Op: "create store directory", Err: err}
		}
		candidate = name + "_" + b.suffix()
	}
	return "", "", &PersistenceError{
		Path: b.Path(name),
		Op:   "create store directory",
		Err:  fmt.Errorf("no free name after %d attempts", maxAttempts),
	}
}

func (b *Builder) persist(dir string, idx vector.Index, metadata []byte) error {
	indexPath := filepath.Join(dir, IndexFile)
	if err := idx.WriteFile(indexPath); err != nil {
		return &PersistenceError{Path: indexPath, Op: "write index", Err: err}
	}
	metaPath := filepath.Join(dir, MetadataFile)
	if err := os.WriteFile(metaPath, metadata, 0644); err != nil {
		return &PersistenceError{Path: metaPath, Op: "write metadata", Err: err}
	}
	return nil
}

// encodeMetadata renders one entry per document: its metadata plus "text" and "id",
// which take precedence over colliding keys.
func encodeMetadata(docs []models.Document) ([]byte, error) {
	entries := make([]map[string]any, len(docs))
	for i, doc := range docs {
		entry := make(map[string]any, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			entry[k] = v
		}
		entry[models.MetaText] = doc.Text
		entry[models.MetaID] = i
		entries[i] = entry
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func randomSuffix() string {
	b := make([]byte, suffixLength)
	for i := range b {
		b[i] = suffixAlphabet[rand.IntN(len(suffixAlphabet))]
	}
	return string(b)
}
