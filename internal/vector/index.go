// Package vector provides exact L2 vector indexes that persist in the FAISS
// IndexIDMap(IndexFlatL2) file format.
package vector

import "context"

// Index holds vectors under caller-assigned int64 ids and writes them to a single file.
type Index interface {
	// AddWithIDs appends vectors; ids[i] labels vectors[i].
	AddWithIDs(ctx context.Context, ids []int64, vectors [][]float32) error
	Size() int
	Dimensions() int
	// WriteFile serializes the index to path, replacing any existing file.
	WriteFile(path string) error
	Type() string
	Close() error
}
