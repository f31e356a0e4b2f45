// Package embedding turns text into vectors: a remote HTTP embedding service
// (default), a local ONNX model, or a deterministic mock.
package embedding

import "context"

// Embedder produces vector embeddings for text. EmbedBatch is length and order preserving.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
