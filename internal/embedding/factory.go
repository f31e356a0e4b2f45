package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
)

// NewEmbedder builds the embedder selected by cfg.Provider.
func NewEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "", "http":
		e, err := NewHTTPEmbedder(cfg.Endpoint, cfg.BatchSize,
			WithExtraParams(cfg.ModelKwargs),
			WithRequestTimeout(cfg.TimeoutDuration()),
			WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "onnx":
		e, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:         cfg.ModelPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			Dimensions:        cfg.Dimensions,
			MaxTokens:         cfg.MaxTokens,
			CacheSize:         cfg.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("loaded onnx embedding model", zap.String("model", cfg.ModelPath), zap.Int("dimensions", cfg.Dimensions))
		return e, nil
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
