package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// ConfigurationError reports an invalid or missing setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// Index types accepted by vector_store.index_type.
var indexTypes = map[string]bool{"flat": true, "faiss": true}

// Validate checks the settings needed for a build and returns the first problem found.
// Sources are optional here; a run with no documents fails later in the pipeline.
func (c *Config) Validate() error {
	if c.VectorStore.Path == "" {
		return &ConfigurationError{Field: "vector_store.path", Reason: "is required"}
	}
	if err := ValidateStoreName(c.VectorStore.Name); err != nil {
		return err
	}
	if !indexTypes[c.VectorStore.IndexType] {
		return &ConfigurationError{Field: "vector_store.index_type", Reason: fmt.Sprintf("unknown index type %q", c.VectorStore.IndexType)}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return &ConfigurationError{Field: "log_level", Reason: err.Error()}
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if g := c.Sources.Git; g != nil {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	if w := c.Sources.Confluence; w != nil {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateServe checks the settings used by the serve and watch modes.
func (c *Config) ValidateServe() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &ConfigurationError{Field: "server.port", Reason: fmt.Sprintf("out of range: %d", c.Server.Port)}
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d < 0 {
		return &ConfigurationError{Field: "watch.debounce", Reason: fmt.Sprintf("invalid duration %q", c.Watch.Debounce)}
	}
	return nil
}

// ValidateStoreName rejects names that are empty or would escape the store directory.
func ValidateStoreName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return &ConfigurationError{Field: "vector_store.name", Reason: "is required"}
	case name == "." || name == "..", strings.ContainsAny(name, `/\`):
		return &ConfigurationError{Field: "vector_store.name", Reason: fmt.Sprintf("invalid name %q", name)}
	}
	return nil
}

// Validate checks the embedding provider settings.
func (e *EmbeddingConfig) Validate() error {
	switch e.Provider {
	case "http":
		u, err := url.Parse(e.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ConfigurationError{Field: "embedding.endpoint", Reason: fmt.Sprintf("invalid URL %q", e.Endpoint)}
		}
		if e.BatchSize < 1 {
			return &ConfigurationError{Field: "embedding.batch_size", Reason: fmt.Sprintf("must be at least 1, got %d", e.BatchSize)}
		}
		if _, ok := e.ModelKwargs["input"]; ok {
			return &ConfigurationError{Field: "embedding.model_kwargs", Reason: `must not set "input"`}
		}
		if e.Timeout != "" {
			if d, err := time.ParseDuration(e.Timeout); err != nil || d < 0 {
				return &ConfigurationError{Field: "embedding.timeout", Reason: fmt.Sprintf("invalid duration %q", e.Timeout)}
			}
		}
	case "onnx":
		if e.ModelPath == "" {
			return &ConfigurationError{Field: "embedding.model_path", Reason: "is required for the onnx provider"}
		}
		if e.Dimensions <= 0 {
			return &ConfigurationError{Field: "embedding.dimensions", Reason: "must be positive"}
		}
	case "mock":
		if e.Dimensions <= 0 {
			return &ConfigurationError{Field: "embedding.dimensions", Reason: "must be positive"}
		}
	default:
		return &ConfigurationError{Field: "embedding.provider", Reason: fmt.Sprintf("unknown provider %q", e.Provider)}
	}
	return nil
}

// Validate checks the repository source settings.
func (g *GitConfig) Validate() error {
	if g.URL == "" {
		return &ConfigurationError{Field: "git_settings.url", Reason: "is required"}
	}
	switch g.Method {
	case "auto", "git", "github":
	default:
		return &ConfigurationError{Field: "git_settings.method", Reason: fmt.Sprintf("unknown method %q", g.Method)}
	}
	if g.MaxFiles < 0 {
		return &ConfigurationError{Field: "git_settings.max_files", Reason: "must not be negative"}
	}
	return nil
}

// Validate checks the wiki source settings.
func (c *ConfluenceConfig) Validate() error {
	if c.URL == "" {
		return &ConfigurationError{Field: "confluence_settings.url", Reason: "is required"}
	}
	if u, err := url.Parse(c.URL); err != nil || u.Host == "" {
		return &ConfigurationError{Field: "confluence_settings.url", Reason: fmt.Sprintf("invalid URL %q", c.URL)}
	}
	if c.SpaceKey == "" {
		return &ConfigurationError{Field: "confluence_settings.space_key", Reason: "is required"}
	}
	if c.MaxPages < 0 {
		return &ConfigurationError{Field: "confluence_settings.max_pages", Reason: "must not be negative"}
	}
	return nil
}
