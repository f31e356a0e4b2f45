// Package config provides configuration loading and structs for kura.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for one pipeline run and the long-running modes.
type Config struct {
	Debug       bool              `yaml:"debug" toml:"debug" json:"debug,omitempty"`
	LogLevel    string            `yaml:"log_level" toml:"log_level" json:"log_level,omitempty"`
	LogFile     string            `yaml:"log_file" toml:"log_file" json:"log_file,omitempty"`
	SessionID   string            `yaml:"session_id" toml:"session_id" json:"session_id,omitempty"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store" json:"vector_store"`
	Sources     SourcesConfig     `yaml:"sources" toml:"sources" json:"sources"`
	Embedding   EmbeddingConfig   `yaml:"embedding" toml:"embedding" json:"embedding"`
	Server      ServerConfig      `yaml:"server" toml:"server" json:"server"`
	Watch       WatchConfig       `yaml:"watch" toml:"watch" json:"watch"`
}

// VectorStoreConfig controls where and how stores are written.
type VectorStoreConfig struct {
	Path        string `yaml:"path" toml:"path" json:"path,omitempty"`
	Name        string `yaml:"name" toml:"name" json:"name,omitempty"`
	IndexType   string `yaml:"index_type" toml:"index_type" json:"index_type,omitempty"`
	Catalog     *bool  `yaml:"catalog" toml:"catalog" json:"catalog,omitempty"`
	CatalogPath string `yaml:"catalog_path" toml:"catalog_path" json:"catalog_path,omitempty"`
}

// SourcesConfig selects the document sources. Unset sources are skipped.
type SourcesConfig struct {
	FilesLocation string            `yaml:"files_location" toml:"files_location" json:"files_location,omitempty"`
	Git           *GitConfig        `yaml:"git" toml:"git" json:"git,omitempty"`
	Confluence    *ConfluenceConfig `yaml:"confluence" toml:"confluence" json:"confluence,omitempty"`
	OCRCommand    string            `yaml:"ocr_command" toml:"ocr_command" json:"ocr_command,omitempty"`
}

// GitConfig describes the repository source.
type GitConfig struct {
	URL               string   `yaml:"url" toml:"url" json:"url"`
	Branch            string   `yaml:"branch" toml:"branch" json:"branch,omitempty"`
	IncludeExtensions []string `yaml:"include_extensions" toml:"include_extensions" json:"include_extensions,omitempty"`
	ExcludeExtensions []string `yaml:"exclude_extensions" toml:"exclude_extensions" json:"exclude_extensions,omitempty"`
	MaxFiles          int      `yaml:"max_files" toml:"max_files" json:"max_files,omitempty"`
	// Method is "auto", "git" (clone with the git CLI) or "github" (REST API download).
	Method            string  `yaml:"method" toml:"method" json:"method,omitempty"`
	Token             string  `yaml:"token" toml:"token" json:"token,omitempty"`
	APIURL            string  `yaml:"api_url" toml:"api_url" json:"api_url,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second,omitempty"`
}

// ConfluenceConfig describes the wiki source.
type ConfluenceConfig struct {
	URL               string  `yaml:"url" toml:"url" json:"url"`
	User              string  `yaml:"user" toml:"user" json:"user,omitempty"`
	Token             string  `yaml:"token" toml:"token" json:"token,omitempty"`
	SpaceKey          string  `yaml:"space_key" toml:"space_key" json:"space_key"`
	MaxPages          int     `yaml:"max_pages" toml:"max_pages" json:"max_pages,omitempty"`
	PageSize          int     `yaml:"page_size" toml:"page_size" json:"page_size,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second,omitempty"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "http" (remote service), "onnx" (local model) or "mock".
	Provider    string         `yaml:"provider" toml:"provider" json:"provider,omitempty"`
	Endpoint    string         `yaml:"endpoint" toml:"endpoint" json:"endpoint,omitempty"`
	BatchSize   int            `yaml:"batch_size" toml:"batch_size" json:"batch_size,omitempty"`
	ModelKwargs map[string]any `yaml:"model_kwargs" toml:"model_kwargs" json:"model_kwargs,omitempty"`
	Timeout     string         `yaml:"timeout" toml:"timeout" json:"timeout,omitempty"`

	ModelPath         string `yaml:"model_path" toml:"model_path" json:"model_path,omitempty"`
	SharedLibraryPath string `yaml:"shared_library_path" toml:"shared_library_path" json:"shared_library_path,omitempty"`
	Dimensions        int    `yaml:"dimensions" toml:"dimensions" json:"dimensions,omitempty"`
	MaxTokens         int    `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens,omitempty"`
	CacheSize         int    `yaml:"cache_size" toml:"cache_size" json:"cache_size,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" toml:"host" json:"host,omitempty"`
	Port int    `yaml:"port" toml:"port" json:"port,omitempty"`
}

// WatchConfig holds watch-mode settings.
type WatchConfig struct {
	Debounce  string `yaml:"debounce" toml:"debounce" json:"debounce,omitempty"`
	Recursive *bool  `yaml:"recursive" toml:"recursive" json:"recursive,omitempty"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// DebounceDuration parses Debounce; invalid values are rejected by Validate.
func (w *WatchConfig) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(w.Debounce)
	return d
}

// TimeoutDuration parses Timeout; empty means no timeout.
func (e *EmbeddingConfig) TimeoutDuration() time.Duration {
	if e.Timeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(e.Timeout)
	return d
}

// CatalogEnabled reports whether built stores are recorded in the catalog; defaults to true.
func (v *VectorStoreConfig) CatalogEnabled() bool {
	return v.Catalog == nil || *v.Catalog
}

// CatalogFile returns the catalog database path.
func (v *VectorStoreConfig) CatalogFile() string {
	if v.CatalogPath != "" {
		return v.CatalogPath
	}
	return filepath.Join(v.Path, "catalog.db")
}

// LogFilePath returns the run log file, "" when file logging is disabled ("-").
func (c *Config) LogFilePath() string {
	switch c.LogFile {
	case "-":
		return ""
	case "":
		if c.VectorStore.Path == "" {
			return ""
		}
		return filepath.Join(c.VectorStore.Path, "application.log")
	default:
		return c.LogFile
	}
}

// Load reads and parses the config file at path (YAML, or TOML for .toml files),
// applies defaults and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, &ConfigurationError{Field: path, Reason: fmt.Sprintf("failed to parse config: %v", err)}
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.VectorStore.Path = expandPath(cfg.VectorStore.Path, configDir)
	if cfg.VectorStore.CatalogPath != "" {
		cfg.VectorStore.CatalogPath = expandPath(cfg.VectorStore.CatalogPath, configDir)
	}
	if cfg.LogFile != "" && cfg.LogFile != "-" {
		cfg.LogFile = expandPath(cfg.LogFile, configDir)
	}
	if cfg.Sources.FilesLocation != "" {
		cfg.Sources.FilesLocation = expandPath(cfg.Sources.FilesLocation, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	return &cfg, nil
}

// Save writes the config to path in the format implied by its extension.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ParseGitSettings decodes a JSON object of repository settings.
func ParseGitSettings(raw string) (*GitConfig, error) {
	var g GitConfig
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, &ConfigurationError{Field: "git_settings", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return &g, nil
}

// ParseConfluenceSettings decodes a JSON object of wiki settings.
func ParseConfluenceSettings(raw string) (*ConfluenceConfig, error) {
	var c ConfluenceConfig
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, &ConfigurationError{Field: "confluence_settings", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return &c, nil
}

// MergeEmbeddingSettings overlays a JSON object onto base; only fields present in raw change.
func MergeEmbeddingSettings(base EmbeddingConfig, raw string) (EmbeddingConfig, error) {
	merged := base
	if base.ModelKwargs != nil {
		merged.ModelKwargs = make(map[string]any, len(base.ModelKwargs))
		for k, v := range base.ModelKwargs {
			merged.ModelKwargs[k] = v
		}
	}
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		return base, &ConfigurationError{Field: "embedding_config", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return merged, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = path[2:]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
